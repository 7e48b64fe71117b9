package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/pepae/BeerCoin-sub000/pkg/app/errors"
	apphttp "github.com/pepae/BeerCoin-sub000/pkg/app/http"
	"github.com/pepae/BeerCoin-sub000/pkg/auth"
	"github.com/pepae/BeerCoin-sub000/pkg/ledger"
	"github.com/pepae/BeerCoin-sub000/pkg/token"
)

const maxBodySize = 1 << 20 // 1MB limit

// Service is the ledger surface the HTTP layer needs.
// Defined here to keep the handlers decoupled from the ledger implementation.
type Service interface {
	Metadata() token.Metadata
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	Supply(ctx context.Context) (total, max *big.Int, err error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	Burn(ctx context.Context, owner common.Address, amount *big.Int) error
	BurnFrom(ctx context.Context, owner, spender common.Address, amount *big.Int) error
}

// TransferRequest moves tokens from the signer to another address.
type TransferRequest struct {
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// BurnRequest destroys tokens held by the signer.
type BurnRequest struct {
	Amount    string `json:"amount"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// ApproveRequest grants a spender an allowance over the signer's tokens.
type ApproveRequest struct {
	Spender   string `json:"spender"`
	Amount    string `json:"amount"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// BurnFromRequest destroys tokens from another owner using the signer's allowance.
type BurnFromRequest struct {
	Owner     string `json:"owner"`
	Amount    string `json:"amount"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// BalanceResponse reports an address balance in token units.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// SupplyResponse reports total and maximum supply plus token metadata.
type SupplyResponse struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply string `json:"total_supply"`
	MaxSupply   string `json:"max_supply"`
}

// HTTP wraps the ledger to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the ledger endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/transfer", apphttp.HandleError(h.transfer))
	r.Post("/burn", apphttp.HandleError(h.burn))
	r.Post("/burn/from", apphttp.HandleError(h.burnFrom))
	r.Post("/approve", apphttp.HandleError(h.approve))
	r.Get("/balances/{address}", apphttp.HandleError(h.balance))
	r.Get("/allowances/{owner}/{spender}", apphttp.HandleError(h.allowance))
	r.Get("/supply", apphttp.HandleError(h.supply))
}

func (h *HTTP) transfer(w http.ResponseWriter, r *http.Request) error {
	var req TransferRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	from, err := recoverSigner(r, req.Message, req.Signature)
	if err != nil {
		return err
	}

	to, err := auth.ParseAddress(req.To)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid recipient address")
	}

	amount, err := token.ParseAmount(req.Amount)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid amount")
	}

	if err := h.service.Transfer(r.Context(), from, to, amount); err != nil {
		return mapLedgerError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{
		"from":   from.Hex(),
		"to":     to.Hex(),
		"amount": req.Amount,
	})
	return nil
}

func (h *HTTP) burn(w http.ResponseWriter, r *http.Request) error {
	var req BurnRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	owner, err := recoverSigner(r, req.Message, req.Signature)
	if err != nil {
		return err
	}

	amount, err := token.ParseAmount(req.Amount)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid amount")
	}

	if err := h.service.Burn(r.Context(), owner, amount); err != nil {
		return mapLedgerError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{
		"owner":  owner.Hex(),
		"burned": req.Amount,
	})
	return nil
}

func (h *HTTP) burnFrom(w http.ResponseWriter, r *http.Request) error {
	var req BurnFromRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	spender, err := recoverSigner(r, req.Message, req.Signature)
	if err != nil {
		return err
	}

	owner, err := auth.ParseAddress(req.Owner)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid owner address")
	}

	amount, err := token.ParseAmount(req.Amount)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid amount")
	}

	if err := h.service.BurnFrom(r.Context(), owner, spender, amount); err != nil {
		return mapLedgerError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{
		"owner":   owner.Hex(),
		"spender": spender.Hex(),
		"burned":  req.Amount,
	})
	return nil
}

func (h *HTTP) approve(w http.ResponseWriter, r *http.Request) error {
	var req ApproveRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	owner, err := recoverSigner(r, req.Message, req.Signature)
	if err != nil {
		return err
	}

	spender, err := auth.ParseAddress(req.Spender)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid spender address")
	}

	amount, err := token.ParseAmount(req.Amount)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid amount")
	}

	if err := h.service.Approve(r.Context(), owner, spender, amount); err != nil {
		return mapLedgerError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{
		"owner":   owner.Hex(),
		"spender": spender.Hex(),
		"amount":  req.Amount,
	})
	return nil
}

func (h *HTTP) balance(w http.ResponseWriter, r *http.Request) error {
	addr, err := auth.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid address")
	}

	balance, err := h.service.BalanceOf(r.Context(), addr)
	if err != nil {
		return mapLedgerError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, &BalanceResponse{
		Address: addr.Hex(),
		Balance: token.FormatAmount(balance),
	})
	return nil
}

func (h *HTTP) allowance(w http.ResponseWriter, r *http.Request) error {
	owner, err := auth.ParseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid owner address")
	}
	spender, err := auth.ParseAddress(chi.URLParam(r, "spender"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid spender address")
	}

	amount, err := h.service.Allowance(r.Context(), owner, spender)
	if err != nil {
		return mapLedgerError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": token.FormatAmount(amount),
	})
	return nil
}

func (h *HTTP) supply(w http.ResponseWriter, r *http.Request) error {
	total, max, err := h.service.Supply(r.Context())
	if err != nil {
		return mapLedgerError(err)
	}

	meta := h.service.Metadata()
	apphttp.WriteJSON(w, http.StatusOK, &SupplyResponse{
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Decimals:    meta.Decimals,
		TotalSupply: token.FormatAmount(total),
		MaxSupply:   token.FormatAmount(max),
	})
	return nil
}

func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func recoverSigner(r *http.Request, message, signature string) (addr common.Address, err error) {
	if signature == "" {
		signature = r.Header.Get("X-Signature")
		message = r.Header.Get("X-Message")
	}
	if signature == "" || message == "" {
		return addr, apperrors.UnAuthorizedError(nil, "signature and message required")
	}

	addr, err = auth.VerifyEIP191Signature(message, signature)
	if err != nil {
		return addr, apperrors.UnAuthorizedError(err, "signature verification failed")
	}
	return addr, nil
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return apperrors.ConflictError(err, "insufficient balance")
	case errors.Is(err, ledger.ErrAllowanceExceeded):
		return apperrors.ConflictError(err, "allowance exceeded")
	case errors.Is(err, ledger.ErrSupplyCapExceeded):
		return apperrors.ConflictError(err, "supply cap exceeded")
	case errors.Is(err, ledger.ErrInvalidRecipient):
		return apperrors.BadRequestError(err, "invalid recipient")
	case errors.Is(err, ledger.ErrZeroAmount):
		return apperrors.BadRequestError(err, "amount must be positive")
	default:
		return apperrors.GeneralError(err)
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/pepae/BeerCoin-sub000/pkg/app/errors"
	apphttp "github.com/pepae/BeerCoin-sub000/pkg/app/http"
	"github.com/pepae/BeerCoin-sub000/pkg/auth"
	"github.com/pepae/BeerCoin-sub000/pkg/ledger"
	"github.com/pepae/BeerCoin-sub000/pkg/rewards"
	"github.com/pepae/BeerCoin-sub000/pkg/token"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

const maxBodySize = 1 << 20 // 1MB limit

// Service is the reward engine surface the HTTP layer needs.
// Defined here to keep the handlers decoupled from the engine implementation.
type Service interface {
	PendingRewards(ctx context.Context, addr common.Address) (*big.Int, error)
	Claim(ctx context.Context, caller common.Address) (*big.Int, error)
	ClaimHistory(ctx context.Context, addr common.Address) ([]*rewards.Claim, error)
	ToggleDistribution(ctx context.Context) (bool, error)
	UpdateRewardRate(ctx context.Context, rate *big.Int) error
	UpdateReferrerMultiplier(ctx context.Context, multiplier uint64) error
	DistributionParams(ctx context.Context) (*rewards.Params, error)
}

// ClaimRequest authorizes a claim via EIP-191 signature recovery.
type ClaimRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// RewardRateRequest carries the new base reward rate in tokens per second.
type RewardRateRequest struct {
	Rate string `json:"rate"`
}

// MultiplierRequest carries the new referrer bonus multiplier.
type MultiplierRequest struct {
	Multiplier uint64 `json:"multiplier"`
}

// ClaimResponse reports a settled claim.
type ClaimResponse struct {
	Address string `json:"address"`
	Claimed string `json:"claimed"`
}

// PendingResponse reports accrued-but-unclaimed rewards.
type PendingResponse struct {
	Address string `json:"address"`
	Pending string `json:"pending"`
}

// ClaimHistoryEntry is one settled claim in the audit log.
type ClaimHistoryEntry struct {
	ID        string    `json:"id"`
	Amount    string    `json:"amount"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// ParamsResponse is the distribution parameter view returned to admins.
type ParamsResponse struct {
	Active             bool   `json:"active"`
	BaseRewardRate     string `json:"base_reward_rate"`
	ReferrerMultiplier uint64 `json:"referrer_multiplier"`
	MultiplierBase     uint64 `json:"multiplier_base"`
}

// HTTP wraps the reward engine to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the user-facing reward endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/claim", apphttp.HandleError(h.claim))
	r.Get("/rewards/{address}", apphttp.HandleError(h.pending))
	r.Get("/claims/{address}", apphttp.HandleError(h.claimHistory))
}

// RegisterAdminRoutes registers the admin-only distribution parameter
// endpoints. The caller is expected to mount these behind JWT auth middleware.
func RegisterAdminRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/distribution/toggle", apphttp.HandleError(h.toggleDistribution))
	r.Put("/reward-rate", apphttp.HandleError(h.updateRewardRate))
	r.Put("/referrer-multiplier", apphttp.HandleError(h.updateMultiplier))
	r.Get("/distribution", apphttp.HandleError(h.params))
}

func (h *HTTP) claim(w http.ResponseWriter, r *http.Request) error {
	var req ClaimRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	if req.Signature == "" {
		req.Signature = r.Header.Get("X-Signature")
		req.Message = r.Header.Get("X-Message")
	}
	if req.Signature == "" || req.Message == "" {
		return apperrors.UnAuthorizedError(nil, "signature and message required")
	}

	caller, err := auth.VerifyEIP191Signature(req.Message, req.Signature)
	if err != nil {
		return apperrors.UnAuthorizedError(err, "signature verification failed")
	}

	claimed, err := h.service.Claim(r.Context(), caller)
	if err != nil {
		return mapRewardsError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, &ClaimResponse{
		Address: caller.Hex(),
		Claimed: token.FormatAmount(claimed),
	})
	return nil
}

func (h *HTTP) pending(w http.ResponseWriter, r *http.Request) error {
	addr, err := auth.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid address")
	}

	pending, err := h.service.PendingRewards(r.Context(), addr)
	if err != nil {
		return mapRewardsError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, &PendingResponse{
		Address: addr.Hex(),
		Pending: token.FormatAmount(pending),
	})
	return nil
}

func (h *HTTP) claimHistory(w http.ResponseWriter, r *http.Request) error {
	addr, err := auth.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid address")
	}

	claims, err := h.service.ClaimHistory(r.Context(), addr)
	if err != nil {
		return mapRewardsError(err)
	}

	resp := make([]*ClaimHistoryEntry, 0, len(claims))
	for _, c := range claims {
		resp = append(resp, &ClaimHistoryEntry{
			ID:        c.ID.String(),
			Amount:    token.FormatAmount(c.Amount),
			ClaimedAt: c.ClaimedAt,
		})
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) toggleDistribution(w http.ResponseWriter, r *http.Request) error {
	active, err := h.service.ToggleDistribution(r.Context())
	if err != nil {
		return mapRewardsError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]bool{"active": active})
	return nil
}

func (h *HTTP) updateRewardRate(w http.ResponseWriter, r *http.Request) error {
	var req RewardRateRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	rate, err := token.ParseAmount(req.Rate)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid reward rate")
	}

	if err := h.service.UpdateRewardRate(r.Context(), rate); err != nil {
		return mapRewardsError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{"rate": req.Rate})
	return nil
}

func (h *HTTP) updateMultiplier(w http.ResponseWriter, r *http.Request) error {
	var req MultiplierRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	if err := h.service.UpdateReferrerMultiplier(r.Context(), req.Multiplier); err != nil {
		return mapRewardsError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]uint64{"multiplier": req.Multiplier})
	return nil
}

func (h *HTTP) params(w http.ResponseWriter, r *http.Request) error {
	p, err := h.service.DistributionParams(r.Context())
	if err != nil {
		return mapRewardsError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, &ParamsResponse{
		Active:             p.Active,
		BaseRewardRate:     token.FormatAmount(p.BaseRewardRate),
		ReferrerMultiplier: p.ReferrerMultiplier,
		MultiplierBase:     p.MultiplierBase,
	})
	return nil
}

func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func mapRewardsError(err error) error {
	switch {
	case errors.Is(err, rewards.ErrDistributionInactive):
		return apperrors.ForbiddenError(err, "distribution is not active")
	case errors.Is(err, rewards.ErrUserNotActive):
		return apperrors.ForbiddenError(err, "user is not active")
	case errors.Is(err, rewards.ErrInvalidRate):
		return apperrors.BadRequestError(err, "invalid reward rate")
	case errors.Is(err, rewards.ErrInvalidMultiplier):
		return apperrors.BadRequestError(err, "invalid referrer multiplier")
	case errors.Is(err, ledger.ErrSupplyCapExceeded):
		return apperrors.ConflictError(err, "supply cap exceeded")
	case errors.Is(err, user.ErrNotFound):
		return apperrors.ResourceNotFoundError(err, "user not found")
	default:
		return apperrors.GeneralError(err)
	}
}

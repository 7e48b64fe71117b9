package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/pepae/BeerCoin-sub000/pkg/app/errors"
	apphttp "github.com/pepae/BeerCoin-sub000/pkg/app/http"
	"github.com/pepae/BeerCoin-sub000/pkg/auth"
	"github.com/pepae/BeerCoin-sub000/pkg/registry"
	"github.com/pepae/BeerCoin-sub000/pkg/token"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

const maxBodySize = 1 << 20 // 1MB limit

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// username: letters, digits and underscores only
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// RegisterRequest registers the signer with a vouching trusted referrer.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=20,username"`
	Referrer  string `json:"referrer" validate:"required"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// RegisterTrustedRequest lets a trusted signer register a new user directly.
type RegisterTrustedRequest struct {
	NewUser   string `json:"new_user" validate:"required"`
	Username  string `json:"username" validate:"required,min=3,max=20,username"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// AddTrustedRequest is the admin request to promote or create a trusted user.
type AddTrustedRequest struct {
	Address  string `json:"address" validate:"required"`
	Username string `json:"username" validate:"required,min=3,max=20,username"`
}

// UserResponse is the public view of a registry record.
type UserResponse struct {
	Address       string    `json:"address"`
	Username      string    `json:"username"`
	IsTrusted     bool      `json:"is_trusted"`
	IsActive      bool      `json:"is_active"`
	Referrer      string    `json:"referrer,omitempty"`
	ReferralCount uint64    `json:"referral_count"`
	TotalEarned   string    `json:"total_earned"`
	LastClaimTime time.Time `json:"last_claim_time"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// StatsResponse summarizes registry totals.
type StatsResponse struct {
	TotalUsers        int `json:"total_users"`
	TotalTrustedUsers int `json:"total_trusted_users"`
}

// HTTP wraps the registry Service to provide HTTP endpoints
type HTTP struct {
	service registry.Service
	logger  *zap.Logger
}

// RegisterRoutes registers the user-facing registry endpoints on the given chi router
func RegisterRoutes(r chi.Router, service registry.Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/register", apphttp.HandleError(h.register))
	r.Post("/register/trusted", apphttp.HandleError(h.registerTrusted))
	r.Get("/users/{address}", apphttp.HandleError(h.getUser))
	r.Get("/users/username/{name}/available", apphttp.HandleError(h.usernameAvailable))
	r.Get("/users/stats", apphttp.HandleError(h.stats))
	r.Get("/users/trusted", apphttp.HandleError(h.trustedUsers))
}

// RegisterAdminRoutes registers the admin-only registry endpoints. The caller
// is expected to mount these behind JWT auth middleware.
func RegisterAdminRoutes(r chi.Router, service registry.Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/trusted", apphttp.HandleError(h.addTrusted))
	r.Delete("/trusted/{address}", apphttp.HandleError(h.removeTrusted))
	r.Post("/kick/{address}", apphttp.HandleError(h.kick))
}

func (h *HTTP) register(w http.ResponseWriter, r *http.Request) error {
	var req RegisterRequest
	if err := decodeAndValidate(r, &req); err != nil {
		return err
	}

	caller, err := recoverSigner(r, req.Message, req.Signature)
	if err != nil {
		return err
	}

	referrer, err := auth.ParseAddress(req.Referrer)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid referrer address")
	}

	u, err := h.service.RegisterSelf(r.Context(), caller, req.Username, referrer)
	if err != nil {
		return mapRegistryError(err)
	}

	apphttp.WriteJSON(w, http.StatusCreated, toUserResponse(u))
	return nil
}

func (h *HTTP) registerTrusted(w http.ResponseWriter, r *http.Request) error {
	var req RegisterTrustedRequest
	if err := decodeAndValidate(r, &req); err != nil {
		return err
	}

	caller, err := recoverSigner(r, req.Message, req.Signature)
	if err != nil {
		return err
	}

	newUser, err := auth.ParseAddress(req.NewUser)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid new user address")
	}

	u, err := h.service.RegisterByTrusted(r.Context(), caller, newUser, req.Username)
	if err != nil {
		return mapRegistryError(err)
	}

	apphttp.WriteJSON(w, http.StatusCreated, toUserResponse(u))
	return nil
}

func (h *HTTP) getUser(w http.ResponseWriter, r *http.Request) error {
	addr, err := auth.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid address")
	}

	u, err := h.service.GetUserInfo(r.Context(), addr)
	if err != nil {
		return mapRegistryError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, toUserResponse(u))
	return nil
}

func (h *HTTP) usernameAvailable(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")
	if err := validate.Var(name, "required,min=3,max=20,username"); err != nil {
		return apperrors.BadRequestError(err, "invalid username")
	}

	available, err := h.service.IsUsernameAvailable(r.Context(), name)
	if err != nil {
		return mapRegistryError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]any{
		"username":  name,
		"available": available,
	})
	return nil
}

func (h *HTTP) stats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		return mapRegistryError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, &StatsResponse{
		TotalUsers:        stats.TotalUsers,
		TotalTrustedUsers: stats.TotalTrustedUsers,
	})
	return nil
}

func (h *HTTP) trustedUsers(w http.ResponseWriter, r *http.Request) error {
	users, err := h.service.TrustedUsers(r.Context())
	if err != nil {
		return mapRegistryError(err)
	}

	resp := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) addTrusted(w http.ResponseWriter, r *http.Request) error {
	var req AddTrustedRequest
	if err := decodeAndValidate(r, &req); err != nil {
		return err
	}

	addr, err := auth.ParseAddress(req.Address)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid address")
	}

	u, err := h.service.AddTrustedUser(r.Context(), addr, req.Username)
	if err != nil {
		return mapRegistryError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, toUserResponse(u))
	return nil
}

func (h *HTTP) removeTrusted(w http.ResponseWriter, r *http.Request) error {
	addr, err := auth.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid address")
	}

	if err := h.service.RemoveTrustedUser(r.Context(), addr); err != nil {
		return mapRegistryError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	return nil
}

func (h *HTTP) kick(w http.ResponseWriter, r *http.Request) error {
	addr, err := auth.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return apperrors.BadRequestError(err, "invalid address")
	}

	if err := h.service.KickUser(r.Context(), addr); err != nil {
		return mapRegistryError(err)
	}

	apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "kicked"})
	return nil
}

// decodeAndValidate reads the request body, unmarshals it into dst and runs
// struct validation.
func decodeAndValidate(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}

	if err := validate.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, "invalid request")
	}

	return nil
}

// recoverSigner authenticates the request by recovering the EVM address from
// an EIP-191 personal-sign signature. Signature and message may come from the
// body or from the X-Signature / X-Message headers.
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

func toUserResponse(u *user.User) *UserResponse {
	resp := &UserResponse{
		Address:       u.Address.Hex(),
		Username:      u.Username,
		IsTrusted:     u.IsTrusted,
		IsActive:      u.IsActive,
		ReferralCount: u.ReferralCount,
		TotalEarned:   token.FormatAmount(u.TotalEarned),
		LastClaimTime: u.LastClaimTime,
		RegisteredAt:  u.RegisteredAt,
	}
	if u.Referrer != nil {
		resp.Referrer = u.Referrer.Hex()
	}
	return resp
}

func mapRegistryError(err error) error {
	switch {
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return apperrors.ConflictError(err, "address already registered")
	case errors.Is(err, registry.ErrUsernameTaken):
		return apperrors.ConflictError(err, "username already taken")
	case errors.Is(err, registry.ErrReferrerNotTrusted):
		return apperrors.ForbiddenError(err, "referrer is not a trusted user")
	case errors.Is(err, registry.ErrSelfReferral):
		return apperrors.BadRequestError(err, "cannot refer yourself")
	case errors.Is(err, registry.ErrSelfRegistration):
		return apperrors.BadRequestError(err, "cannot register yourself")
	case errors.Is(err, registry.ErrNotTrustedOrInactive):
		return apperrors.ForbiddenError(err, "caller is not an active trusted user")
	case errors.Is(err, user.ErrNotFound):
		return apperrors.ResourceNotFoundError(err, "user not found")
	default:
		return apperrors.GeneralError(err)
	}
}

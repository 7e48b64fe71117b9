// Package registry owns the address-to-username mapping and per-user
// metadata, and enforces the registration invariants: unique usernames,
// one record per address, and trusted-referrer gating.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pepae/BeerCoin-sub000/internal/metrics"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

var (
	// ErrAlreadyRegistered is returned when the address already has a record.
	ErrAlreadyRegistered = errors.New("address already registered")
	// ErrUsernameTaken is returned when the username is bound to another address.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrReferrerNotTrusted is returned when the named referrer is unknown or not trusted.
	ErrReferrerNotTrusted = errors.New("referrer is not a trusted user")
	// ErrSelfReferral is returned when an address names itself as referrer.
	ErrSelfReferral = errors.New("cannot refer yourself")
	// ErrSelfRegistration is returned when a trusted user tries to register itself as a new user.
	ErrSelfRegistration = errors.New("cannot register yourself")
	// ErrNotTrustedOrInactive is returned when the caller lacks an active trusted record.
	ErrNotTrustedOrInactive = errors.New("caller is not an active trusted user")
)

// Store is the narrow persistence interface for the registry.
// CreateUser must atomically insert the record and increment the referrer's
// referral count when the record carries a referrer.
type Store interface {
	GetUser(ctx context.Context, addr common.Address) (*user.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, u *user.User) error
	SetTrusted(ctx context.Context, addr common.Address, trusted bool) error
	SetActive(ctx context.Context, addr common.Address, active bool) error
	CountUsers(ctx context.Context) (int, error)
	CountTrustedUsers(ctx context.Context) (int, error)
	ListTrustedUsers(ctx context.Context) ([]*user.User, error)
}

// Stats summarizes registry totals.
type Stats struct {
	TotalUsers        int
	TotalTrustedUsers int
}

// Service defines the registry operation surface.
type Service interface {
	RegisterSelf(ctx context.Context, caller common.Address, username string, referrer common.Address) (*user.User, error)
	RegisterByTrusted(ctx context.Context, caller, newUser common.Address, username string) (*user.User, error)
	AddTrustedUser(ctx context.Context, addr common.Address, username string) (*user.User, error)
	RemoveTrustedUser(ctx context.Context, addr common.Address) error
	KickUser(ctx context.Context, addr common.Address) error
	GetUserInfo(ctx context.Context, addr common.Address) (*user.User, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
	Stats(ctx context.Context) (*Stats, error)
	TrustedUsers(ctx context.Context) ([]*user.User, error)
}

// Registry implements Service over a Store, serialized on the shared
// distributor write mutex.
type Registry struct {
	store  Store
	mu     *sync.Mutex
	clock  func() time.Time
	logger *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry clock. Used in tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// New creates a Registry. The mutex is the distributor-wide write lock
// shared with the ledger and the reward engine.
func New(store Store, mu *sync.Mutex, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		mu:     mu,
		clock:  time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterSelf registers the caller with a vouching trusted referrer.
// The referrer's referral count is incremented atomically with the insert.
func (r *Registry) RegisterSelf(
	ctx context.Context,
	caller common.Address,
	username string,
	referrer common.Address,
) (*user.User, error) {
	if referrer == caller {
		return nil, ErrSelfReferral
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnregistered(ctx, caller); err != nil {
		return nil, err
	}
	if err := r.checkUsernameFree(ctx, username); err != nil {
		return nil, err
	}

	ref, err := r.store.GetUser(ctx, referrer)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrReferrerNotTrusted
		}
		return nil, fmt.Errorf("failed to look up referrer: %w", err)
	}
	if !ref.IsTrusted {
		return nil, ErrReferrerNotTrusted
	}

	u := user.New(caller, username, &referrer, r.clock())
	if err := r.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues("self").Inc()
	r.logger.Info("User registered",
		zap.String("address", caller.Hex()),
		zap.String("username", username),
		zap.String("referrer", referrer.Hex()))
	return u, nil
}

// RegisterByTrusted registers a new address on its behalf. The caller must
// hold an active trusted record and becomes the new user's referrer.
func (r *Registry) RegisterByTrusted(
	ctx context.Context,
	caller, newUser common.Address,
	username string,
) (*user.User, error) {
	if newUser == caller {
		return nil, ErrSelfRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	callerRec, err := r.store.GetUser(ctx, caller)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotTrustedOrInactive
		}
		return nil, fmt.Errorf("failed to look up caller: %w", err)
	}
	if !callerRec.IsTrusted || !callerRec.IsActive {
		return nil, ErrNotTrustedOrInactive
	}

	if err := r.checkUnregistered(ctx, newUser); err != nil {
		return nil, err
	}
	if err := r.checkUsernameFree(ctx, username); err != nil {
		return nil, err
	}

	u := user.New(newUser, username, &caller, r.clock())
	if err := r.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues("trusted").Inc()
	r.logger.Info("User registered by trusted referrer",
		zap.String("address", newUser.Hex()),
		zap.String("username", username),
		zap.String("referrer", caller.Hex()))
	return u, nil
}

// AddTrustedUser creates a trusted record for a fresh address, or flips an
// existing record to trusted. Admin operation.
func (r *Registry) AddTrustedUser(ctx context.Context, addr common.Address, username string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.GetUser(ctx, addr)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if existing != nil {
		// Existing record keeps its original username.
		if err := r.store.SetTrusted(ctx, addr, true); err != nil {
			return nil, fmt.Errorf("failed to set trusted flag: %w", err)
		}
		existing.IsTrusted = true
		r.logger.Info("Existing user marked trusted", zap.String("address", addr.Hex()))
		return existing, nil
	}

	if err := r.checkUsernameFree(ctx, username); err != nil {
		return nil, err
	}

	u := user.NewTrusted(addr, username, r.clock())
	if err := r.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create trusted user: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues("admin").Inc()
	r.logger.Info("Trusted user added",
		zap.String("address", addr.Hex()),
		zap.String("username", username))
	return u, nil
}

// RemoveTrustedUser clears the trusted flag. The record stays active.
func (r *Registry) RemoveTrustedUser(ctx context.Context, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.GetUser(ctx, addr); err != nil {
		return err
	}
	if err := r.store.SetTrusted(ctx, addr, false); err != nil {
		return fmt.Errorf("failed to clear trusted flag: %w", err)
	}

	r.logger.Info("Trusted user removed", zap.String("address", addr.Hex()))
	return nil
}

// KickUser deactivates a record. Accrual stops; history is retained, and
// referral counts credited for this user are not rolled back.
func (r *Registry) KickUser(ctx context.Context, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.GetUser(ctx, addr); err != nil {
		return err
	}
	if err := r.store.SetActive(ctx, addr, false); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	metrics.KicksTotal.Inc()
	r.logger.Info("User kicked", zap.String("address", addr.Hex()))
	return nil
}

// GetUserInfo returns the record for an address.
func (r *Registry) GetUserInfo(ctx context.Context, addr common.Address) (*user.User, error) {
	return r.store.GetUser(ctx, addr)
}

// IsUsernameAvailable reports whether the username is unbound.
func (r *Registry) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := r.store.UsernameTaken(ctx, username)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Stats returns registry totals.
func (r *Registry) Stats(ctx context.Context) (*Stats, error) {
	total, err := r.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	trusted, err := r.store.CountTrustedUsers(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{TotalUsers: total, TotalTrustedUsers: trusted}, nil
}

// TrustedUsers lists all trusted records.
func (r *Registry) TrustedUsers(ctx context.Context) ([]*user.User, error) {
	return r.store.ListTrustedUsers(ctx)
}

func (r *Registry) checkUnregistered(ctx context.Context, addr common.Address) error {
	_, err := r.store.GetUser(ctx, addr)
	if err == nil {
		return ErrAlreadyRegistered
	}
	if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	return nil
}

func (r *Registry) checkUsernameFree(ctx context.Context, username string) error {
	taken, err := r.store.UsernameTaken(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return ErrUsernameTaken
	}
	return nil
}

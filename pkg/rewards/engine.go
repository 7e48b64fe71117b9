// Package rewards implements time-based reward accrual with a referral
// multiplier, and settles claims by minting through the token ledger.
//
// Accrual is lazy: nothing ticks in the background. Pending rewards are a
// pure function of (now, lastClaimTime, rate, multiplier, referralCount)
// evaluated on demand, and a claim settlement resets the accrual clock.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pepae/BeerCoin-sub000/internal/metrics"
	"github.com/pepae/BeerCoin-sub000/pkg/token"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

var (
	// ErrDistributionInactive is returned when the global distribution gate is closed.
	ErrDistributionInactive = errors.New("distribution is not active")
	// ErrUserNotActive is returned when a kicked user attempts to claim.
	ErrUserNotActive = errors.New("user is not active")
	// ErrInvalidRate is returned when an admin submits a nil or negative reward rate.
	ErrInvalidRate = errors.New("invalid reward rate")
	// ErrInvalidMultiplier is returned when an admin submits a zero multiplier.
	ErrInvalidMultiplier = errors.New("invalid referrer multiplier")
)

// Params are the global distributor parameters. They are persisted and
// survive restarts; admin updates take effect for all subsequent accrual
// evaluations, not retroactively.
type Params struct {
	Active             bool
	BaseRewardRate     *big.Int // base units per second per active user
	ReferrerMultiplier uint64   // bonus numerator per referral, e.g. 150
	MultiplierBase     uint64   // bonus denominator, e.g. 100
}

// Claim is one settlement in the audit log.
type Claim struct {
	ID        uuid.UUID
	Address   common.Address
	Amount    *big.Int
	ClaimedAt time.Time
}

// Store is the narrow persistence interface for the reward engine.
// SettleClaim must atomically update the user's accrual bookkeeping
// (totalEarned, lastClaimTime), mint the amount into the ledger tables
// subject to the supply cap, and append the claim audit row. A failed
// settlement leaves no change.
type Store interface {
	GetUser(ctx context.Context, addr common.Address) (*user.User, error)
	Params(ctx context.Context) (*Params, error)
	UpdateParams(ctx context.Context, p *Params) error
	SettleClaim(ctx context.Context, addr common.Address, amount *big.Int, claimTime time.Time) error
	ListClaims(ctx context.Context, addr common.Address) ([]*Claim, error)
}

// Engine computes and settles reward accrual.
type Engine struct {
	store  Store
	mu     *sync.Mutex
	clock  func() time.Time
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock. Used in tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates a reward engine. The mutex is the distributor-wide
// write lock shared with the ledger and the registry.
func NewEngine(store Store, mu *sync.Mutex, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		mu:     mu,
		clock:  time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// accrue evaluates the accrual formula:
//
//	base  = rate * elapsed
//	bonus = base * referrerMultiplier * referralCount / multiplierBase
//
// The multiplier and referral count are applied to the whole unclaimed
// window at their current values; the engine does not integrate over
// parameter changes inside the window. This mirrors the deployed contract.
func accrue(p *Params, u *user.User, now time.Time) *big.Int {
	if !p.Active || !u.IsActive {
		return new(big.Int)
	}

	elapsed := now.Unix() - u.LastClaimTime.Unix()
	if elapsed <= 0 || p.BaseRewardRate == nil || p.BaseRewardRate.Sign() <= 0 {
		return new(big.Int)
	}

	base := new(big.Int).Mul(p.BaseRewardRate, big.NewInt(elapsed))

	bonus := new(big.Int).Mul(base, new(big.Int).SetUint64(p.ReferrerMultiplier))
	bonus.Mul(bonus, new(big.Int).SetUint64(u.ReferralCount))
	bonus.Div(bonus, new(big.Int).SetUint64(p.MultiplierBase))

	return base.Add(base, bonus)
}

// PendingRewards evaluates the accrual formula for an address at the
// current time. Unregistered, inactive, and gate-closed cases all return
// zero; the call never mutates state.
func (e *Engine) PendingRewards(ctx context.Context, addr common.Address) (*big.Int, error) {
	u, err := e.store.GetUser(ctx, addr)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	p, err := e.store.Params(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load distributor params: %w", err)
	}

	return accrue(p, u, e.clock()), nil
}

// Claim settles the caller's pending rewards: mints them, adds them to
// totalEarned, and resets the accrual clock. A claim with nothing pending
// is a permitted no-op that mints nothing and keeps the clock untouched.
func (e *Engine) Claim(ctx context.Context, caller common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.Params(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load distributor params: %w", err)
	}
	if !p.Active {
		return nil, ErrDistributionInactive
	}

	u, err := e.store.GetUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUserNotActive
	}

	now := e.clock()
	pending := accrue(p, u, now)
	if pending.Sign() == 0 {
		return pending, nil
	}

	if err := e.store.SettleClaim(ctx, caller, pending, now); err != nil {
		metrics.ClaimsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.ClaimsTotal.WithLabelValues("settled").Inc()
	metrics.ClaimAmount.Observe(tokenValue(pending))
	e.logger.Info("Rewards claimed",
		zap.String("address", caller.Hex()),
		zap.String("amount", token.FormatAmount(pending)),
		zap.Uint64("referral_count", u.ReferralCount))
	return pending, nil
}

// ToggleDistribution flips the global distribution gate and returns the
// new state. Admin operation.
func (e *Engine) ToggleDistribution(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.Params(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load distributor params: %w", err)
	}

	p.Active = !p.Active
	if err := e.store.UpdateParams(ctx, p); err != nil {
		return false, fmt.Errorf("failed to update distributor params: %w", err)
	}

	e.logger.Info("Distribution gate toggled", zap.Bool("active", p.Active))
	return p.Active, nil
}

// UpdateRewardRate sets the base reward rate in base units per second.
// Takes effect for subsequent accrual evaluations. Admin operation.
func (e *Engine) UpdateRewardRate(ctx context.Context, rate *big.Int) error {
	if rate == nil || rate.Sign() < 0 {
		return ErrInvalidRate
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.Params(ctx)
	if err != nil {
		return fmt.Errorf("failed to load distributor params: %w", err)
	}

	p.BaseRewardRate = new(big.Int).Set(rate)
	if err := e.store.UpdateParams(ctx, p); err != nil {
		return fmt.Errorf("failed to update distributor params: %w", err)
	}

	e.logger.Info("Reward rate updated", zap.String("rate", token.FormatAmount(rate)))
	return nil
}

// UpdateReferrerMultiplier sets the bonus numerator applied per referral.
// Admin operation.
func (e *Engine) UpdateReferrerMultiplier(ctx context.Context, multiplier uint64) error {
	if multiplier == 0 {
		return ErrInvalidMultiplier
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.Params(ctx)
	if err != nil {
		return fmt.Errorf("failed to load distributor params: %w", err)
	}

	p.ReferrerMultiplier = multiplier
	if err := e.store.UpdateParams(ctx, p); err != nil {
		return fmt.Errorf("failed to update distributor params: %w", err)
	}

	e.logger.Info("Referrer multiplier updated", zap.Uint64("multiplier", multiplier))
	return nil
}

// DistributionParams returns the current distributor parameters.
func (e *Engine) DistributionParams(ctx context.Context) (*Params, error) {
	return e.store.Params(ctx)
}

// ClaimHistory lists settlements for an address, newest first.
func (e *Engine) ClaimHistory(ctx context.Context, addr common.Address) ([]*Claim, error) {
	return e.store.ListClaims(ctx, addr)
}

func tokenValue(amount *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(amount),
		big.NewFloat(1e18),
	).Float64()
	return f
}

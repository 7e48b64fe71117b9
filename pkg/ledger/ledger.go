// Package ledger implements the BEER token ledger: fungible balances with
// a hard supply cap, transfers, burns, and engine-only minting.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pepae/BeerCoin-sub000/internal/metrics"
	"github.com/pepae/BeerCoin-sub000/pkg/token"
)

var (
	// ErrInvalidRecipient is returned when tokens would be sent to the zero address.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrZeroAmount is returned when an operation is called with a non-positive amount.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrSupplyCapExceeded is returned when a mint would push total supply past the cap.
	ErrSupplyCapExceeded = errors.New("supply cap exceeded")
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the owner's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAllowanceExceeded is returned when a spend exceeds the approved allowance.
	ErrAllowanceExceeded = errors.New("allowance exceeded")
	// ErrMintAuthorityGranted is returned on a second attempt to obtain the mint authority.
	ErrMintAuthorityGranted = errors.New("mint authority already granted")
)

// Store is the narrow persistence interface the ledger needs. Every mutator
// must be atomic: balance, allowance, and supply checks happen inside the
// same transaction as the write, and a failed operation leaves no change.
type Store interface {
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	Supply(ctx context.Context) (total, max *big.Int, err error)
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
	Burn(ctx context.Context, owner common.Address, amount *big.Int) error
	BurnFrom(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
}

// Ledger exposes token operations over the store, serialized on the shared
// distributor write mutex.
type Ledger struct {
	store  Store
	meta   token.Metadata
	mu     *sync.Mutex
	logger *zap.Logger

	grantMu sync.Mutex
	granted bool
}

// New creates a Ledger. The mutex is the distributor-wide write lock shared
// with the registry and the reward engine.
func New(store Store, meta token.Metadata, mu *sync.Mutex, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		meta:   meta,
		mu:     mu,
		logger: logger,
	}
}

// Metadata returns the token metadata.
func (l *Ledger) Metadata() token.Metadata {
	return l.meta
}

// BalanceOf returns the balance of an address. Unknown addresses hold zero.
func (l *Ledger) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return l.store.BalanceOf(ctx, addr)
}

// Supply returns the current total supply and the supply cap.
func (l *Ledger) Supply(ctx context.Context) (total, max *big.Int, err error) {
	return l.store.Supply(ctx)
}

// Allowance returns the amount spender may spend from owner's balance.
func (l *Ledger) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return l.store.Allowance(ctx, owner, spender)
}

// Transfer moves amount from the caller to another address.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Transfer(ctx, from, to, amount); err != nil {
		return err
	}

	metrics.TransfersTotal.Inc()
	l.logger.Info("Transfer completed",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", token.FormatAmount(amount)))
	return nil
}

// Approve sets spender's allowance over the caller's balance.
func (l *Ledger) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.Approve(ctx, owner, spender, amount)
}

// Burn destroys amount from the caller's own balance and reduces total supply.
func (l *Ledger) Burn(ctx context.Context, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Burn(ctx, owner, amount); err != nil {
		return err
	}

	metrics.TokensBurned.Add(tokenValue(amount))
	l.logger.Info("Burn completed",
		zap.String("owner", owner.Hex()),
		zap.String("amount", token.FormatAmount(amount)))
	return nil
}

// BurnFrom spends amount from spender's allowance over owner's balance,
// then burns it.
func (l *Ledger) BurnFrom(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.BurnFrom(ctx, owner, spender, amount); err != nil {
		return err
	}

	metrics.TokensBurned.Add(tokenValue(amount))
	return nil
}

// GrantMintAuthority hands out the ledger's mint authority exactly once.
// The reward engine acquires it at wiring time; every later call fails,
// which is how the "only the engine may create supply" boundary of the
// original token contract is reconstructed in-process.
func (l *Ledger) GrantMintAuthority() (*Minter, error) {
	l.grantMu.Lock()
	defer l.grantMu.Unlock()

	if l.granted {
		return nil, ErrMintAuthorityGranted
	}
	l.granted = true
	return &Minter{ledger: l}, nil
}

// Minter is the capability handle for minting. Only its holder can
// increase total supply.
type Minter struct {
	ledger *Ledger
}

// Mint creates amount new tokens for the recipient, subject to the supply cap.
func (m *Minter) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	l := m.ledger
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Mint(ctx, to, amount); err != nil {
		return err
	}

	metrics.TokensMinted.Add(tokenValue(amount))
	l.logger.Info("Mint completed",
		zap.String("to", to.Hex()),
		zap.String("amount", token.FormatAmount(amount)))
	return nil
}

// tokenValue converts base units to a float token value for metrics.
// Precision loss is fine here, metrics are indicative.
func tokenValue(amount *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(amount),
		big.NewFloat(1e18),
	).Float64()
	return f
}

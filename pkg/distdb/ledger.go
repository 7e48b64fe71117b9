package distdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/pepae/BeerCoin-sub000/pkg/ledger"
)

// BalanceOf returns the balance of an address. Unknown addresses hold zero.
func (s *Store) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	dao := new(BalanceDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("address = ?", addr.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return parseUnits(dao.Balance)
}

// Supply returns the current total supply and the supply cap.
func (s *Store) Supply(ctx context.Context) (total, max *big.Int, err error) {
	dao := new(SupplyDao)
	err = s.db.NewSelect().
		Model(dao).
		Where("id = ?", singletonRowID).
		Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get supply: %w", err)
	}

	if total, err = parseUnits(dao.TotalSupply); err != nil {
		return nil, nil, err
	}
	if max, err = parseUnits(dao.MaxSupply); err != nil {
		return nil, nil, err
	}
	return total, max, nil
}

// Mint creates new tokens for the recipient, enforcing the supply cap
// inside the transaction.
func (s *Store) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return mintTx(ctx, tx, to, amount)
	})
}

// mintTx is the single code path that increases total supply. It locks the
// supply row, checks the cap, and credits the recipient.
func mintTx(ctx context.Context, tx bun.Tx, to common.Address, amount *big.Int) error {
	supply := new(SupplyDao)
	err := tx.NewSelect().
		Model(supply).
		Where("id = ?", singletonRowID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to lock supply row: %w", err)
	}

	total, err := parseUnits(supply.TotalSupply)
	if err != nil {
		return err
	}
	max, err := parseUnits(supply.MaxSupply)
	if err != nil {
		return err
	}

	if new(big.Int).Add(total, amount).Cmp(max) > 0 {
		return ledger.ErrSupplyCapExceeded
	}

	if _, err := tx.NewUpdate().
		Model((*SupplyDao)(nil)).
		Set("total_supply = total_supply + ?::NUMERIC", amount.String()).
		Where("id = ?", singletonRowID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to update supply: %w", err)
	}

	return creditBalanceTx(ctx, tx, to, amount)
}

func creditBalanceTx(ctx context.Context, tx bun.Tx, to common.Address, amount *big.Int) error {
	_, err := tx.NewInsert().
		Model(&BalanceDao{Address: to.Hex(), Balance: amount.String()}).
		On("CONFLICT (address) DO UPDATE").
		Set("balance = b.balance + EXCLUDED.balance").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// debitBalanceTx locks the owner's balance row and subtracts amount,
// failing with ErrInsufficientBalance when the row is missing or short.
func debitBalanceTx(ctx context.Context, tx bun.Tx, owner common.Address, amount *big.Int) error {
	dao := new(BalanceDao)
	err := tx.NewSelect().
		Model(dao).
		Where("address = ?", owner.Hex()).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrInsufficientBalance
		}
		return fmt.Errorf("failed to lock balance row: %w", err)
	}

	balance, err := parseUnits(dao.Balance)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ledger.ErrInsufficientBalance
	}

	if _, err := tx.NewUpdate().
		Model((*BalanceDao)(nil)).
		Set("balance = balance - ?::NUMERIC", amount.String()).
		Where("address = ?", owner.Hex()).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	return nil
}

// Burn destroys amount from the owner's balance and reduces total supply.
func (s *Store) Burn(ctx context.Context, owner common.Address, amount *big.Int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return burnTx(ctx, tx, owner, amount)
	})
}

func burnTx(ctx context.Context, tx bun.Tx, owner common.Address, amount *big.Int) error {
	if err := debitBalanceTx(ctx, tx, owner, amount); err != nil {
		return err
	}

	if _, err := tx.NewUpdate().
		Model((*SupplyDao)(nil)).
		Set("total_supply = total_supply - ?::NUMERIC", amount.String()).
		Where("id = ?", singletonRowID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to reduce supply: %w", err)
	}
	return nil
}

// BurnFrom spends the spender's allowance over the owner's balance, then burns.
func (s *Store) BurnFrom(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		dao := new(AllowanceDao)
		err := tx.NewSelect().
			Model(dao).
			Where("owner = ? AND spender = ?", owner.Hex(), spender.Hex()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ledger.ErrAllowanceExceeded
			}
			return fmt.Errorf("failed to lock allowance row: %w", err)
		}

		allowance, err := parseUnits(dao.Amount)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ledger.ErrAllowanceExceeded
		}

		if _, err := tx.NewUpdate().
			Model((*AllowanceDao)(nil)).
			Set("amount = amount - ?::NUMERIC", amount.String()).
			Where("owner = ? AND spender = ?", owner.Hex(), spender.Hex()).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to spend allowance: %w", err)
		}

		return burnTx(ctx, tx, owner, amount)
	})
}

// Transfer moves amount between two addresses atomically.
func (s *Store) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := debitBalanceTx(ctx, tx, from, amount); err != nil {
			return err
		}
		return creditBalanceTx(ctx, tx, to, amount)
	})
}

// Approve sets the spender's allowance over the owner's balance.
func (s *Store) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	_, err := s.db.NewInsert().
		Model(&AllowanceDao{Owner: owner.Hex(), Spender: spender.Hex(), Amount: amount.String()}).
		On("CONFLICT (owner, spender) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set allowance: %w", err)
	}
	return nil
}

// Allowance returns the approved amount. Missing rows mean zero.
func (s *Store) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	dao := new(AllowanceDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("owner = ? AND spender = ?", owner.Hex(), spender.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return parseUnits(dao.Amount)
}

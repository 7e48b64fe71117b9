package distdb

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/pepae/BeerCoin-sub000/pkg/rewards"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

// SettleClaim settles a reward claim in a single transaction: mints the
// amount (cap-checked), adds it to the user's totalEarned, resets the
// accrual clock, and appends the audit row.
func (s *Store) SettleClaim(ctx context.Context, addr common.Address, amount *big.Int, claimTime time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := mintTx(ctx, tx, addr, amount); err != nil {
			return err
		}

		res, err := tx.NewUpdate().
			Model((*UserDao)(nil)).
			Set("total_earned = total_earned + ?::NUMERIC", amount.String()).
			Set("last_claim_time = ?", claimTime).
			Where("address = ?", addr.Hex()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to settle claim: %w", err)
		}
		if rows, err := res.RowsAffected(); err == nil && rows == 0 {
			return user.ErrNotFound
		}

		if _, err := tx.NewInsert().
			Model(&ClaimDao{
				ID:        uuid.New(),
				Address:   addr.Hex(),
				Amount:    amount.String(),
				ClaimedAt: claimTime,
			}).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to record claim: %w", err)
		}
		return nil
	})
}

// ListClaims returns settlements for an address, newest first.
func (s *Store) ListClaims(ctx context.Context, addr common.Address) ([]*rewards.Claim, error) {
	var daos []ClaimDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("address = ?", addr.Hex()).
		Order("claimed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	claims := make([]*rewards.Claim, 0, len(daos))
	for i := range daos {
		c, err := toClaim(&daos[i])
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, nil
}

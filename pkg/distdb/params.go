package distdb

import (
	"context"
	"fmt"
	"math/big"

	"github.com/uptrace/bun"

	"github.com/pepae/BeerCoin-sub000/pkg/rewards"
)

// Params loads the distributor parameter row.
func (s *Store) Params(ctx context.Context) (*rewards.Params, error) {
	dao := new(ParamsDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", singletonRowID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get distributor params: %w", err)
	}
	return toParams(dao)
}

// UpdateParams persists the distributor parameter row.
func (s *Store) UpdateParams(ctx context.Context, p *rewards.Params) error {
	_, err := s.db.NewUpdate().
		Model((*ParamsDao)(nil)).
		Set("distribution_active = ?", p.Active).
		Set("base_reward_rate = ?::NUMERIC", p.BaseRewardRate.String()).
		Set("referrer_multiplier = ?", int64(p.ReferrerMultiplier)).
		Set("multiplier_base = ?", int64(p.MultiplierBase)).
		Set("updated_at = NOW()").
		Where("id = ?", singletonRowID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update distributor params: %w", err)
	}
	return nil
}

// EnsureSeeded inserts the supply and parameter rows on first start.
// Existing rows win: config values never override admin updates.
func (s *Store) EnsureSeeded(ctx context.Context, p *rewards.Params, maxSupply *big.Int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&SupplyDao{
				ID:          singletonRowID,
				TotalSupply: "0",
				MaxSupply:   maxSupply.String(),
			}).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed supply row: %w", err)
		}

		_, err = tx.NewInsert().
			Model(&ParamsDao{
				ID:                 singletonRowID,
				DistributionActive: p.Active,
				BaseRewardRate:     p.BaseRewardRate.String(),
				ReferrerMultiplier: int64(p.ReferrerMultiplier),
				MultiplierBase:     int64(p.MultiplierBase),
			}).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed params row: %w", err)
		}
		return nil
	})
}

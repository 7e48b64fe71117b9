package distdb

import (
	"context"
	"log"

	"github.com/pepae/BeerCoin-sub000/pkg/distdb"
	mghelper "github.com/pepae/BeerCoin-sub000/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating balances, allowances and token_supply tables...")
		return mghelper.CreateSchema(ctx, db,
			&distdb.BalanceDao{},
			&distdb.AllowanceDao{},
			&distdb.SupplyDao{},
		)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping balances, allowances and token_supply tables...")
		return mghelper.DropTables(ctx, db,
			&distdb.BalanceDao{},
			&distdb.AllowanceDao{},
			&distdb.SupplyDao{},
		)
	})
}

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
		log.Println("creating claims table...")
		if err := mghelper.CreateSchema(ctx, db, &distdb.ClaimDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &distdb.ClaimDao{}, "address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping claims table...")
		return mghelper.DropTables(ctx, db, &distdb.ClaimDao{})
	})
}

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
		log.Println("creating distributor_params table...")
		return mghelper.CreateSchema(ctx, db, &distdb.ParamsDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping distributor_params table...")
		return mghelper.DropTables(ctx, db, &distdb.ParamsDao{})
	})
}

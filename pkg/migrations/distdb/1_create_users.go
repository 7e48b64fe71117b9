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
		log.Println("creating users table...")
		if err := mghelper.CreateSchema(ctx, db, &distdb.UserDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelUniqueIndexes(ctx, db, &distdb.UserDao{}, "username"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &distdb.UserDao{}, "is_trusted", "referrer")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping users table...")
		return mghelper.DropTables(ctx, db, &distdb.UserDao{})
	})
}

// Package distdb holds all the migrations for the distributor database
package distdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the distributor database
var Migrations = migrate.NewMigrations()

// Package distdb is the PostgreSQL persistence layer shared by the token
// ledger, the user registry, and the reward engine. Each mutating method
// runs in a single database transaction so a rejected operation leaves the
// pre-call state unchanged.
package distdb

import (
	"github.com/uptrace/bun"
)

// Store is the postgres implementation of the ledger, registry, and reward
// engine store interfaces.
type Store struct {
	db *bun.DB
}

// NewStore creates a new postgres store.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

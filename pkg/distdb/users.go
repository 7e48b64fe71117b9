package distdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

// GetUser loads the record for an address.
func (s *Store) GetUser(ctx context.Context, addr common.Address) (*user.User, error) {
	dao := new(UserDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("address = ?", addr.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return toUser(dao)
}

// UsernameTaken reports whether the username is bound to any address.
func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	taken, err := s.db.NewSelect().
		Model((*UserDao)(nil)).
		Where("username = ?", username).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return taken, nil
}

// CreateUser inserts a record and, when it carries a referrer, increments
// the referrer's referral count in the same transaction.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	dao := toUserDao(u)

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(dao).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		if dao.Referrer == nil {
			return nil
		}

		res, err := tx.NewUpdate().
			Model((*UserDao)(nil)).
			Set("referral_count = referral_count + 1").
			Where("address = ?", *dao.Referrer).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment referral count: %w", err)
		}
		if rows, err := res.RowsAffected(); err == nil && rows == 0 {
			return fmt.Errorf("referrer %s: %w", *dao.Referrer, user.ErrNotFound)
		}
		return nil
	})
}

// SetTrusted updates the trusted flag.
func (s *Store) SetTrusted(ctx context.Context, addr common.Address, trusted bool) error {
	return s.setUserFlag(ctx, addr, "is_trusted", trusted)
}

// SetActive updates the active flag.
func (s *Store) SetActive(ctx context.Context, addr common.Address, active bool) error {
	return s.setUserFlag(ctx, addr, "is_active", active)
}

func (s *Store) setUserFlag(ctx context.Context, addr common.Address, column string, value bool) error {
	res, err := s.db.NewUpdate().
		Model((*UserDao)(nil)).
		Set(column+" = ?", value).
		Where("address = ?", addr.Hex()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return user.ErrNotFound
	}
	return nil
}

// CountUsers returns the total number of registered records.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().
		Model((*UserDao)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountTrustedUsers returns the number of trusted records.
func (s *Store) CountTrustedUsers(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().
		Model((*UserDao)(nil)).
		Where("is_trusted = TRUE").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count trusted users: %w", err)
	}
	return count, nil
}

// ListTrustedUsers returns all trusted records in registration order.
func (s *Store) ListTrustedUsers(ctx context.Context) ([]*user.User, error) {
	var daos []UserDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("is_trusted = TRUE").
		Order("registered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted users: %w", err)
	}

	users := make([]*user.User, 0, len(daos))
	for i := range daos {
		u, err := toUser(&daos[i])
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

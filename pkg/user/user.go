// Package user defines the domain model for distributor participants.
package user

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when a user lookup finds no matching record.
var ErrNotFound = errors.New("user not found")

// User represents a registered participant.
//
// A record is created exactly once, at registration, and never deleted:
// kicking a user clears IsActive but keeps the record and its history.
// ReferralCount grows monotonically as referred users register; it is not
// decremented when a referred user is kicked.
type User struct {
	Address       common.Address
	Username      string
	IsTrusted     bool
	IsActive      bool
	Referrer      *common.Address // nil for top-level trusted users
	ReferralCount uint64
	TotalEarned   *big.Int // cumulative amount ever minted via claims, base units
	LastClaimTime time.Time
	RegisteredAt  time.Time
}

// New creates a freshly registered user record. The accrual clock starts
// at registration time.
func New(address common.Address, username string, referrer *common.Address, now time.Time) *User {
	return &User{
		Address:       address,
		Username:      username,
		IsActive:      true,
		Referrer:      referrer,
		TotalEarned:   new(big.Int),
		LastClaimTime: now,
		RegisteredAt:  now,
	}
}

// NewTrusted creates a trusted user record with no referrer.
func NewTrusted(address common.Address, username string, now time.Time) *User {
	u := New(address, username, nil, now)
	u.IsTrusted = true
	return u
}

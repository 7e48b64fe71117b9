package distdb

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/pepae/BeerCoin-sub000/pkg/rewards"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

// UserDao is a data access object that maps directly to the 'users' table in PostgreSQL.
type UserDao struct {
	bun.BaseModel `bun:"table:users,alias:u"`
	Address       string    `bun:"address,pk,type:varchar(42)"`
	Username      string    `bun:"username,unique,notnull,type:varchar(64)"`
	IsTrusted     bool      `bun:"is_trusted,notnull,default:false"`
	IsActive      bool      `bun:"is_active,notnull,default:true"`
	Referrer      *string   `bun:"referrer,type:varchar(42)"`
	ReferralCount int64     `bun:"referral_count,notnull,default:0"`
	TotalEarned   string    `bun:"total_earned,notnull,type:numeric(78,0),default:'0'"`
	LastClaimTime time.Time `bun:"last_claim_time,notnull"`
	RegisteredAt  time.Time `bun:"registered_at,nullzero,default:current_timestamp"`
}

// BalanceDao maps to the 'balances' table.
type BalanceDao struct {
	bun.BaseModel `bun:"table:balances,alias:b"`
	Address       string `bun:"address,pk,type:varchar(42)"`
	Balance       string `bun:"balance,notnull,type:numeric(78,0),default:'0'"`
}

// AllowanceDao maps to the 'allowances' table.
type AllowanceDao struct {
	bun.BaseModel `bun:"table:allowances,alias:a"`
	Owner         string `bun:"owner,pk,type:varchar(42)"`
	Spender       string `bun:"spender,pk,type:varchar(42)"`
	Amount        string `bun:"amount,notnull,type:numeric(78,0),default:'0'"`
}

// SupplyDao maps to the single-row 'token_supply' table.
type SupplyDao struct {
	bun.BaseModel `bun:"table:token_supply,alias:s"`
	ID            int64  `bun:"id,pk"`
	TotalSupply   string `bun:"total_supply,notnull,type:numeric(78,0),default:'0'"`
	MaxSupply     string `bun:"max_supply,notnull,type:numeric(78,0)"`
}

// ParamsDao maps to the single-row 'distributor_params' table.
type ParamsDao struct {
	bun.BaseModel      `bun:"table:distributor_params,alias:p"`
	ID                 int64     `bun:"id,pk"`
	DistributionActive bool      `bun:"distribution_active,notnull"`
	BaseRewardRate     string    `bun:"base_reward_rate,notnull,type:numeric(78,0)"`
	ReferrerMultiplier int64     `bun:"referrer_multiplier,notnull"`
	MultiplierBase     int64     `bun:"multiplier_base,notnull"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// ClaimDao maps to the 'claims' audit table.
type ClaimDao struct {
	bun.BaseModel `bun:"table:claims,alias:c"`
	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	Address       string    `bun:"address,notnull,type:varchar(42)"`
	Amount        string    `bun:"amount,notnull,type:numeric(78,0)"`
	ClaimedAt     time.Time `bun:"claimed_at,notnull"`
}

// singletonRowID is the primary key of the token_supply and
// distributor_params single-row tables.
const singletonRowID = 1

func parseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric value in database: %q", s)
	}
	return v, nil
}

// toUserDao converts a user.User to UserDao.
func toUserDao(u *user.User) *UserDao {
	dao := &UserDao{
		Address:       u.Address.Hex(),
		Username:      u.Username,
		IsTrusted:     u.IsTrusted,
		IsActive:      u.IsActive,
		ReferralCount: int64(u.ReferralCount),
		TotalEarned:   "0",
		LastClaimTime: u.LastClaimTime,
		RegisteredAt:  u.RegisteredAt,
	}
	if u.TotalEarned != nil {
		dao.TotalEarned = u.TotalEarned.String()
	}
	if u.Referrer != nil {
		ref := u.Referrer.Hex()
		dao.Referrer = &ref
	}
	return dao
}

// toUser converts a UserDao to user.User.
func toUser(dao *UserDao) (*user.User, error) {
	earned, err := parseUnits(dao.TotalEarned)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		Address:       common.HexToAddress(dao.Address),
		Username:      dao.Username,
		IsTrusted:     dao.IsTrusted,
		IsActive:      dao.IsActive,
		ReferralCount: uint64(dao.ReferralCount),
		TotalEarned:   earned,
		LastClaimTime: dao.LastClaimTime,
		RegisteredAt:  dao.RegisteredAt,
	}
	if dao.Referrer != nil {
		ref := common.HexToAddress(*dao.Referrer)
		u.Referrer = &ref
	}
	return u, nil
}

func toParams(dao *ParamsDao) (*rewards.Params, error) {
	rate, err := parseUnits(dao.BaseRewardRate)
	if err != nil {
		return nil, err
	}
	return &rewards.Params{
		Active:             dao.DistributionActive,
		BaseRewardRate:     rate,
		ReferrerMultiplier: uint64(dao.ReferrerMultiplier),
		MultiplierBase:     uint64(dao.MultiplierBase),
	}, nil
}

func toClaim(dao *ClaimDao) (*rewards.Claim, error) {
	amount, err := parseUnits(dao.Amount)
	if err != nil {
		return nil, err
	}
	return &rewards.Claim{
		ID:        dao.ID,
		Address:   common.HexToAddress(dao.Address),
		Amount:    amount,
		ClaimedAt: dao.ClaimedAt,
	}, nil
}

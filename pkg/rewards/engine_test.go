package rewards

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pepae/BeerCoin-sub000/pkg/ledger"
	"github.com/pepae/BeerCoin-sub000/pkg/token"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

var (
	claimant = common.HexToAddress("0x1111111111111111111111111111111111111111")
	stranger = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeStore is an in-memory Store with the same settlement semantics as
// the Postgres implementation: SettleClaim is all-or-nothing and enforces
// the supply cap.
type fakeStore struct {
	users  map[common.Address]*user.User
	params *Params
	claims []*Claim
	total  *big.Int
	max    *big.Int
}

func newFakeStore(p *Params, maxSupply *big.Int) *fakeStore {
	return &fakeStore{
		users:  make(map[common.Address]*user.User),
		params: p,
		total:  new(big.Int),
		max:    maxSupply,
	}
}

func (f *fakeStore) GetUser(_ context.Context, addr common.Address) (*user.User, error) {
	u, ok := f.users[addr]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) Params(_ context.Context) (*Params, error) {
	cp := *f.params
	return &cp, nil
}

func (f *fakeStore) UpdateParams(_ context.Context, p *Params) error {
	cp := *p
	f.params = &cp
	return nil
}

func (f *fakeStore) SettleClaim(_ context.Context, addr common.Address, amount *big.Int, claimTime time.Time) error {
	u, ok := f.users[addr]
	if !ok {
		return user.ErrNotFound
	}

	next := new(big.Int).Add(f.total, amount)
	if next.Cmp(f.max) > 0 {
		return ledger.ErrSupplyCapExceeded
	}

	f.total = next
	u.TotalEarned = new(big.Int).Add(u.TotalEarned, amount)
	u.LastClaimTime = claimTime
	f.claims = append(f.claims, &Claim{
		ID:        uuid.New(),
		Address:   addr,
		Amount:    new(big.Int).Set(amount),
		ClaimedAt: claimTime,
	})
	return nil
}

func (f *fakeStore) ListClaims(_ context.Context, addr common.Address) ([]*Claim, error) {
	var out []*Claim
	for i := len(f.claims) - 1; i >= 0; i-- {
		if f.claims[i].Address == addr {
			out = append(out, f.claims[i])
		}
	}
	return out, nil
}

func amt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := token.ParseAmount(s)
	require.NoError(t, err)
	return v
}

// newTestEngine wires an engine over a fake store with the stock
// parameters: 0.001 BEER/sec, 1.5x bonus per referral, 1000 BEER cap.
func newTestEngine(t *testing.T) (*Engine, *fakeStore, *fakeClock) {
	t.Helper()

	params := &Params{
		Active:             true,
		BaseRewardRate:     amt(t, "0.001"),
		ReferrerMultiplier: 150,
		MultiplierBase:     100,
	}
	store := newFakeStore(params, amt(t, "1000"))

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	var mu sync.Mutex
	e := NewEngine(store, &mu, zap.NewNop(), WithClock(clock.Now))

	return e, store, clock
}

func registerUser(store *fakeStore, addr common.Address, referrals uint64, at time.Time) {
	store.users[addr] = &user.User{
		Address:       addr,
		Username:      "claimant",
		IsActive:      true,
		ReferralCount: referrals,
		TotalEarned:   new(big.Int),
		LastClaimTime: at,
		RegisteredAt:  at,
	}
}

func TestPendingRewardsBaseAccrual(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registerUser(store, claimant, 0, clock.Now())
	clock.Advance(1000 * time.Second)

	// 0.001 BEER/sec over 1000s with no referrals = 1 BEER.
	pending, err := e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "1"), pending)
}

func TestPendingRewardsReferralBonus(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registerUser(store, claimant, 2, clock.Now())
	clock.Advance(1000 * time.Second)

	// base 1 BEER, bonus 1 * 150 * 2 / 100 = 3 BEER, total 4 BEER.
	pending, err := e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "4"), pending)
}

func TestPendingRewardsMonotonic(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registerUser(store, claimant, 1, clock.Now())

	prev := new(big.Int)
	for i := 0; i < 5; i++ {
		clock.Advance(7 * time.Second)
		pending, err := e.PendingRewards(ctx, claimant)
		require.NoError(t, err)
		assert.Equal(t, 1, pending.Cmp(prev), "pending must grow while unclaimed")
		prev = pending
	}
}

func TestPendingRewardsZeroCases(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	// Unregistered address accrues nothing.
	pending, err := e.PendingRewards(ctx, stranger)
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Sign())

	// Inactive user accrues nothing.
	registerUser(store, claimant, 0, clock.Now())
	store.users[claimant].IsActive = false
	clock.Advance(time.Hour)

	pending, err = e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Sign())

	// Closed distribution gate suppresses accrual.
	store.users[claimant].IsActive = true
	store.params.Active = false

	pending, err = e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Sign())
}

func TestClaimSettles(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registerUser(store, claimant, 2, clock.Now())
	clock.Advance(1000 * time.Second)

	claimed, err := e.Claim(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "4"), claimed)

	// Settlement minted the amount and reset the accrual clock.
	assert.Equal(t, amt(t, "4"), store.total)
	assert.Equal(t, amt(t, "4"), store.users[claimant].TotalEarned)
	assert.Equal(t, clock.Now(), store.users[claimant].LastClaimTime)

	pending, err := e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Sign())

	// Accrual starts over from the claim time.
	clock.Advance(500 * time.Second)
	pending, err = e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "2"), pending)

	history, err := e.ClaimHistory(ctx, claimant)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, amt(t, "4"), history[0].Amount)
}

func TestClaimWithNothingPendingIsNoOp(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registered := clock.Now()
	registerUser(store, claimant, 0, registered)

	claimed, err := e.Claim(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, 0, claimed.Sign())

	// Nothing minted, no audit row, clock untouched.
	assert.Equal(t, 0, store.total.Sign())
	assert.Empty(t, store.claims)
	assert.Equal(t, registered, store.users[claimant].LastClaimTime)
}

func TestClaimErrors(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	// Unregistered claimant.
	_, err := e.Claim(ctx, stranger)
	assert.ErrorIs(t, err, user.ErrNotFound)

	// Kicked claimant.
	registerUser(store, claimant, 0, clock.Now())
	store.users[claimant].IsActive = false
	_, err = e.Claim(ctx, claimant)
	assert.ErrorIs(t, err, ErrUserNotActive)

	// Closed gate beats everything else.
	store.params.Active = false
	_, err = e.Claim(ctx, claimant)
	assert.ErrorIs(t, err, ErrDistributionInactive)
}

func TestClaimRespectsSupplyCap(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registerUser(store, claimant, 0, clock.Now())

	// Accrue past the 1000 BEER cap: 0.001/sec needs over 10^6 seconds.
	clock.Advance(2000000 * time.Second)

	before := store.users[claimant].LastClaimTime
	_, err := e.Claim(ctx, claimant)
	require.ErrorIs(t, err, ledger.ErrSupplyCapExceeded)

	// Failed settlement leaves no change.
	assert.Equal(t, 0, store.total.Sign())
	assert.Equal(t, before, store.users[claimant].LastClaimTime)
}

func TestKickSuppressesAccruedRewards(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registerUser(store, claimant, 0, clock.Now())
	clock.Advance(1000 * time.Second)

	// Rewards had accrued, then the user is kicked before claiming.
	store.users[claimant].IsActive = false

	pending, err := e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Sign())

	// Reinstatement resumes accrual over the whole unclaimed window.
	store.users[claimant].IsActive = true
	pending, err = e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "1"), pending)
}

func TestToggleDistribution(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	active, err := e.ToggleDistribution(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = e.ToggleDistribution(ctx)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestUpdateRewardRate(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registerUser(store, claimant, 0, clock.Now())

	require.NoError(t, e.UpdateRewardRate(ctx, amt(t, "0.002")))
	clock.Advance(1000 * time.Second)

	// The new rate applies to the whole unclaimed window.
	pending, err := e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "2"), pending)

	assert.ErrorIs(t, e.UpdateRewardRate(ctx, nil), ErrInvalidRate)
	assert.ErrorIs(t, e.UpdateRewardRate(ctx, big.NewInt(-1)), ErrInvalidRate)
}

func TestUpdateReferrerMultiplier(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	registerUser(store, claimant, 1, clock.Now())

	require.NoError(t, e.UpdateReferrerMultiplier(ctx, 200))
	clock.Advance(1000 * time.Second)

	// base 1 BEER, bonus 1 * 200 * 1 / 100 = 2 BEER.
	pending, err := e.PendingRewards(ctx, claimant)
	require.NoError(t, err)
	assert.Equal(t, amt(t, "3"), pending)

	assert.ErrorIs(t, e.UpdateReferrerMultiplier(ctx, 0), ErrInvalidMultiplier)
}

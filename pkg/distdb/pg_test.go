package distdb

import (
	"context"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pepae/BeerCoin-sub000/pkg/ledger"
	"github.com/pepae/BeerCoin-sub000/pkg/pgutil"
	mghelper "github.com/pepae/BeerCoin-sub000/pkg/pgutil/migrations"
	"github.com/pepae/BeerCoin-sub000/pkg/rewards"
	"github.com/pepae/BeerCoin-sub000/pkg/token"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

var (
	rootAddr  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	aliceAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bobAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func setupStore(t *testing.T, maxSupply string) (context.Context, *Store) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	err := mghelper.CreateSchema(ctx, db,
		&UserDao{}, &BalanceDao{}, &AllowanceDao{}, &SupplyDao{}, &ClaimDao{}, &ParamsDao{})
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	store := NewStore(db)

	cap := units(t, maxSupply)
	params := &rewards.Params{
		Active:             true,
		BaseRewardRate:     units(t, "0.001"),
		ReferrerMultiplier: 150,
		MultiplierBase:     100,
	}
	if err := store.EnsureSeeded(ctx, params, cap); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	return ctx, store
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}

	for _, sock := range candidates {
		if sock == "" {
			continue
		}
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}

	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed distdb tests")
}

func units(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := token.ParseAmount(s)
	if err != nil {
		t.Fatalf("failed to parse amount %q: %v", s, err)
	}
	return v
}

func seedRoot(t *testing.T, ctx context.Context, store *Store) {
	t.Helper()
	root := user.NewTrusted(rootAddr, "genesis", time.Now().UTC())
	if err := store.CreateUser(ctx, root); err != nil {
		t.Fatalf("failed to create root user: %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	ctx, store := setupStore(t, "1000")
	seedRoot(t, ctx, store)

	alice := user.New(aliceAddr, "alice", &rootAddr, time.Now().UTC())
	if err := store.CreateUser(ctx, alice); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	got, err := store.GetUser(ctx, aliceAddr)
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if got.Username != "alice" || !got.IsActive || got.IsTrusted {
		t.Fatalf("unexpected user record: %+v", got)
	}
	if got.Referrer == nil || *got.Referrer != rootAddr {
		t.Fatalf("referrer not persisted: %+v", got.Referrer)
	}
	if got.TotalEarned.Sign() != 0 {
		t.Fatalf("expected zero totalEarned, got %s", got.TotalEarned)
	}

	// CreateUser bumped the referrer's count in the same transaction.
	root, err := store.GetUser(ctx, rootAddr)
	if err != nil {
		t.Fatalf("failed to get root: %v", err)
	}
	if root.ReferralCount != 1 {
		t.Fatalf("expected referral count 1, got %d", root.ReferralCount)
	}

	taken, err := store.UsernameTaken(ctx, "alice")
	if err != nil {
		t.Fatalf("failed to check username: %v", err)
	}
	if !taken {
		t.Fatal("expected username to be taken")
	}

	if err := store.SetTrusted(ctx, aliceAddr, true); err != nil {
		t.Fatalf("failed to set trusted: %v", err)
	}
	if err := store.SetActive(ctx, aliceAddr, false); err != nil {
		t.Fatalf("failed to set active: %v", err)
	}

	got, err = store.GetUser(ctx, aliceAddr)
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if !got.IsTrusted || got.IsActive {
		t.Fatalf("flags not persisted: %+v", got)
	}

	total, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 users, got %d", total)
	}

	trustedCount, err := store.CountTrustedUsers(ctx)
	if err != nil {
		t.Fatalf("failed to count trusted users: %v", err)
	}
	if trustedCount != 2 {
		t.Fatalf("expected 2 trusted users, got %d", trustedCount)
	}

	trusted, err := store.ListTrustedUsers(ctx)
	if err != nil {
		t.Fatalf("failed to list trusted users: %v", err)
	}
	if len(trusted) != 2 || trusted[0].Address != rootAddr {
		t.Fatalf("unexpected trusted list: %+v", trusted)
	}
}

func TestGetUserNotFound(t *testing.T) {
	ctx, store := setupStore(t, "1000")

	_, err := store.GetUser(ctx, aliceAddr)
	if !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected user.ErrNotFound, got %v", err)
	}

	if err := store.SetActive(ctx, aliceAddr, false); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected user.ErrNotFound from SetActive, got %v", err)
	}
}

func TestMintTransferBurn(t *testing.T) {
	ctx, store := setupStore(t, "100")

	if err := store.Mint(ctx, aliceAddr, units(t, "60")); err != nil {
		t.Fatalf("failed to mint: %v", err)
	}

	// Over-cap mint fails and changes nothing.
	if err := store.Mint(ctx, aliceAddr, units(t, "50")); !errors.Is(err, ledger.ErrSupplyCapExceeded) {
		t.Fatalf("expected ErrSupplyCapExceeded, got %v", err)
	}

	total, max, err := store.Supply(ctx)
	if err != nil {
		t.Fatalf("failed to read supply: %v", err)
	}
	if total.Cmp(units(t, "60")) != 0 || max.Cmp(units(t, "100")) != 0 {
		t.Fatalf("unexpected supply: total=%s max=%s", total, max)
	}

	if err := store.Transfer(ctx, aliceAddr, bobAddr, units(t, "25")); err != nil {
		t.Fatalf("failed to transfer: %v", err)
	}

	// Overdraw fails and leaves both balances unchanged.
	if err := store.Transfer(ctx, bobAddr, aliceAddr, units(t, "26")); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	aliceBal, err := store.BalanceOf(ctx, aliceAddr)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	bobBal, err := store.BalanceOf(ctx, bobAddr)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if aliceBal.Cmp(units(t, "35")) != 0 || bobBal.Cmp(units(t, "25")) != 0 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", aliceBal, bobBal)
	}

	if err := store.Burn(ctx, bobAddr, units(t, "5")); err != nil {
		t.Fatalf("failed to burn: %v", err)
	}
	total, _, err = store.Supply(ctx)
	if err != nil {
		t.Fatalf("failed to read supply: %v", err)
	}
	if total.Cmp(units(t, "55")) != 0 {
		t.Fatalf("expected supply 55 after burn, got %s", total)
	}

	// Unknown addresses hold zero.
	zero, err := store.BalanceOf(ctx, rootAddr)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if zero.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", zero)
	}
}

func TestAllowanceAndBurnFrom(t *testing.T) {
	ctx, store := setupStore(t, "100")

	if err := store.Mint(ctx, aliceAddr, units(t, "10")); err != nil {
		t.Fatalf("failed to mint: %v", err)
	}
	if err := store.Approve(ctx, aliceAddr, bobAddr, units(t, "4")); err != nil {
		t.Fatalf("failed to approve: %v", err)
	}

	allowed, err := store.Allowance(ctx, aliceAddr, bobAddr)
	if err != nil {
		t.Fatalf("failed to read allowance: %v", err)
	}
	if allowed.Cmp(units(t, "4")) != 0 {
		t.Fatalf("expected allowance 4, got %s", allowed)
	}

	if err := store.BurnFrom(ctx, aliceAddr, bobAddr, units(t, "3")); err != nil {
		t.Fatalf("failed to burn from: %v", err)
	}

	allowed, err = store.Allowance(ctx, aliceAddr, bobAddr)
	if err != nil {
		t.Fatalf("failed to reload allowance: %v", err)
	}
	if allowed.Cmp(units(t, "1")) != 0 {
		t.Fatalf("expected allowance 1 after burn, got %s", allowed)
	}

	if err := store.BurnFrom(ctx, aliceAddr, bobAddr, units(t, "2")); !errors.Is(err, ledger.ErrAllowanceExceeded) {
		t.Fatalf("expected ErrAllowanceExceeded, got %v", err)
	}

	// Re-approval overwrites rather than accumulates.
	if err := store.Approve(ctx, aliceAddr, bobAddr, units(t, "9")); err != nil {
		t.Fatalf("failed to re-approve: %v", err)
	}
	allowed, err = store.Allowance(ctx, aliceAddr, bobAddr)
	if err != nil {
		t.Fatalf("failed to reload allowance: %v", err)
	}
	if allowed.Cmp(units(t, "9")) != 0 {
		t.Fatalf("expected allowance 9, got %s", allowed)
	}
}

func TestParamsPersistence(t *testing.T) {
	ctx, store := setupStore(t, "1000")

	p, err := store.Params(ctx)
	if err != nil {
		t.Fatalf("failed to load params: %v", err)
	}
	if !p.Active || p.ReferrerMultiplier != 150 || p.MultiplierBase != 100 {
		t.Fatalf("unexpected seeded params: %+v", p)
	}
	if p.BaseRewardRate.Cmp(units(t, "0.001")) != 0 {
		t.Fatalf("unexpected seeded rate: %s", p.BaseRewardRate)
	}

	p.Active = false
	p.ReferrerMultiplier = 200
	if err := store.UpdateParams(ctx, p); err != nil {
		t.Fatalf("failed to update params: %v", err)
	}

	// Re-seeding must not clobber the admin update.
	err = store.EnsureSeeded(ctx, &rewards.Params{
		Active:             true,
		BaseRewardRate:     units(t, "0.5"),
		ReferrerMultiplier: 150,
		MultiplierBase:     100,
	}, units(t, "1000"))
	if err != nil {
		t.Fatalf("failed to re-seed: %v", err)
	}

	p, err = store.Params(ctx)
	if err != nil {
		t.Fatalf("failed to reload params: %v", err)
	}
	if p.Active || p.ReferrerMultiplier != 200 {
		t.Fatalf("re-seeding overwrote admin update: %+v", p)
	}
}

func TestSettleClaim(t *testing.T) {
	ctx, store := setupStore(t, "100")
	seedRoot(t, ctx, store)

	claimTime := time.Now().UTC().Truncate(time.Microsecond)
	if err := store.SettleClaim(ctx, rootAddr, units(t, "7"), claimTime); err != nil {
		t.Fatalf("failed to settle claim: %v", err)
	}

	u, err := store.GetUser(ctx, rootAddr)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if u.TotalEarned.Cmp(units(t, "7")) != 0 {
		t.Fatalf("expected totalEarned 7, got %s", u.TotalEarned)
	}
	if u.LastClaimTime.UTC().Unix() != claimTime.Unix() {
		t.Fatalf("accrual clock not reset: got %v want %v", u.LastClaimTime, claimTime)
	}

	balance, err := store.BalanceOf(ctx, rootAddr)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance.Cmp(units(t, "7")) != 0 {
		t.Fatalf("expected balance 7, got %s", balance)
	}

	total, _, err := store.Supply(ctx)
	if err != nil {
		t.Fatalf("failed to read supply: %v", err)
	}
	if total.Cmp(units(t, "7")) != 0 {
		t.Fatalf("expected total supply 7, got %s", total)
	}

	claims, err := store.ListClaims(ctx, rootAddr)
	if err != nil {
		t.Fatalf("failed to list claims: %v", err)
	}
	if len(claims) != 1 || claims[0].Amount.Cmp(units(t, "7")) != 0 {
		t.Fatalf("unexpected claim history: %+v", claims)
	}
}

func TestSettleClaimRollsBackOnCapBreach(t *testing.T) {
	ctx, store := setupStore(t, "10")
	seedRoot(t, ctx, store)

	if err := store.SettleClaim(ctx, rootAddr, units(t, "8"), time.Now().UTC()); err != nil {
		t.Fatalf("failed to settle first claim: %v", err)
	}

	err := store.SettleClaim(ctx, rootAddr, units(t, "5"), time.Now().UTC())
	if !errors.Is(err, ledger.ErrSupplyCapExceeded) {
		t.Fatalf("expected ErrSupplyCapExceeded, got %v", err)
	}

	// The failed settlement must leave every table untouched.
	u, err := store.GetUser(ctx, rootAddr)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if u.TotalEarned.Cmp(units(t, "8")) != 0 {
		t.Fatalf("expected totalEarned 8 after rollback, got %s", u.TotalEarned)
	}

	claims, err := store.ListClaims(ctx, rootAddr)
	if err != nil {
		t.Fatalf("failed to list claims: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("expected 1 claim after rollback, got %d", len(claims))
	}

	if err := store.SettleClaim(ctx, aliceAddr, units(t, "1"), time.Now().UTC()); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected user.ErrNotFound for unknown claimant, got %v", err)
	}
}

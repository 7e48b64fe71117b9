// Package api implements app.Runner for the distributor server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/pepae/BeerCoin-sub000/pkg/app/http"
	"github.com/pepae/BeerCoin-sub000/pkg/auth"
	"github.com/pepae/BeerCoin-sub000/pkg/config"
	"github.com/pepae/BeerCoin-sub000/pkg/distdb"
	"github.com/pepae/BeerCoin-sub000/pkg/ledger"
	ledgerservice "github.com/pepae/BeerCoin-sub000/pkg/ledger/service"
	"github.com/pepae/BeerCoin-sub000/pkg/pgutil"
	"github.com/pepae/BeerCoin-sub000/pkg/registry"
	registryservice "github.com/pepae/BeerCoin-sub000/pkg/registry/service"
	"github.com/pepae/BeerCoin-sub000/pkg/rewards"
	rewardsservice "github.com/pepae/BeerCoin-sub000/pkg/rewards/service"
	"github.com/pepae/BeerCoin-sub000/pkg/token"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the distributor server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new distributor server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("distributor config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting BeerCoin distributor",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()

	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	store := distdb.NewStore(db)

	if err := s.seedParams(ctx, store); err != nil {
		return err
	}

	meta := token.Metadata{
		Name:     cfg.Token.Name,
		Symbol:   cfg.Token.Symbol,
		Decimals: cfg.Token.Decimals,
	}

	// One coarse write lock serializes all mutating operations across the
	// ledger, the registry and the reward engine.
	var mu sync.Mutex

	tokenLedger := ledger.New(store, meta, &mu, logger)
	userRegistry := registry.New(store, &mu, logger)
	rewardEngine := rewards.NewEngine(store, &mu, logger)

	// The reward engine is the only holder of mint authority. Settlement
	// goes through the store transaction, so the handle is claimed here
	// only to make a second grant impossible.
	if _, err := tokenLedger.GrantMintAuthority(); err != nil {
		return fmt.Errorf("grant mint authority: %w", err)
	}

	if err := s.bootstrapTrustedUsers(ctx, userRegistry, logger); err != nil {
		return err
	}

	router := s.setupRouter(tokenLedger, userRegistry, rewardEngine, logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

// seedParams inserts the supply and parameter rows on first start. Admin
// updates take precedence on every later start.
func (s *Server) seedParams(ctx context.Context, store *distdb.Store) error {
	rate, err := token.ParseAmount(s.cfg.Distribution.BaseRewardRate)
	if err != nil {
		return fmt.Errorf("invalid distribution.base_reward_rate: %w", err)
	}

	maxSupply, err := token.ParseAmount(s.cfg.Token.MaxSupply)
	if err != nil {
		return fmt.Errorf("invalid token.max_supply: %w", err)
	}

	params := &rewards.Params{
		Active:             s.cfg.Distribution.Active,
		BaseRewardRate:     rate,
		ReferrerMultiplier: s.cfg.Distribution.ReferrerMultiplier,
		MultiplierBase:     s.cfg.Distribution.MultiplierBase,
	}

	if err := store.EnsureSeeded(ctx, params, maxSupply); err != nil {
		return fmt.Errorf("seed distributor params: %w", err)
	}
	return nil
}

func (s *Server) setupRouter(
	tokenLedger *ledger.Ledger,
	userRegistry *registry.Registry,
	rewardEngine *rewards.Engine,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	rewardService := rewardsservice.NewLog(rewardEngine, logger)

	registryservice.RegisterRoutes(r, registryservice.NewLog(userRegistry, logger), logger)
	rewardsservice.RegisterRoutes(r, rewardService, logger)
	ledgerservice.RegisterRoutes(r, tokenLedger, logger)

	// Admin endpoints behind JWT bearer auth
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(auth.AdminAuth(s.cfg.Admin.JWTSecret))
		registryservice.RegisterAdminRoutes(ar, userRegistry, logger)
		rewardsservice.RegisterAdminRoutes(ar, rewardService, logger)
	})

	return r
}

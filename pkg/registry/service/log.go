package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pepae/BeerCoin-sub000/pkg/registry"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

const serviceName = "RegistryService"

// logService wraps registry.Service with automatic logging of all method calls
type logService struct {
	svc    registry.Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the registry Service.
// It logs method entry/exit, duration and errors.
func NewLog(svc registry.Service, logger *zap.Logger) registry.Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) RegisterSelf(
	ctx context.Context,
	caller common.Address,
	username string,
	referrer common.Address,
) (u *user.User, err error) {
	start := time.Now()

	ls.logger.Info("RegisterSelf started",
		zap.String("service", serviceName),
		zap.String("caller", caller.Hex()),
		zap.String("username", username),
		zap.String("referrer", referrer.Hex()),
	)

	defer func() {
		ls.logOutcome("RegisterSelf", start, err,
			zap.String("caller", caller.Hex()),
			zap.String("username", username),
		)
	}()

	return ls.svc.RegisterSelf(ctx, caller, username, referrer)
}

func (ls *logService) RegisterByTrusted(
	ctx context.Context,
	caller, newUser common.Address,
	username string,
) (u *user.User, err error) {
	start := time.Now()

	ls.logger.Info("RegisterByTrusted started",
		zap.String("service", serviceName),
		zap.String("caller", caller.Hex()),
		zap.String("new_user", newUser.Hex()),
		zap.String("username", username),
	)

	defer func() {
		ls.logOutcome("RegisterByTrusted", start, err,
			zap.String("caller", caller.Hex()),
			zap.String("new_user", newUser.Hex()),
		)
	}()

	return ls.svc.RegisterByTrusted(ctx, caller, newUser, username)
}

func (ls *logService) AddTrustedUser(
	ctx context.Context,
	addr common.Address,
	username string,
) (u *user.User, err error) {
	start := time.Now()

	ls.logger.Info("AddTrustedUser started",
		zap.String("service", serviceName),
		zap.String("address", addr.Hex()),
		zap.String("username", username),
	)

	defer func() {
		ls.logOutcome("AddTrustedUser", start, err, zap.String("address", addr.Hex()))
	}()

	return ls.svc.AddTrustedUser(ctx, addr, username)
}

func (ls *logService) RemoveTrustedUser(ctx context.Context, addr common.Address) (err error) {
	start := time.Now()

	ls.logger.Info("RemoveTrustedUser started",
		zap.String("service", serviceName),
		zap.String("address", addr.Hex()),
	)

	defer func() {
		ls.logOutcome("RemoveTrustedUser", start, err, zap.String("address", addr.Hex()))
	}()

	return ls.svc.RemoveTrustedUser(ctx, addr)
}

func (ls *logService) KickUser(ctx context.Context, addr common.Address) (err error) {
	start := time.Now()

	ls.logger.Info("KickUser started",
		zap.String("service", serviceName),
		zap.String("address", addr.Hex()),
	)

	defer func() {
		ls.logOutcome("KickUser", start, err, zap.String("address", addr.Hex()))
	}()

	return ls.svc.KickUser(ctx, addr)
}

// Read-only methods are logged at debug level to keep the log volume down.

func (ls *logService) GetUserInfo(ctx context.Context, addr common.Address) (*user.User, error) {
	ls.logger.Debug("GetUserInfo",
		zap.String("service", serviceName),
		zap.String("address", addr.Hex()),
	)
	return ls.svc.GetUserInfo(ctx, addr)
}

func (ls *logService) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	ls.logger.Debug("IsUsernameAvailable",
		zap.String("service", serviceName),
		zap.String("username", username),
	)
	return ls.svc.IsUsernameAvailable(ctx, username)
}

func (ls *logService) Stats(ctx context.Context) (*registry.Stats, error) {
	ls.logger.Debug("Stats", zap.String("service", serviceName))
	return ls.svc.Stats(ctx)
}

func (ls *logService) TrustedUsers(ctx context.Context) ([]*user.User, error) {
	ls.logger.Debug("TrustedUsers", zap.String("service", serviceName))
	return ls.svc.TrustedUsers(ctx)
}

func (ls *logService) logOutcome(method string, start time.Time, err error, fields ...zap.Field) {
	duration := time.Since(start)

	base := []zap.Field{
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", duration),
	}
	base = append(base, fields...)

	if err != nil {
		ls.logger.Error(method+" failed", append(base, zap.Error(err))...)
		return
	}
	ls.logger.Info(method+" completed", base...)
}

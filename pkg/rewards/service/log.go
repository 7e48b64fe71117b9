package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pepae/BeerCoin-sub000/pkg/rewards"
)

const serviceName = "RewardService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the reward Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) Claim(ctx context.Context, caller common.Address) (amount *big.Int, err error) {
	start := time.Now()

	ls.logger.Info("Claim started",
		zap.String("service", serviceName),
		zap.String("caller", caller.Hex()),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("Claim failed",
				zap.String("service", serviceName),
				zap.String("caller", caller.Hex()),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ls.logger.Info("Claim completed",
			zap.String("service", serviceName),
			zap.String("caller", caller.Hex()),
			zap.String("amount", amount.String()),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.Claim(ctx, caller)
}

func (ls *logService) ToggleDistribution(ctx context.Context) (active bool, err error) {
	start := time.Now()

	ls.logger.Info("ToggleDistribution started", zap.String("service", serviceName))

	defer func() {
		ls.logOutcome("ToggleDistribution", start, err, zap.Bool("active", active))
	}()

	return ls.svc.ToggleDistribution(ctx)
}

func (ls *logService) UpdateRewardRate(ctx context.Context, rate *big.Int) (err error) {
	start := time.Now()

	ls.logger.Info("UpdateRewardRate started",
		zap.String("service", serviceName),
		zap.String("rate", rate.String()),
	)

	defer func() {
		ls.logOutcome("UpdateRewardRate", start, err, zap.String("rate", rate.String()))
	}()

	return ls.svc.UpdateRewardRate(ctx, rate)
}

func (ls *logService) UpdateReferrerMultiplier(ctx context.Context, multiplier uint64) (err error) {
	start := time.Now()

	ls.logger.Info("UpdateReferrerMultiplier started",
		zap.String("service", serviceName),
		zap.Uint64("multiplier", multiplier),
	)

	defer func() {
		ls.logOutcome("UpdateReferrerMultiplier", start, err, zap.Uint64("multiplier", multiplier))
	}()

	return ls.svc.UpdateReferrerMultiplier(ctx, multiplier)
}

// Read-only methods are logged at debug level to keep the log volume down.

func (ls *logService) PendingRewards(ctx context.Context, addr common.Address) (*big.Int, error) {
	ls.logger.Debug("PendingRewards",
		zap.String("service", serviceName),
		zap.String("address", addr.Hex()),
	)
	return ls.svc.PendingRewards(ctx, addr)
}

func (ls *logService) ClaimHistory(ctx context.Context, addr common.Address) ([]*rewards.Claim, error) {
	ls.logger.Debug("ClaimHistory",
		zap.String("service", serviceName),
		zap.String("address", addr.Hex()),
	)
	return ls.svc.ClaimHistory(ctx, addr)
}

func (ls *logService) DistributionParams(ctx context.Context) (*rewards.Params, error) {
	ls.logger.Debug("DistributionParams", zap.String("service", serviceName))
	return ls.svc.DistributionParams(ctx)
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

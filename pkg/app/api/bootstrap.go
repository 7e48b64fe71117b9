package api

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pepae/BeerCoin-sub000/pkg/auth"
	"github.com/pepae/BeerCoin-sub000/pkg/registry"
)

// bootstrapFile is the YAML shape of distribution.bootstrap_file. It seeds
// the initial trusted users, the root of the referral graph.
type bootstrapFile struct {
	TrustedUsers []bootstrapUser `yaml:"trusted_users"`
}

type bootstrapUser struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
}

// bootstrapTrustedUsers loads the optional bootstrap file and registers each
// listed address as a trusted user. Addresses that already hold a record are
// left as-is, so the file can stay in place across restarts.
func (s *Server) bootstrapTrustedUsers(
	ctx context.Context,
	svc registry.Service,
	logger *zap.Logger,
) error {
	path := s.cfg.Distribution.BootstrapFile
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bootstrap file %s: %w", path, err)
	}

	var bf bootstrapFile
	if err := yaml.Unmarshal(raw, &bf); err != nil {
		return fmt.Errorf("parse bootstrap file %s: %w", path, err)
	}

	for _, bu := range bf.TrustedUsers {
		addr, err := auth.ParseAddress(bu.Address)
		if err != nil {
			return fmt.Errorf("bootstrap file %s: invalid address %q: %w", path, bu.Address, err)
		}

		if _, err := svc.AddTrustedUser(ctx, addr, bu.Username); err != nil {
			if errors.Is(err, registry.ErrUsernameTaken) {
				// Someone else took the name since the file was written.
				logger.Warn("Skipping bootstrap user, username taken",
					zap.String("address", addr.Hex()),
					zap.String("username", bu.Username),
				)
				continue
			}
			return fmt.Errorf("bootstrap trusted user %s: %w", addr.Hex(), err)
		}
	}

	if len(bf.TrustedUsers) > 0 {
		logger.Info("Bootstrapped trusted users",
			zap.Int("count", len(bf.TrustedUsers)),
			zap.String("file", path),
		)
	}
	return nil
}

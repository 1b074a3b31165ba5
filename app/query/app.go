package query

import (
	"context"

	"github.com/vaultscan/holderx/app/query/types"
	"github.com/vaultscan/holderx/pkg/cache"
	"github.com/vaultscan/holderx/pkg/holdings"
	"github.com/vaultscan/holderx/pkg/indexed"
	"github.com/vaultscan/holderx/pkg/logging"
	"github.com/vaultscan/holderx/pkg/reconstruct"
	"github.com/vaultscan/holderx/pkg/registry"
	"github.com/vaultscan/holderx/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	source := indexed.Shared(logger)

	reg, err := registry.New(logger, utils.Env("VAULTS_CONFIG", "vaults.json"))
	if err != nil {
		logger.Fatal("Unable to load vault topology registry", zap.Error(err))
	}
	if err := reg.StartRefresh(utils.Env("REGISTRY_REFRESH", "@every 5m")); err != nil {
		logger.Fatal("Unable to schedule topology refresh", zap.Error(err))
	}

	// The cache is optional; a nil client degrades to recomputation.
	cacheClient, err := cache.NewClient(ctx, logger)
	if err != nil {
		logger.Warn("Failed to initialize response cache - every request will recompute", zap.Error(err))
		cacheClient = nil
	}

	rec := reconstruct.New(source, logger)

	return &types.App{
		Source:        source,
		Registry:      reg,
		Reconstructor: rec,
		Holdings:      holdings.NewService(rec, logger),
		Cache:         cacheClient,
		Logger:        logger,
	}
}

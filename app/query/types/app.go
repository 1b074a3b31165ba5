package types

import (
	"context"
	"net/http"
	"time"

	"github.com/vaultscan/holderx/pkg/cache"
	"github.com/vaultscan/holderx/pkg/holdings"
	"github.com/vaultscan/holderx/pkg/indexed"
	"github.com/vaultscan/holderx/pkg/reconstruct"
	"github.com/vaultscan/holderx/pkg/registry"
	"go.uber.org/zap"
)

type App struct {
	Source        *indexed.Client
	Registry      *registry.Registry
	Reconstructor *reconstruct.Reconstructor
	Holdings      *holdings.Service
	Cache         *cache.Client
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start starts the application and blocks until the context is cancelled,
// then shuts the server down gracefully.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.Registry.Stop()
	if err := a.Cache.Close(); err != nil {
		a.Logger.Error("Failed to close cache connection", zap.Error(err))
	}
	a.Source.Close()

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}

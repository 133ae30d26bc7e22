package app

import (
	"context"
	"fmt"

	"maveretta/internal/config"
	"maveretta/internal/logger"
	"maveretta/internal/store"
	apihttp "maveretta/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App wires the decision engine and the HTTP surface together and
// runs them as a unit.
type App struct {
	cfg    *config.Config
	engine *Engine
	server *apihttp.Server
	logs   store.Store
}

// NewApp builds the application from configuration without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts the engine and the HTTP server and blocks until ctx is
// cancelled or either of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer func() {
		if a.logs != nil {
			if err := a.logs.Close(); err != nil {
				logger.Warnf("closing store: %v", err)
			}
		}
	}()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return a.engine.Run(ctx)
	})

	return group.Wait()
}

// Engine exposes the decision engine (for replay harnesses).
func (a *App) Engine() *Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

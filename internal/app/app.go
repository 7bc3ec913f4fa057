// Package app wires configuration, storage, the registry cache, the
// dispatcher and the protocol server into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/golovatskygroup/mcp-toolkit/internal/apitool"
	"github.com/golovatskygroup/mcp-toolkit/internal/builtins"
	"github.com/golovatskygroup/mcp-toolkit/internal/config"
	"github.com/golovatskygroup/mcp-toolkit/internal/dispatch"
	"github.com/golovatskygroup/mcp-toolkit/internal/httpcache"
	"github.com/golovatskygroup/mcp-toolkit/internal/metrics"
	"github.com/golovatskygroup/mcp-toolkit/internal/registry"
	"github.com/golovatskygroup/mcp-toolkit/internal/script"
	"github.com/golovatskygroup/mcp-toolkit/internal/server"
	"github.com/golovatskygroup/mcp-toolkit/internal/store"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

type App struct {
	Config     config.Config
	Metrics    *metrics.Metrics
	Store      tool.Store
	Cache      *registry.Cache
	Dispatcher *dispatch.Dispatcher
	Server     *server.Server
}

// New opens the configured store and builds every component. The registry is
// loaded once before New returns; a store that cannot be read at startup is
// logged and retried on the next call rather than failing startup.
func New(ctx context.Context, cfg config.Config, version string) (*App, error) {
	m := metrics.New()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open tool store: %w", err)
	}

	cache := registry.New(st, cfg.Registry.StalenessWindow, registry.WithMetrics(m))
	if snap, err := cache.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial registry load failed")
	} else {
		log.Info().
			Int("custom_tools", len(snap.Entries)).
			Int("broken", len(snap.Broken())).
			Msg("registry loaded")
	}

	set, err := tool.NewBuiltinSet(builtins.All()...)
	if err != nil {
		closeStore(st)
		return nil, err
	}

	client := &http.Client{
		Timeout:   cfg.API.Timeout,
		Transport: httpcache.NewTransport(http.DefaultTransport, cfg.API.Cache, m),
	}

	disp, err := dispatch.New(set, cache,
		script.NewRunner(cfg.Script.Timeout),
		apitool.NewCaller(client, cfg.API.UserAgent),
		dispatch.WithMetrics(m),
	)
	if err != nil {
		closeStore(st)
		return nil, err
	}

	srv := server.New(disp, server.Options{
		MaxConcurrency: cfg.Server.MaxConcurrency,
		Version:        version,
	})

	return &App{
		Config:     cfg,
		Metrics:    m,
		Store:      st,
		Cache:      cache,
		Dispatcher: disp,
		Server:     srv,
	}, nil
}

// Serve runs the configured transport, plus the tool directory watcher for
// the local store, until ctx is cancelled or the stdio input ends.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(gctx)
	defer cancel()

	if fs, ok := a.Store.(*store.FileStore); ok && a.Config.Store.Watch {
		w, err := store.NewWatcher(fs.Dir(), 0, a.Dispatcher.NotifyToolsChanged)
		if err != nil {
			log.Warn().Err(err).Msg("tool directory watcher disabled")
		} else {
			g.Go(func() error { return w.Run(ctx) })
		}
	}

	g.Go(func() error {
		// The watcher stops with the transport.
		defer cancel()
		switch a.Config.Server.Transport {
		case "http":
			return a.Server.ListenAndServe(ctx, a.Config.Server.Addr, a.Metrics)
		default:
			log.Info().Msg("stdio transport ready")
			err := a.Server.ServeStdio(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	})

	return g.Wait()
}

// Close releases the store.
func (a *App) Close() error {
	return closeStore(a.Store)
}

func closeStore(st tool.Store) error {
	if c, ok := st.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tetris-lite/apps/server/internal/config"
	"tetris-lite/apps/server/internal/gateway"
	"tetris-lite/apps/server/internal/httpapi"
	"tetris-lite/apps/server/internal/identity"
	"tetris-lite/apps/server/internal/lobby"
	"tetris-lite/apps/server/internal/results"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, resultsMode, err := results.NewStoreFromEnv(cfg.ResultsMode)
	if err != nil {
		return fmt.Errorf("init results store: %w", err)
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	resolver, identityMode, err := identity.NewResolverFromEnv()
	if err != nil {
		return fmt.Errorf("init identity: %w", err)
	}

	lby := lobby.New(lobby.Options{
		Config: cfg.Match,
		Store:  store,
		Logger: logger,
		Reporter: func(matchID string, err error) {
			logger.Error("match failed", zap.String("match", matchID), zap.Error(err))
		},
	})
	gw := gateway.New(gateway.Options{
		Lobby:          lby,
		Resolver:       resolver,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Lobby:      lby,
			Store:      store,
			WebSocket:  gw.HandleWebSocket,
			AdminToken: cfg.AdminToken,
			Logger:     logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server",
		zap.String("addr", cfg.Addr),
		zap.String("results", resultsMode),
		zap.String("identity", identityMode),
		zap.Int("tick_rate", cfg.Match.TickRate),
		zap.Int("capacity", cfg.Match.Capacity),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("grace", cfg.ShutdownGrace))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		// Matches end first so clients still receive the final event.
		err := lby.Shutdown(shutdownCtx)
		err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		gw.CloseAll()
		return err
	})
	return g.Wait()
}

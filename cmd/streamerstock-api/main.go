package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamerstock/internal/api"
	"streamerstock/internal/auth"
	"streamerstock/internal/config"
	"streamerstock/internal/session"
	"streamerstock/internal/store"
	"streamerstock/internal/store/postgres"
	"streamerstock/internal/store/sqlite"
	"streamerstock/internal/syncq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		slog.Error("init logger", "err", err)
		os.Exit(1)
	}

	sess := session.New(session.Options{
		Provider:        newProvider(cfg, logger),
		Store:           newStore(cfg),
		Writer:          syncq.NewWriter(logger, syncq.DefaultCapacity),
		Logger:          logger,
		Seed:            cfg.Seed,
		MarketTickEvery: cfg.MarketTickEvery,
		AutosaveEvery:   cfg.AutosaveEvery,
	})
	if err := sess.Start(ctx); err != nil {
		logger.Error("session start failed", "err", err)
		os.Exit(1)
	}

	server := api.New(logger, sess)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("streamerstock api listening", "addr", cfg.Addr, "store", cfg.Store, "auth", cfg.AuthProvider)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		logger.Error("pending saves lost on shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("streamerstock api stopped")
}

func newStore(cfg config.APIConfig) store.Store {
	if cfg.Store == config.StorePostgres {
		return postgres.New(cfg.DatabaseURL)
	}
	return sqlite.New(cfg.SQLitePath)
}

func newProvider(cfg config.APIConfig, logger *slog.Logger) auth.Provider {
	creds := auth.NewFileCredentials(cfg.DataDir)
	if cfg.AuthProvider == config.AuthTwitch {
		return auth.NewTwitch(auth.TwitchConfig{
			ClientID:      cfg.TwitchClientID,
			InitialPoints: cfg.TwitchInitialPoints,
			Prompt: func(userCode, verificationURL string) {
				logger.Info("twitch sign-in pending", "user_code", userCode, "verification_url", verificationURL)
				fmt.Fprintf(os.Stderr, "\nOpen %s and enter code %s\n\n", verificationURL, userCode)
			},
		}, creds, logger)
	}
	identity := auth.Identity{ID: cfg.MockLogin, Login: cfg.MockLogin}
	return auth.NewMock(identity, cfg.MockPoints, creds)
}

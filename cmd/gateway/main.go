// Package main provides the gateway binary that serves presence and
// matchmaking clients over WebSocket.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/riftgate/server/internal/auth"
	"github.com/riftgate/server/internal/config"
	"github.com/riftgate/server/internal/gateway"
	"github.com/riftgate/server/internal/matchmaker"
	"github.com/riftgate/server/internal/observability"
	"github.com/riftgate/server/internal/presence"
	"github.com/riftgate/server/internal/server"
	"github.com/riftgate/server/internal/store"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	seedPath := flag.String("accounts", "", "path to account seed YAML file; empty = start with no accounts")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting gateway",
		zap.String("addr", cfg.Gateway.Addr()),
		zap.String("domain", cfg.Gateway.Domain),
	)

	accounts := store.NewMemory()
	if *seedPath != "" {
		seedStart := time.Now()
		accounts, err = store.LoadFromFile(*seedPath)
		if err != nil {
			logger.Fatal("loading account seed", zap.Error(err))
		}
		logger.Info("account seed loaded",
			zap.String("path", *seedPath),
			zap.Duration("elapsed", time.Since(seedStart)),
		)
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	registry := presence.NewRegistry()

	presenceHandler := presence.NewHandler(cfg.Gateway.Domain, verifier, accounts, accounts, registry, logger)
	matchmakerHandler := matchmaker.NewHandler(cfg.Matchmaker, logger)

	acceptor := gateway.NewAcceptor(cfg.Gateway,
		gateway.HandlerFunc(func(ctx context.Context, conn *gateway.Conn) {
			presenceHandler.HandleSession(ctx, conn)
		}),
		gateway.HandlerFunc(func(ctx context.Context, conn *gateway.Conn) {
			matchmakerHandler.HandleSession(ctx, conn)
		}),
		logger,
	)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("gateway", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("gateway initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

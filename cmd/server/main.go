package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oggyb/swipecook/internal/app"
	"github.com/oggyb/swipecook/internal/auth"
	"github.com/oggyb/swipecook/internal/cache"
	"github.com/oggyb/swipecook/internal/config"
	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/logger"
	"github.com/oggyb/swipecook/internal/metrics"
	"github.com/oggyb/swipecook/internal/realtime"
	"github.com/oggyb/swipecook/internal/repository"
	"github.com/oggyb/swipecook/internal/server"
	"github.com/oggyb/swipecook/internal/service/matching"
	"github.com/oggyb/swipecook/internal/supervisor"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(database); err != nil {
		log.Error("failed to migrate", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, 3, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	appCtx := app.New(cfg, database, redisCache, log, metrics.New())
	identifier := auth.NewIdentifier(cfg.Auth.JWTSecret)
	if identifier.TrustsHeaders() {
		log.Warn("AUTH_JWT_SECRET is empty, trusting X-User-ID headers")
	}

	hub := realtime.NewHub(appCtx, repository.NewUserRepository(database), realtime.OptionsFromConfig(cfg))
	svc := matching.NewService(appCtx, matching.WithRouter(hub))
	registrar := matching.NewRegistrar(svc)

	grpcServer, health := server.NewGRPCServer(identifier, logger.Component(log, "grpc"), registrar)
	router := server.NewRouter(server.RouterDeps{
		Config:     cfg,
		DB:         database,
		Cache:      redisCache,
		Metrics:    appCtx.Metrics,
		Identifier: identifier,
		Live:       realtime.HandleWebSocket(hub, identifier),
		Routes:     []server.RouteRegistrar{registrar},
	})

	tree := supervisor.NewTree(logger.Component(log, "supervisor"), supervisor.TreeConfig{})
	tree.AddBackgroundService(hub)
	tree.AddBackgroundService(matching.NewSweeper(svc, cfg.Match.SweepInterval))
	tree.AddAPIService(server.NewGRPCService(cfg, grpcServer, health, log))
	tree.AddAPIService(supervisor.NewHTTPService("http-server", server.NewHTTPServer(cfg, router), 0))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "grpc", cfg.GRPC.Host+":"+cfg.GRPC.Port, "http", cfg.HTTP.Host+":"+cfg.HTTP.Port)
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error("supervisor exited", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

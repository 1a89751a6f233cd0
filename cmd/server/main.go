package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-food-rescue/internal/clock"
	"github.com/iliyamo/campus-food-rescue/internal/config"
	"github.com/iliyamo/campus-food-rescue/internal/database"
	"github.com/iliyamo/campus-food-rescue/internal/handler"
	"github.com/iliyamo/campus-food-rescue/internal/notifier"
	"github.com/iliyamo/campus-food-rescue/internal/queue"
	"github.com/iliyamo/campus-food-rescue/internal/repository"
	"github.com/iliyamo/campus-food-rescue/internal/reservation"
	"github.com/iliyamo/campus-food-rescue/internal/router"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store  reservation.ListingStore
		ledger reservation.ClaimLedger
		stats  *handler.StatsHandler
	)
	switch cfg.StoreBackend {
	case config.BackendMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("schema: %v", err)
		}
		listings := repository.NewListingRepo(db)
		claims := repository.NewClaimRepo(db)
		store, ledger = listings, claims
		stats = handler.NewStatsHandler(listings, claims)
	case config.BackendMemory:
		listings := repository.NewMemoryListingStore()
		claims := repository.NewMemoryClaimLedger(listings)
		store, ledger = listings, claims
		stats = handler.NewStatsHandler(listings, claims)
	}

	events := notifier.New()
	clk := clock.NewSystem()
	engine := reservation.NewCoordinator(store, ledger, events, clk)

	// Background expiry sweep; the only writer of the EXPIRED state.
	go engine.RunSweeper(ctx, cfg.SweepInterval)

	// Broker consumer for claim confirmations; reconnects on its own.
	go func() {
		if err := queue.StartClaimConsumer(); err != nil {
			log.Printf("queue consumer stopped: %v", err)
		}
	}()

	rdb := config.NewRedisClient()

	h := router.Handlers{
		Listings: handler.NewListingHandler(engine, clk),
		Claims:   handler.NewClaimHandler(engine, ledger),
		Stats:    stats,
		Stream:   handler.NewStreamHandler(events),
	}
	if cfg.Env != "prod" {
		h.Auth = handler.NewAuthHandler(cfg.JWTSecret, cfg.Env)
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, h, cfg.JWTSecret, rdb)

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s backend=%s)", addr, cfg.Env, cfg.StoreBackend)
	if err := e.Start(addr); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

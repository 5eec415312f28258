package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/thibautjombart/epichange/adapters/api"
	"github.com/thibautjombart/epichange/adapters/postgres"
	"github.com/thibautjombart/epichange/app"
	"github.com/thibautjombart/epichange/internal/config"
	"github.com/thibautjombart/epichange/ports"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	opts, err := cfg.DetectOptions()
	if err != nil {
		log.Fatalf("invalid detection configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The result store is optional: without DATABASE_URL the API still
	// serves detections, it just does not persist them.
	var store ports.ResultStore
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("failed to prepare schema: %v", err)
		}
		store = postgres.NewResultRepository(db)
		log.Println("[api] result persistence enabled")
	}

	service := app.NewDetectionService(store)
	server := api.NewServer(service, opts)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Handler(),
	}

	go func() {
		log.Printf("[api] listening on :%s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[api] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[api] shutdown error: %v", err)
	}
}

// Command server runs the shoppinglist REST API.
//
// Configuration is layered: built-in defaults, a YAML config file
// (-config flag, SHOPPINGLIST_CONFIG, ./config.yaml, or
// /etc/shoppinglist/config.yaml), then environment overrides:
//
//	SHOPPINGLIST_PORT          - Listen port (default: 3030)
//	SHOPPINGLIST_DATABASE_URL  - PostgreSQL DSN (DATABASE_URL also honored)
//	SHOPPINGLIST_STORAGE       - Storage type: "postgres" or "memory"
//	SHOPPINGLIST_BASE_URL      - Externally visible origin for _links
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cm-auto/shoppinglist/pkg/auth"
	"github.com/cm-auto/shoppinglist/pkg/authz"
	"github.com/cm-auto/shoppinglist/pkg/config"
	"github.com/cm-auto/shoppinglist/pkg/storage"
	"github.com/cm-auto/shoppinglist/pkg/storage/memory"
	"github.com/cm-auto/shoppinglist/pkg/storage/postgres"
	transporthttp "github.com/cm-auto/shoppinglist/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.Default()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	verifier := auth.NewVerifier(store)
	authorizer := authz.New(store)

	adapter := transporthttp.NewAdapter(store, verifier, authorizer, transporthttp.Config{
		Addr:        ":" + strconv.Itoa(cfg.Server.Port),
		BaseURL:     cfg.Server.BaseURL,
		MaxBodySize: cfg.Server.MaxBodySize,
	}, logger)

	srv := transporthttp.NewServer(adapter,
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithMetrics(cfg.Observability.Metrics.Enabled, cfg.Observability.Metrics.Path),
		transporthttp.WithLogger(logger),
	)

	return srv.ListenAndServe()
}

// buildStore constructs the configured storage backend.
func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres",
			"migrate_on_start", cfg.Storage.Postgres.MigrateOnStart)
		return store, nil
	case "memory":
		slog.Info("storage enabled", "type", "memory")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

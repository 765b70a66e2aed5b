package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/imagestore"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

const (
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
	backendMariaDB  = "mariadb"
)

// storeBackend picks the storage backend for a DATABASE_URL value.
// Anything without a known scheme is treated as a SQLite file path.
func storeBackend(url string) (backend, target string) {
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return backendPostgres, url
	case strings.HasPrefix(lower, "mysql://"), strings.HasPrefix(lower, "mariadb://"):
		return backendMariaDB, url
	case strings.HasPrefix(lower, "sqlite://"):
		return backendSQLite, url[len("sqlite://"):]
	default:
		return backendSQLite, url
	}
}

// openStore connects to the configured backend and applies its migrations.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (database.Store, string, error) {
	backend, target := storeBackend(cfg.URL)
	switch backend {
	case backendPostgres:
		pool, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, backend, err
		}
		return pool, backend, nil
	case backendMariaDB:
		pool, err := mariadb.Open(ctx, cfg)
		if err != nil {
			return nil, backend, err
		}
		return pool, backend, nil
	default:
		store, err := sqlite.Open(ctx, target)
		if err != nil {
			return nil, backend, err
		}
		return store, backend, nil
	}
}

// app holds everything a command needs to talk to the roster.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   database.Store
	service *attendance.Service
}

// newApp loads configuration and wires the store, image store, embedding
// client and matcher into an attendance service. withIndex enables the HNSW
// index when MATCH_INDEX asks for it; one-shot commands leave it off.
// Overrides run after the environment is read, so flags win.
func newApp(ctx context.Context, withIndex bool, overrides ...func(*config.Config)) (*app, error) {
	cfg := config.Load()
	for _, override := range overrides {
		override(cfg)
	}
	log := logger.New(cfg.LogLevel)

	if cfg.Matching.Index != "" && cfg.Matching.Index != "hnsw" {
		return nil, fmt.Errorf("unknown MATCH_INDEX %q (expected empty or \"hnsw\")", cfg.Matching.Index)
	}

	store, backend, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	log.Debug("database ready", "backend", backend)

	images, err := imagestore.New(ctx, &cfg.Images, &cfg.MinIO)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}

	client := embedding.NewClient(&cfg.Embedding, cfg.ExpectedDim())
	log.Debug("embedding client ready", "model", client.Model(), "dim", cfg.ExpectedDim())
	m := matcher.New(matcher.WithThreshold(cfg.Matching.Threshold))

	opts := []attendance.Option{
		attendance.WithLogger(log),
		attendance.WithConcurrency(cfg.Matching.RegisterConcurrency),
	}
	if withIndex && cfg.Matching.Index == "hnsw" {
		opts = append(opts, attendance.WithIndex(matcher.NewIndex(m)))
	}

	service := attendance.New(store, images, client, m, opts...)
	if err := service.WarmIndex(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: store, service: service}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close database", "error", err)
	}
}

// describeError turns a service error into a CLI message.
func describeError(err error) error {
	var serviceErr *attendance.Error
	if errors.As(err, &serviceErr) {
		return fmt.Errorf("%s (%s)", serviceErr.Error(), serviceErr.Kind)
	}
	return err
}

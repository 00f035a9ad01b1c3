package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"

	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned when the journal has no row for a run id
var ErrRunNotFound = errors.New("run not found")

// RunJournal records run metadata in PostgreSQL. Payloads (audio,
// transcripts) are never written here.
type RunJournal struct {
	pool *pgxpool.Pool
}

// NewRunJournal connects to PostgreSQL and applies pending migrations
func NewRunJournal(ctx context.Context, databaseURL, migrationsPath string) (*RunJournal, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")

	m, err := newMigrate(databaseURL, migrationsPath)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("No new migrations to apply")
	case err != nil:
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	default:
		logger.Info("Migrations applied successfully")
	}

	return &RunJournal{pool: pool}, nil
}

// ResetMigrations drops every table and re-applies migrations. Development only.
func ResetMigrations(databaseURL, migrationsPath string) error {
	logger.Warn("Resetting database - this will drop all data!")

	m, err := newMigrate(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Drop(); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}

	// Drop removes the schema_migrations table too, so a fresh instance is needed.
	m2, err := newMigrate(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer m2.Close()

	if err := m2.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations after reset: %w", err)
	}

	logger.Info("Database reset and migrations applied successfully")
	return nil
}

func newMigrate(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	sourceURL, err := migrationsURL(migrationsPath)
	if err != nil {
		return nil, err
	}

	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	logger.Debug("Opening migrations", zap.String("path", sourceURL))

	db := stdlib.OpenDB(*connConfig)
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// migrationsURL turns a directory into a file:// source URL on any OS
func migrationsURL(path string) (string, error) {
	if path == "" {
		path = "migrations"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get migrations path: %w", err)
	}

	if runtime.GOOS == "windows" {
		u := &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
		return u.String(), nil
	}
	return "file://" + abs, nil
}

// Close closes the connection pool
func (j *RunJournal) Close() {
	j.pool.Close()
}

// CreateRun inserts a new run
func (j *RunJournal) CreateRun(ctx context.Context, run *model.Run) error {
	query := `
		INSERT INTO runs (id, flow, status, error_kind, error_text, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := j.pool.Exec(ctx, query,
		run.ID,
		run.Flow,
		run.Status,
		run.ErrorKind,
		run.ErrorText,
		run.Meta,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	logger.Debug("Run created", zap.String("run_id", run.ID), zap.String("flow", string(run.Flow)))
	return nil
}

// UpdateRun stores the run's status, error and meta
func (j *RunJournal) UpdateRun(ctx context.Context, run *model.Run) error {
	query := `
		UPDATE runs
		SET status = $2, error_kind = $3, error_text = $4, meta = $5, updated_at = $6
		WHERE id = $1`

	tag, err := j.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.ErrorKind,
		run.ErrorText,
		run.Meta,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update run %s: %w", run.ID, ErrRunNotFound)
	}

	return nil
}

// GetRunByID retrieves a run by id
func (j *RunJournal) GetRunByID(ctx context.Context, id string) (*model.Run, error) {
	query := `
		SELECT id, flow, status, error_kind, error_text, meta, created_at, updated_at
		FROM runs
		WHERE id = $1`

	var run model.Run
	err := j.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Flow,
		&run.Status,
		&run.ErrorKind,
		&run.ErrorText,
		&run.Meta,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// ListRecentRuns returns the newest runs of a flow, newest first
func (j *RunJournal) ListRecentRuns(ctx context.Context, flow model.Flow, limit int) ([]*model.Run, error) {
	query := `
		SELECT id, flow, status, error_kind, error_text, meta, created_at, updated_at
		FROM runs
		WHERE flow = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := j.pool.Query(ctx, query, flow, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var run model.Run
		err := rows.Scan(
			&run.ID,
			&run.Flow,
			&run.Status,
			&run.ErrorKind,
			&run.ErrorText,
			&run.Meta,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

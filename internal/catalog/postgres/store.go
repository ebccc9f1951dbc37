// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentdir/iconfetch/internal/assets"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrEntityNotFound is returned when a catalog row does not exist for the
// given entity id.
var ErrEntityNotFound = errors.New("entity not found")

// StoreConfig controls the Postgres connection pool used for catalog rows.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes pipeline outcomes into the catalog table.
type Store struct {
	pool  dbConn
	table string
}

// NewStore creates a Postgres-backed catalog store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "agents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{
		pool:  pool,
		table: table,
	}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing with pgxmock).
func NewStoreWithPool(pool dbConn, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "agents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpdateIconURL writes the public icon URL into the catalog row and clears
// any prior fetch error state.
func (s *Store) UpdateIconURL(ctx context.Context, entityID string, iconURL string) error {
	if entityID == "" {
		return fmt.Errorf("entity id is required")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET icon_url = $2,
	fetch_error = NULL,
	updated_at = NOW()
WHERE entity_id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query, entityID, iconURL)
	if err != nil {
		return fmt.Errorf("update icon url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %q: %w", entityID, ErrEntityNotFound)
	}
	return nil
}

// RecordFailure stores the failure reason and increments the retry counter,
// letting an external scheduler decide on resubmission.
func (s *Store) RecordFailure(ctx context.Context, entityID string, reason string) error {
	if entityID == "" {
		return fmt.Errorf("entity id is required")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET fetch_error = $2,
	fetch_retries = fetch_retries + 1,
	updated_at = NOW()
WHERE entity_id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query, entityID, reason)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %q: %w", entityID, ErrEntityNotFound)
	}
	return nil
}

// GetEntity reads the narrow catalog slice the pipeline cares about.
func (s *Store) GetEntity(ctx context.Context, entityID string) (assets.Entity, error) {
	if entityID == "" {
		return assets.Entity{}, fmt.Errorf("entity id is required")
	}
	query := fmt.Sprintf(`
SELECT entity_id, COALESCE(icon_url, ''), COALESCE(fetch_error, ''), fetch_retries, updated_at
FROM %s
WHERE entity_id = $1`, s.table)

	var (
		entity    assets.Entity
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, query, entityID).Scan(
		&entity.ID,
		&entity.IconURL,
		&entity.FetchError,
		&entity.FetchRetries,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return assets.Entity{}, fmt.Errorf("entity %q: %w", entityID, ErrEntityNotFound)
		}
		return assets.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	entity.UpdatedAt = &updatedAt
	return entity, nil
}

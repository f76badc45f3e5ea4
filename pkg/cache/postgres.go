package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gridsync/gridsync/pkg/types"

	_ "github.com/lib/pq"
)

const (
	postgresTableName        = "gridsync_view_cache"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresCache is the durable shared cache tier: one upserted row per
// viewId, shared by every client session pointing at the same DSN.
type PostgresCache struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresCache creates the shared tier for the given DSN. The
// connection is opened lazily on first use so a client can start while
// the shared tier is unreachable.
func NewPostgresCache(dsn string) (*PostgresCache, error) {
	if dsn == "" {
		return nil, errors.New("postgres cache requires a dsn")
	}
	return &PostgresCache{
		dsn:    dsn,
		openDB: sql.Open,
	}, nil
}

func (c *PostgresCache) ensureReady(ctx context.Context) error {
	c.initOnce.Do(func() {
		db, err := c.openDB("postgres", c.dsn)
		if err != nil {
			c.initErr = err
			return
		}
		initCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
		defer cancel()
		_, err = db.ExecContext(initCtx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				view_id    TEXT PRIMARY KEY,
				payload    TEXT NOT NULL,
				source_tag TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`, postgresTableName))
		if err != nil {
			db.Close()
			c.initErr = err
			return
		}
		c.db = db
	})
	return c.initErr
}

func (c *PostgresCache) Read(ctx context.Context, viewID string) (*types.CacheEntry, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var payload, source string
	var updatedAt time.Time
	query := fmt.Sprintf("SELECT payload, source_tag, updated_at FROM %s WHERE view_id = $1", postgresTableName)
	err := c.db.QueryRowContext(opCtx, query, viewID).Scan(&payload, &source, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &types.CacheEntry{
		ViewID:    viewID,
		Payload:   json.RawMessage(payload),
		UpdatedAt: updatedAt,
		Source:    types.SourceTag(source),
	}, nil
}

func (c *PostgresCache) Write(ctx context.Context, entry *types.CacheEntry) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (view_id, payload, source_tag, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (view_id)
		DO UPDATE SET payload = EXCLUDED.payload,
		              source_tag = EXCLUDED.source_tag,
		              updated_at = EXCLUDED.updated_at`, postgresTableName)
	_, err := c.db.ExecContext(opCtx, query,
		entry.ViewID, string(entry.Payload), string(entry.Source), entry.UpdatedAt)
	return err
}

// Close closes the database connection
func (c *PostgresCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

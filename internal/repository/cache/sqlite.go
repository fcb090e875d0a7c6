package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

type SQLiteCache struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteCache(path string, l logger.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	c := &SQLiteCache{
		db:     db,
		logger: l,
	}

	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	l.Info("sqlite cache initialized", "path", path)

	return c, nil
}

func (c *SQLiteCache) runMigrations() error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.Up(c.db, "migrations")
}

var _ TileCache = (*SQLiteCache)(nil)

func (c *SQLiteCache) Get(ctx context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	c.logger.Debug("sqlite cache get", "source", k.Source, "z", k.Z, "x", k.X, "y", k.Y)

	query := `SELECT data
	FROM source_cache
	WHERE source = ? AND x = ? AND y = ? AND z = ?`

	var data []byte
	err := c.db.QueryRowContext(ctx, query, k.Source, k.X, k.Y, k.Z).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		c.logger.Error("sqlite cache get failed", "key", k.String(), "error", err)
		return nil, false, err
	}

	return data, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, k TileCacheKey, v TileCacheValue) error {
	c.logger.Debug("sqlite cache set", "source", k.Source, "z", k.Z, "x", k.X, "y", k.Y)

	query := `INSERT INTO source_cache (source, x, y, z, data)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(source, x, y, z) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`

	if _, err := c.db.ExecContext(ctx, query, k.Source, k.X, k.Y, k.Z, []byte(v)); err != nil {
		c.logger.Error("sqlite cache set failed", "key", k.String(), "error", err)
		return err
	}

	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

package content

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteStore(path string, l logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &SQLiteStore{
		db:     db,
		logger: l,
	}

	err = c.runMigrations()
	if err != nil {
		db.Close()
		return nil, err
	}

	l.Info("sqlite content store initialized", "path", path)

	return c, nil
}

func (c *SQLiteStore) runMigrations() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	return goose.Up(c.db, "migrations")
}

var _ Store = (*SQLiteStore)(nil)

func (c *SQLiteStore) Get(ctx context.Context, k Key) (Value, bool, error) {
	c.logger.Debug("sqlite content get", "key", k)

	query := `SELECT data
	FROM content_cache
	WHERE key = ?`

	var data []byte
	err := c.db.QueryRowContext(ctx, query, string(k)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		c.logger.Error("sqlite content get failed", "key", k, "error", err)
		return nil, false, err
	}

	return data, true, nil
}

func (c *SQLiteStore) Set(ctx context.Context, k Key, v Value) error {
	c.logger.Debug("sqlite content set", "key", k, "size", len(v))

	query := `INSERT INTO content_cache (key, data)
	VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`

	_, err := c.db.ExecContext(ctx, query, string(k), []byte(v))
	if err != nil {
		c.logger.Error("sqlite content set failed", "key", k, "error", err)
		return err
	}

	return nil
}

func (c *SQLiteStore) Close() error {
	return c.db.Close()
}

package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
	"github.com/samber/oops"
	_ "modernc.org/sqlite"
)

type dialect struct {
	driver   string
	blobType string
	numbered bool
}

var (
	sqliteDialect   = dialect{driver: "sqlite", blobType: "BLOB"}
	postgresDialect = dialect{driver: "postgres", blobType: "BYTEA", numbered: true}
)

// SQLStorage implements Repository on a single feed_cache table. It works
// with SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq).
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewSQLiteStorage opens (and creates if needed) an SQLite database file
func NewSQLiteStorage(path string) (*SQLStorage, error) {
	if path == "" {
		return nil, oops.New("sqlite database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, oops.With("path", path, "context", "failed to create database directory").Wrap(err)
	}

	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, oops.With("path", path, "context", "failed to open sqlite database").Wrap(err)
	}
	db.SetMaxOpenConns(1)

	return newSQLStorage(db, sqliteDialect)
}

// NewPostgresStorage connects to PostgreSQL using a lib/pq connection string
func NewPostgresStorage(dsn string) (*SQLStorage, error) {
	if dsn == "" {
		return nil, oops.New("postgres dsn required")
	}

	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, oops.With("context", "failed to open postgres connection").Wrap(err)
	}

	return newSQLStorage(db, postgresDialect)
}

func newSQLStorage(db *sql.DB, d dialect) (*SQLStorage, error) {
	s := &SQLStorage{db: db, dialect: d, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStorage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feed_cache (
			cache_key TEXT PRIMARY KEY,
			data      ` + s.dialect.blobType + ` NOT NULL,
			mod_time  BIGINT NOT NULL
		)`)
	if err != nil {
		return oops.With("driver", s.dialect.driver, "context", "failed to create feed_cache table").Wrap(err)
	}
	return nil
}

func (s *SQLStorage) Get(ctx context.Context, key string) (*Artifact, error) {
	var (
		data    []byte
		modTime int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT data, mod_time FROM feed_cache WHERE cache_key = ?`), key,
	).Scan(&data, &modTime)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrCacheNotFound
		}
		return nil, oops.With("key", key, "context", "failed to read cache row").Wrap(err)
	}

	return &Artifact{
		Key:     key,
		Data:    data,
		ModTime: time.Unix(0, modTime).UTC(),
	}, nil
}

func (s *SQLStorage) Put(ctx context.Context, key string, data []byte) (*Artifact, error) {
	if key == "" {
		return nil, errors.ErrInvalidCacheKey
	}

	modTime := s.now().UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO feed_cache (cache_key, data, mod_time) VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET data = excluded.data, mod_time = excluded.mod_time`),
		key, data, modTime.UnixNano(),
	)
	if err != nil {
		return nil, oops.With("key", key, "context", "failed to upsert cache row").Wrap(err)
	}

	return &Artifact{Key: key, Data: data, ModTime: modTime}, nil
}

func (s *SQLStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM feed_cache WHERE cache_key = ?`), key); err != nil {
		return oops.With("key", key, "context", "failed to delete cache row").Wrap(err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $n for drivers that need numbered ones
func (s *SQLStorage) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

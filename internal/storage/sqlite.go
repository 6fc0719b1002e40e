//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "smsgate/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetRecord(ctx context.Context, key string) (Record, bool, error) {
	if s == nil || s.db == nil {
		return Record{}, false, ErrDisabled
	}
	if key == "" {
		return Record{}, false, nil
	}
	var (
		rec    Record
		prefix sql.NullString
		until  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT device, created, prefix, until FROM dedup WHERE key = ?`, key,
	).Scan(&rec.Device, &rec.CreatedAt, &prefix, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	if until <= time.Now().UnixMilli() {
		return Record{}, false, nil
	}
	rec.ContentPrefix = prefix.String
	return rec, true, nil
}

func (s *sqliteStore) PutRecord(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" || ttl <= 0 {
		return nil
	}
	until := time.Now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, device, created, prefix, until) VALUES(?,?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET device=excluded.device, created=excluded.created,
		                               prefix=excluded.prefix, until=excluded.until`,
		key, rec.Device, rec.CreatedAt, nullStr(rec.ContentPrefix), until,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, _ = s.PruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if key == "" {
		return 0, nil
	}
	now := time.Now().UnixMilli()
	cutoff := now - window.Milliseconds()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		start int64
		count int64
	)
	err = tx.QueryRowContext(ctx, `SELECT start, count FROM rate_window WHERE key = ?`, key).Scan(&start, &count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	switch {
	case errors.Is(err, sql.ErrNoRows) || start <= cutoff:
		count = 1
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rate_window(key, start, count) VALUES(?,?,1)
			 ON CONFLICT(key) DO UPDATE SET start=excluded.start, count=1`,
			key, now,
		)
	case err == nil:
		count++
		_, err = tx.ExecContext(ctx, `UPDATE rate_window SET count = count + 1 WHERE key = ?`, key)
	}
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *sqliteStore) PruneExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	dayAgo := now - (24 * time.Hour).Milliseconds()
	res2, err := s.db.ExecContext(ctx, `DELETE FROM rate_window WHERE start < ?`, dayAgo)
	if err != nil {
		return n, err
	}
	n2, _ := res2.RowsAffected()
	return n + n2, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/storage"
)

// Store keeps one JSON encoded snapshot per group in a single SQLite table.
type Store struct {
	db   *sql.DB
	log  log.Log
	path string

	mu     sync.Mutex
	closed bool
}

var _ storage.Store = (*Store)(nil)

// Open creates the database file and its table if needed.
func Open(path string, logger log.Log) (*Store, error) {
	if path == "" {
		path = "intellitrack.db"
	}
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		grp TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &Store{db: db, log: logger.Named("sqlite"), path: path}, nil
}

func (s *Store) Save(ctx context.Context, snap storage.Snapshot) error {
	if err := s.check(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", snap.Group, err)
	}
	if _, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(grp,payload) VALUES(?,?) ON CONFLICT(grp) DO UPDATE SET payload=excluded.payload`,
		snap.Group, data,
	); err != nil {
		return fmt.Errorf("upsert %s: %w", snap.Group, err)
	}
	s.log.Debug("snapshot saved", log.String("group", snap.Group), log.Int("members", len(snap.Members)))
	return nil
}

func (s *Store) Load(ctx context.Context, group string) (storage.Snapshot, error) {
	var snap storage.Snapshot
	if err := s.check(); err != nil {
		return snap, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE grp = ?`, group).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("group %q: %w", group, storage.ErrNotFound)
	}
	if err != nil {
		return snap, fmt.Errorf("select %s: %w", group, err)
	}
	if err = json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode %s: %w", group, err)
	}
	return snap, nil
}

func (s *Store) Groups(ctx context.Context) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT grp FROM snapshots ORDER BY grp`)
	if err != nil {
		return nil, fmt.Errorf("select groups: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Path() string { return s.path }

func (s *Store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

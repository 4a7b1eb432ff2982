package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"aira/internal/workspace"
)

const sqliteName = "workspace.db"

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const (
	keyFiles   = "files"
	keyFolders = "folders"
)

// SQLiteStore keeps the records as two JSON rows in a sqlite database, so a
// save replaces files and folders atomically.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) workspace.db in dir.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if dir == "" {
		return nil, errors.New("sqlite store directory must be set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	path := filepath.Join(dir, sqliteName)
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open workspace db: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), recordsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init workspace schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Paths lists the database file; the watcher also matches its -wal companion.
func (s *SQLiteStore) Paths() []string {
	return []string{s.path}
}

// Load reads both rows. Missing rows are empty lists.
func (s *SQLiteStore) Load() (workspace.Records, error) {
	var recs workspace.Records
	if err := s.get(keyFiles, &recs.Files); err != nil {
		return workspace.Records{}, err
	}
	if err := s.get(keyFolders, &recs.Folders); err != nil {
		return workspace.Records{}, err
	}
	if recs.Files == nil {
		recs.Files = []workspace.File{}
	}
	if recs.Folders == nil {
		recs.Folders = []workspace.Folder{}
	}
	return recs, nil
}

// Save replaces both rows in one transaction.
func (s *SQLiteStore) Save(recs workspace.Records) error {
	files := recs.Files
	if files == nil {
		files = []workspace.File{}
	}
	folders := recs.Folders
	if folders == nil {
		folders = []workspace.Folder{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	foldersJSON, err := json.Marshal(folders)
	if err != nil {
		return fmt.Errorf("encode folders: %w", err)
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	for key, value := range map[string][]byte{keyFiles: filesJSON, keyFolders: foldersJSON} {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, key, string(value), now); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) get(key string, v any) error {
	var value string
	err := s.db.QueryRowContext(context.Background(), `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

package counterstore

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/healthd/internal/errors"
	_ "github.com/mattn/go-sqlite3"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS counters (
	       key         TEXT PRIMARY KEY,
	       value       BLOB,
	       updated_at  TEXT NOT NULL
	   );`

	upsertCounterSQL = `
    INSERT INTO counters (key, value, updated_at)
    VALUES (?, ?, datetime('now'))
    ON CONFLICT(key) DO UPDATE SET
        value = excluded.value,
        updated_at = excluded.updated_at`

	selectCounterSQL = `SELECT value FROM counters WHERE key = ?`
)

// SQLiteStore keeps counters in a single SQLite table. Each Store is one
// upsert statement, so it either fully applies or not at all.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.WithData(errors.ErrInvalidConfig, "empty counter store path")
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStoreUnavailable, err).WithData(phaseError{
			Phase: "create_directory",
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=FULL")
	if err != nil {
		return nil, errFactory.Wrap(ErrStoreUnavailable, err).WithData(phaseError{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	return nil
}

func (s *SQLiteStore) Load(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value []byte
	err := s.db.QueryRow(selectCounterSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New().Wrap(ErrStoreUnavailable, err).WithData(phaseError{
			Phase: "select",
			Key:   key,
			Error: err.Error(),
		})
	}

	return value, true, nil
}

func (s *SQLiteStore) Store(key string, value []byte) error {
	if key == "" {
		return errors.New().WithData(ErrInvalidKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(upsertCounterSQL, key, value); err != nil {
		return errors.New().Wrap(ErrStoreUnavailable, err).WithData(phaseError{
			Phase: "upsert",
			Key:   key,
			Error: err.Error(),
		})
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

package metrics

import (
	"database/sql"

	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS battery_samples (
	       id              INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp       INTEGER NOT NULL,
	       level           INTEGER NOT NULL CHECK (level BETWEEN 0 AND 100),
	       temperature     INTEGER NOT NULL CHECK (typeof(temperature) = 'integer'),
	       cycle_count     INTEGER NOT NULL CHECK (cycle_count >= 0),
	       resistance_min  INTEGER NOT NULL CHECK (typeof(resistance_min) = 'integer'),
	       resistance_max  INTEGER NOT NULL CHECK (typeof(resistance_max) = 'integer'),
	       ocv_min         INTEGER NOT NULL CHECK (typeof(ocv_min) = 'integer'),
	       ocv_max         INTEGER NOT NULL CHECK (typeof(ocv_max) = 'integer'),
	       samples         INTEGER NOT NULL CHECK (samples >= 0)
	   );
	   CREATE TABLE IF NOT EXISTS shutdown_events (
	       id           INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp    INTEGER NOT NULL,
	       voltage_avg  INTEGER NOT NULL CHECK (typeof(voltage_avg) = 'integer'),
	       level        INTEGER NOT NULL CHECK (level BETWEEN 0 AND 100)
	   );`

	insertSampleSQL = `
    INSERT INTO battery_samples (
        timestamp, level, temperature, cycle_count,
        resistance_min, resistance_max,
        ocv_min, ocv_max, samples
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertShutdownSQL = `
    INSERT INTO shutdown_events (timestamp, voltage_avg, level)
    VALUES (?, ?, ?)`
)

var tables = []string{"battery_samples", "shutdown_events", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, or 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}

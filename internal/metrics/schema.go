package metrics

import (
	"database/sql"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
)

const (
	SchemaVersion = 1

	// timeLayout keeps stored round and chart timestamps fixed-width UTC so
	// they sort as text.
	timeLayout = "2006-01-02T15:04:05.000Z07:00"

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS collection_rounds (
	       id           TEXT PRIMARY KEY,
	       timestamp    TEXT NOT NULL,
	       sample_count INTEGER NOT NULL CHECK (sample_count > 0)
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       round_id    TEXT NOT NULL REFERENCES collection_rounds(id),
	       name        TEXT NOT NULL,
	       timestamp   INTEGER NOT NULL,
	       value_type  TEXT NOT NULL CHECK (value_type IN ('integer', 'float', 'string', 'boolean')),
	       value_int   INTEGER,
	       value_float REAL,
	       value_text  TEXT,
	       value_bool  INTEGER CHECK (value_bool IS NULL OR value_bool IN (0, 1)),
	       metadata    TEXT NOT NULL DEFAULT '{}'
	   );
	   CREATE INDEX IF NOT EXISTS idx_samples_round ON samples(round_id);
	   CREATE INDEX IF NOT EXISTS idx_samples_name_ts ON samples(name, timestamp);
	   CREATE INDEX IF NOT EXISTS idx_rounds_timestamp ON collection_rounds(timestamp);
	   CREATE TABLE IF NOT EXISTS charts (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       round_id    TEXT NOT NULL REFERENCES collection_rounds(id),
	       metric_name TEXT NOT NULL,
	       chart_type  TEXT NOT NULL CHECK (chart_type IN ('bar', 'braille')),
	       chart_data  TEXT NOT NULL,
	       data_points INTEGER NOT NULL,
	       timestamp   TEXT NOT NULL,
	       UNIQUE (round_id, metric_name, chart_type)
	   );
	   CREATE INDEX IF NOT EXISTS idx_charts_metric_type ON charts(metric_name, chart_type);`

	insertRoundSQL = `
    INSERT INTO collection_rounds (id, timestamp, sample_count)
    VALUES (?, ?, ?)`

	insertSampleSQL = `
    INSERT INTO samples (
        round_id, name, timestamp, value_type,
        value_int, value_float, value_text, value_bool,
        metadata
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSampleColumns = `
    SELECT id, round_id, name, timestamp, value_type,
           value_int, value_float, value_text, value_bool, metadata
    FROM samples`

	upsertChartSQL = `
    INSERT INTO charts (
        round_id, metric_name, chart_type, chart_data, data_points, timestamp
    ) VALUES (?, ?, ?, ?, ?, ?)
    ON CONFLICT(round_id, metric_name, chart_type) DO UPDATE SET
        chart_data = excluded.chart_data,
        data_points = excluded.data_points,
        timestamp = excluded.timestamp`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "create_tables",
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

// GetSchemaVersion returns the current schema version
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
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
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

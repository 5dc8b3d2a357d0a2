package metrics

import (
	"path/filepath"

	"codeberg.org/mutker/thrud/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDriver  = DriverCgo

	// DriverCgo is mattn/go-sqlite3, DriverPure is modernc.org/sqlite.
	DriverCgo  = "sqlite3"
	DriverPure = "sqlite"
)

type Config struct {
	DBPath          string
	Driver          string
	BackupOnMigrate bool
	BackupDir       string
}

// DefaultConfig returns a config for the database at dbPath.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:          dbPath,
		Driver:          defaultDriver,
		BackupOnMigrate: true,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	switch c.driver() {
	case DriverCgo, DriverPure:
	default:
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value string
		}{
			Field: "driver",
			Value: c.Driver,
		})
	}
	return nil
}

func (c Config) driver() string {
	if c.Driver == "" {
		return defaultDriver
	}
	return c.Driver
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

// dsn adds the journal and timeout pragmas in the syntax each driver expects.
func (c Config) dsn() string {
	if c.driver() == DriverPure {
		return "file:" + c.DBPath +
			"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	return c.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000&_foreign_keys=1"
}

// readOnlyDSN opens the file with SQLITE_OPEN_READONLY; writes and schema
// changes fail at the driver.
func (c Config) readOnlyDSN() string {
	if c.driver() == DriverPure {
		return "file:" + c.DBPath + "?mode=ro&_pragma=busy_timeout(5000)"
	}
	return "file:" + c.DBPath + "?mode=ro&_busy_timeout=5000"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Repository is the sqlite-backed sample store and chart cache.
type Repository struct {
	db  *sql.DB
	log logger.Logger
	cfg Config
	mu  sync.Mutex
	now func() time.Time

	readOnly bool
}

var (
	_ SampleWriter = (*Repository)(nil)
	_ SampleReader = (*Repository)(nil)
	_ ChartStore   = (*Repository)(nil)
)

func NewRepository(cfg Config, log logger.Logger) (*Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	db, err := sql.Open(cfg.driver(), cfg.dsn())
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Str("driver", cfg.driver()).
		Int("schema_version", SchemaVersion).
		Msg("Sample store initialized")

	return newRepository(db, cfg, log), nil
}

// OpenReader opens an existing store read-only. The schema is checked but
// never migrated: a missing or different version is an
// ErrSchemaValidationFailed error and the file is left untouched.
func OpenReader(cfg Config, log logger.Logger) (*Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.driver(), cfg.readOnlyDSN())
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if version != SchemaVersion {
		db.Close()
		return nil, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Path     string
			Found    int
			Expected int
		}{
			Path:     cfg.DBPath,
			Found:    version,
			Expected: SchemaVersion,
		})
	}

	log.Debug().
		Str("path", cfg.DBPath).
		Str("driver", cfg.driver()).
		Msg("Sample store opened read-only")

	r := newRepository(db, cfg, log)
	r.readOnly = true
	return r, nil
}

func newRepository(db *sql.DB, cfg Config, log logger.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log,
		cfg: cfg,
		now: time.Now,
	}
}

// StoreRound writes one collection round and all of its samples in a single
// transaction. Either every sample becomes visible or none does.
func (r *Repository) StoreRound(ctx context.Context, samples []Sample) (CollectionRound, error) {
	errFactory := errors.New()

	if len(samples) == 0 {
		return CollectionRound{}, errFactory.New(ErrEmptyRound)
	}
	for i := range samples {
		if err := validateSample(i, samples[i]); err != nil {
			return CollectionRound{}, err
		}
	}

	round := CollectionRound{
		ID:          uuid.NewString(),
		Timestamp:   r.now().UTC(),
		SampleCount: len(samples),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return CollectionRound{}, errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.log.Debug().Err(err).Msg("Failed to rollback round")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, insertRoundSQL,
		round.ID, round.Timestamp.Format(timeLayout), round.SampleCount); err != nil {
		return CollectionRound{}, errFactory.WithData(ErrTransactionFailed, struct {
			Phase string
			Error string
		}{
			Phase: "insert_round",
			Error: err.Error(),
		})
	}

	stmt, err := tx.PrepareContext(ctx, insertSampleSQL)
	if err != nil {
		return CollectionRound{}, errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, s := range samples {
		metadata, err := s.Tags.marshal()
		if err != nil {
			return CollectionRound{}, errFactory.Wrap(ErrInvalidSample, err)
		}
		vInt, vFloat, vText, vBool := valueColumns(s.Value)
		if _, err := stmt.ExecContext(ctx,
			round.ID, s.Name, s.Timestamp.UnixMilli(), string(s.Value.Kind),
			vInt, vFloat, vText, vBool, metadata,
		); err != nil {
			return CollectionRound{}, errFactory.WithData(ErrTransactionFailed, struct {
				Phase  string
				Metric string
				Error  string
			}{
				Phase:  "insert_sample",
				Metric: s.Name,
				Error:  err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return CollectionRound{}, errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.log.Debug().
		Str("round_id", round.ID).
		Int("samples", round.SampleCount).
		Msg("Stored collection round")

	return round, nil
}

// Samples returns committed samples of the named metrics with a timestamp
// after since, oldest first. No names means every metric.
func (r *Repository) Samples(ctx context.Context, names []string, since time.Time) ([]StoredSample, error) {
	query := selectSampleColumns + " WHERE timestamp > ?"
	args := []any{since.UnixMilli()}
	if len(names) > 0 {
		query += " AND name IN (" + placeholders(len(names)) + ")"
		args = appendStrings(args, names)
	}
	query += " ORDER BY timestamp, id"

	return r.querySamples(ctx, "samples_since", query, args...)
}

// SamplesForRounds returns the samples belonging to the given rounds,
// oldest first. No names means every metric.
func (r *Repository) SamplesForRounds(ctx context.Context, roundIDs, names []string) ([]StoredSample, error) {
	if len(roundIDs) == 0 {
		return nil, nil
	}

	query := selectSampleColumns + " WHERE round_id IN (" + placeholders(len(roundIDs)) + ")"
	args := appendStrings(nil, roundIDs)
	if len(names) > 0 {
		query += " AND name IN (" + placeholders(len(names)) + ")"
		args = appendStrings(args, names)
	}
	query += " ORDER BY timestamp, id"

	return r.querySamples(ctx, "samples_for_rounds", query, args...)
}

func (r *Repository) querySamples(ctx context.Context, phase, query string, args ...any) ([]StoredSample, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageAccess, struct {
			Phase string
			Error string
		}{
			Phase: phase,
			Error: err.Error(),
		})
	}
	defer rows.Close()

	var out []StoredSample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return out, nil
}

// RecentRounds returns the n most recent rounds, newest first.
func (r *Repository) RecentRounds(ctx context.Context, n int) ([]CollectionRound, error) {
	errFactory := errors.New()

	if n <= 0 {
		return nil, errFactory.WithData(ErrInvalidQuery, struct {
			Limit int
		}{
			Limit: n,
		})
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT id, timestamp, sample_count
        FROM collection_rounds
        ORDER BY timestamp DESC, rowid DESC
        LIMIT ?`, n)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var rounds []CollectionRound
	for rows.Next() {
		var (
			round CollectionRound
			ts    string
		)
		if err := rows.Scan(&round.ID, &ts, &round.SampleCount); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if round.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return rounds, nil
}

// Stats summarises the store.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	errFactory := errors.New()
	var stats Stats

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples").Scan(&stats.TotalSamples); err != nil {
		return Stats{}, errFactory.Wrap(ErrStorageAccess, err)
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM collection_rounds").Scan(&stats.TotalRounds); err != nil {
		return Stats{}, errFactory.Wrap(ErrStorageAccess, err)
	}

	latest, err := r.RecentRounds(ctx, 1)
	if err != nil {
		return Stats{}, err
	}
	if len(latest) == 1 {
		stats.LatestRound = &latest[0]
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
	).Scan(&stats.DatabaseBytes); err != nil {
		return Stats{}, errFactory.Wrap(ErrStorageAccess, err)
	}

	return stats, nil
}

// Prune deletes rounds stamped before the cutoff together with their
// samples and charts. It returns the number of rounds removed.
func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	errFactory := errors.New()
	cutoff := before.UTC().Format(timeLayout)

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.log.Debug().Err(err).Msg("Failed to rollback prune")
			}
		}
	}()

	for _, table := range []string{"charts", "samples"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+
			" WHERE round_id IN (SELECT r.id FROM collection_rounds r WHERE r.timestamp < ?)", cutoff); err != nil {
			return 0, errFactory.WithData(ErrTransactionFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "prune",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM collection_rounds WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	if removed > 0 {
		r.log.Info().
			Int64("rounds", removed).
			Str("before", cutoff).
			Msg("Pruned old collection rounds")
	}

	return removed, nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if r.readOnly {
		if err := r.db.Close(); err != nil {
			return errors.New().Wrap(ErrStorageClose, err)
		}
		return nil
	}
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.log.Info().Msg("Sample store closed gracefully")

	return nil
}

func validateSample(index int, s Sample) error {
	reason := ""
	switch {
	case strings.TrimSpace(s.Name) == "":
		reason = "empty metric name"
	case s.Timestamp.IsZero():
		reason = "missing timestamp"
	default:
		reason = s.Value.validate()
	}
	if reason == "" {
		return nil
	}

	return errors.New().WithData(ErrInvalidSample, struct {
		Index  int
		Metric string
		Reason string
	}{
		Index:  index,
		Metric: s.Name,
		Reason: reason,
	})
}

// valueColumns spreads v over the typed columns; unused columns stay NULL.
func valueColumns(v Value) (vInt, vFloat, vText, vBool any) {
	switch v.Kind {
	case KindInteger:
		vInt = v.Int
	case KindFloat:
		vFloat = v.Float
	case KindString:
		vText = v.Text
	case KindBoolean:
		vBool = boolToInt(v.Bool)
	}
	return vInt, vFloat, vText, vBool
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (StoredSample, error) {
	errFactory := errors.New()

	var (
		s        StoredSample
		ts       int64
		kind     string
		vInt     sql.NullInt64
		vFloat   sql.NullFloat64
		vText    sql.NullString
		vBool    sql.NullInt64
		metadata string
	)
	if err := row.Scan(&s.ID, &s.RoundID, &s.Name, &ts, &kind,
		&vInt, &vFloat, &vText, &vBool, &metadata); err != nil {
		return StoredSample{}, errFactory.Wrap(ErrStorageAccess, err)
	}
	s.Timestamp = time.UnixMilli(ts).UTC()

	corrupt := func(reason string) error {
		return errFactory.WithData(ErrCorruptRow, struct {
			ID     int64
			Metric string
			Reason string
		}{
			ID:     s.ID,
			Metric: s.Name,
			Reason: reason,
		})
	}

	s.Value.Kind = ValueKind(kind)
	switch s.Value.Kind {
	case KindInteger:
		if !vInt.Valid {
			return StoredSample{}, corrupt("integer value is NULL")
		}
		s.Value.Int = vInt.Int64
	case KindFloat:
		if !vFloat.Valid {
			return StoredSample{}, corrupt("float value is NULL")
		}
		s.Value.Float = vFloat.Float64
	case KindString:
		if !vText.Valid {
			return StoredSample{}, corrupt("string value is NULL")
		}
		s.Value.Text = vText.String
	case KindBoolean:
		if !vBool.Valid {
			return StoredSample{}, corrupt("boolean value is NULL")
		}
		s.Value.Bool = vBool.Int64 != 0
	default:
		return StoredSample{}, corrupt("unknown value type " + kind)
	}

	tags, err := unmarshalTags(metadata)
	if err != nil {
		return StoredSample{}, corrupt("metadata: " + err.Error())
	}
	s.Tags = tags

	return s, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.New().WithData(ErrCorruptRow, struct {
			Timestamp string
			Error     string
		}{
			Timestamp: s,
			Error:     err.Error(),
		})
	}
	return t.UTC(), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

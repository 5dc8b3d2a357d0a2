package metrics

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"codeberg.org/mutker/thrud/internal/chart"
	"codeberg.org/mutker/thrud/internal/errors"
)

// StoreChart upserts a single chart.
func (r *Repository) StoreChart(ctx context.Context, c Chart) error {
	return r.StoreCharts(ctx, []Chart{c})
}

// StoreCharts upserts charts keyed by (round, metric, encoding) in one
// transaction. Regenerating a chart overwrites the previous rendering.
func (r *Repository) StoreCharts(ctx context.Context, charts []Chart) error {
	errFactory := errors.New()

	if len(charts) == 0 {
		return nil
	}
	for i := range charts {
		if err := validateChart(charts[i]); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.log.Debug().Err(err).Msg("Failed to rollback charts")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertChartSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, c := range charts {
		ts := c.Timestamp
		if ts.IsZero() {
			ts = r.now()
		}
		if _, err := stmt.ExecContext(ctx,
			c.RoundID, c.MetricName, string(c.Encoding), c.Data, c.DataPoints,
			ts.UTC().Format(timeLayout),
		); err != nil {
			return errFactory.WithData(ErrTransactionFailed, struct {
				Phase    string
				Round    string
				Metric   string
				Encoding string
				Error    string
			}{
				Phase:    "upsert_chart",
				Round:    c.RoundID,
				Metric:   c.MetricName,
				Encoding: string(c.Encoding),
				Error:    err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.log.Debug().
		Str("round_id", charts[0].RoundID).
		Int("charts", len(charts)).
		Msg("Stored charts")

	return nil
}

// LatestCharts returns the charts of the given encoding from the limit most
// recent rounds that have any of the named metrics charted. Rounds are
// newest first; within a round, charts follow the order of metricNames.
func (r *Repository) LatestCharts(ctx context.Context, metricNames []string, enc chart.Encoding, limit int) ([]Chart, error) {
	errFactory := errors.New()

	if !enc.Valid() {
		return nil, errFactory.WithData(chart.ErrInvalidEncoding, struct {
			Encoding string
		}{
			Encoding: string(enc),
		})
	}
	if limit <= 0 {
		return nil, errFactory.WithData(ErrInvalidQuery, struct {
			Limit int
		}{
			Limit: limit,
		})
	}
	if len(metricNames) == 0 {
		return nil, nil
	}

	metricIn := placeholders(len(metricNames))
	args := appendStrings([]any{string(enc)}, metricNames)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, `
        SELECT r.id
        FROM collection_rounds r
        WHERE EXISTS (
            SELECT 1 FROM charts c
            WHERE c.round_id = r.id AND c.chart_type = ? AND c.metric_name IN (`+metricIn+`)
        )
        ORDER BY r.timestamp DESC, r.rowid DESC
        LIMIT ?`, args...)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	rank := make(map[string]int)
	var roundIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		rank[id] = len(roundIDs)
		roundIDs = append(roundIDs, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	if len(roundIDs) == 0 {
		return nil, nil
	}

	args = appendStrings([]any{string(enc)}, roundIDs)
	args = appendStrings(args, metricNames)
	rows, err = r.db.QueryContext(ctx, `
        SELECT id, round_id, metric_name, chart_type, chart_data, data_points, timestamp
        FROM charts
        WHERE chart_type = ?
          AND round_id IN (`+placeholders(len(roundIDs))+`)
          AND metric_name IN (`+metricIn+`)`, args...)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var charts []Chart
	for rows.Next() {
		var (
			c    Chart
			kind string
			ts   string
		)
		if err := rows.Scan(&c.ID, &c.RoundID, &c.MetricName, &kind, &c.Data, &c.DataPoints, &ts); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		c.Encoding = chart.Encoding(kind)
		if c.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		charts = append(charts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	order := make(map[string]int, len(metricNames))
	for i, name := range metricNames {
		if _, ok := order[name]; !ok {
			order[name] = i
		}
	}
	sort.Slice(charts, func(i, j int) bool {
		ri, rj := rank[charts[i].RoundID], rank[charts[j].RoundID]
		if ri != rj {
			return ri < rj
		}
		return order[charts[i].MetricName] < order[charts[j].MetricName]
	})

	return charts, nil
}

func validateChart(c Chart) error {
	reason := ""
	switch {
	case c.RoundID == "":
		reason = "missing round id"
	case strings.TrimSpace(c.MetricName) == "":
		reason = "empty metric name"
	case !c.Encoding.Valid():
		reason = "unknown encoding"
	case c.Data == "":
		reason = "empty chart data"
	case c.DataPoints <= 0:
		reason = "no data points"
	}
	if reason == "" {
		return nil
	}

	return errors.New().WithData(ErrInvalidChart, struct {
		Round    string
		Metric   string
		Encoding string
		Reason   string
	}{
		Round:    c.RoundID,
		Metric:   c.MetricName,
		Encoding: string(c.Encoding),
		Reason:   reason,
	})
}

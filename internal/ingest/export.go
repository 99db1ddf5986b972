package ingest

import (
	"context"
	"fmt"
	"path/filepath"

	"bagetl/internal/frame"
	"bagetl/internal/schema"
	"bagetl/internal/storage"
	"bagetl/internal/storage/csvfile"
)

// Export reads back every mapped topic of a loaded session and writes one
// CSV file per topic with w. Rows come out in stamp order. Topics without
// rows are reported as skipped with a nil error.
func Export(ctx context.Context, repo storage.Repository, reg *schema.Registry, session string, w csvfile.Writer) ([]TopicResult, error) {
	if reg == nil {
		reg = schema.Default()
	}
	name := filepath.Base(session)

	tx, err := repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	// Read only.
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Select(ctx, schema.TableBagFiles, []string{"id"}, storage.Where(storage.Eq("name", name)), nil, 1)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("export %s: session not loaded", name)
	}
	id := rows[0][0]

	var out []TopicResult
	for _, topic := range reg.Topics() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rule, _ := reg.Lookup(topic)
		r := TopicResult{Topic: topic, Table: rule.Table}

		cols := append([]string(nil), rule.Columns...)
		for _, c := range rule.Extra {
			cols = append(cols, c.Name)
		}
		where := storage.Where(storage.Eq(rule.SessionColumn, id))
		if rule.SensorID != 0 {
			where = append(where, storage.Eq("sensors_id", rule.SensorID))
		}
		order := []string{rule.SecondsColumn, rule.NanosColumn}
		if rule.IndexColumn != "" {
			order = append(order, rule.IndexColumn)
		}
		data, err := tx.Select(ctx, rule.Table, cols, where, order, 0)
		if err != nil {
			return out, fmt.Errorf("export %s %s: %w", name, topic, err)
		}
		if len(data) == 0 {
			r.Outcome = OutcomeSkipped
			out = append(out, r)
			continue
		}
		path, err := w.Write(name, topic, &frame.Frame{Columns: cols, Rows: data})
		if err != nil {
			return out, err
		}
		r.Outcome, r.Rows, r.File = OutcomeLoaded, int64(len(data)), path
		out = append(out, r)
	}
	return out, nil
}

package ingest

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"bagetl/internal/schema"
	"bagetl/internal/storage"
	"bagetl/internal/transformer"
)

// Correction configures the trigger correction pass.
type Correction struct {
	Table     string
	SensorIDs []int64
	// Period is the nominal frame period in seconds (1/25 for 25 fps).
	Period float64
}

// CorrectionReport summarizes one CorrectBatch call.
type CorrectionReport struct {
	Table    string
	Sessions []int64
	Rows     int
	Seconds  int
	// Adjusted counts the seconds whose frame count was not 1/Period.
	Adjusted int
	// Dropped counts the frames found missing.
	Dropped int
	// Shifts holds corrected minus recorded time, in seconds, per row.
	Shifts    []float64
	ShiftMean float64
	ShiftStd  float64
}

func (r CorrectionReport) String() string {
	return fmt.Sprintf("correction table=%s sessions=%v rows=%d seconds=%d adjusted=%d dropped=%d shift_mean=%.6f shift_std=%.6f",
		r.Table, r.Sessions, r.Rows, r.Seconds, r.Adjusted, r.Dropped, r.ShiftMean, r.ShiftStd)
}

// CorrectBatch snaps the frame stamps of sessionIDs onto the trigger grid
// and writes them to seconds_triggered and nanoseconds_triggered. Each
// sensor is corrected separately within one transaction.
func CorrectBatch(ctx context.Context, repo storage.Repository, c Correction, sessionIDs []int64) (rep CorrectionReport, err error) {
	rep = CorrectionReport{Table: c.Table, Sessions: sessionIDs}
	if c.Period <= 0 || c.Period > 1 {
		return rep, fmt.Errorf("correction: period %v out of range (0, 1]", c.Period)
	}
	if len(sessionIDs) == 0 {
		return rep, nil
	}
	ids := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		ids[i] = id
	}

	tx, err := repo.Begin(ctx)
	if err != nil {
		return rep, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, sensor := range c.SensorIDs {
		rows, err := tx.Select(ctx, c.Table, []string{"id", "seconds", "nanoseconds"},
			storage.Where(storage.In("bag_files_id", ids...), storage.Eq("sensors_id", sensor)),
			[]string{"seconds", "nanoseconds", "id"}, 0)
		if err != nil {
			return rep, fmt.Errorf("correction: sensor %d: %w", sensor, err)
		}
		stamps, err := toStamps(rows)
		if err != nil {
			return rep, fmt.Errorf("correction: sensor %d: %w", sensor, err)
		}
		for _, sec := range groupBySecond(stamps) {
			rep.Rows += len(sec)
			rep.Seconds++
			ns := make([]int64, len(sec))
			for i, s := range sec {
				ns[i] = s.nanos
			}
			slots, gaps := triggerSlots(ns, c.Period)
			if len(sec) != framesPerSecond(c.Period) {
				rep.Adjusted++
			}
			rep.Dropped += gaps
			for i, s := range sec {
				secs, nanos := slotStamp(s.secs, slots[i], c.Period)
				if _, err := tx.Update(ctx, c.Table, []string{"seconds_triggered", "nanoseconds_triggered"},
					[]any{secs, nanos}, storage.Where(storage.Eq("id", s.id))); err != nil {
					return rep, fmt.Errorf("correction: row %d: %w", s.id, err)
				}
				rep.Shifts = append(rep.Shifts, float64((secs-s.secs)*1e9+nanos-s.nanos)*1e-9)
			}
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return rep, fmt.Errorf("correction: commit: %w", err)
	}
	if len(rep.Shifts) > 0 {
		rep.ShiftMean, rep.ShiftStd = stat.MeanStdDev(rep.Shifts, nil)
		if math.IsNaN(rep.ShiftStd) {
			rep.ShiftStd = 0
		}
	}
	return rep, nil
}

type stamp struct {
	id, secs, nanos int64
}

func toStamps(rows [][]any) ([]stamp, error) {
	out := make([]stamp, len(rows))
	for i, row := range rows {
		var vals [3]int64
		for j := range vals {
			v, err := transformer.Cast(schema.TypeInt64, row[j])
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, fmt.Errorf("row %d: NULL stamp", i)
			}
			vals[j] = v.(int64)
		}
		out[i] = stamp{id: vals[0], secs: vals[1], nanos: vals[2]}
	}
	return out, nil
}

// groupBySecond splits stamps, already ordered, into runs of equal seconds.
func groupBySecond(stamps []stamp) [][]stamp {
	var out [][]stamp
	for i := 0; i < len(stamps); {
		j := i + 1
		for j < len(stamps) && stamps[j].secs == stamps[i].secs {
			j++
		}
		out = append(out, stamps[i:j])
		i = j
	}
	return out
}

func framesPerSecond(period float64) int { return int(math.Round(1 / period)) }

// slotStamp converts a slot of the second secs into a stamp. Slots past the
// end of the second, left by padding, carry into the next one.
func slotStamp(secs, slot int64, period float64) (int64, int64) {
	ns := int64(math.Round(float64(slot) * period * 1e9))
	return secs + ns/1e9, ns % 1e9
}

// triggerSlots assigns each frame of one second a slot on the trigger grid.
// ns holds the nanoseconds of the frames in ascending order.
//
// A full second gets slots 0..fps-1. Otherwise a step larger than 1.5
// periods marks dropped frames, as many as the step spans, and their slots
// are removed from the grid. Steps are taken in ascending order and each
// removal is offset by the frames dropped before it. Without any such step
// each frame takes its nearest slot, at most fps-1. The slot list is then
// fitted to the frame count: surplus slots are cut from the end and missing
// ones continue from the nearest slot of the frame, never repeating a slot,
// so padding may pass fps-1. gaps is the number of dropped frames found.
func triggerSlots(ns []int64, period float64) (slots []int64, gaps int) {
	fps := framesPerSecond(period)
	n := len(ns)
	if n == fps {
		slots = make([]int64, n)
		for i := range slots {
			slots[i] = int64(i)
		}
		return slots, 0
	}

	nearest := func(v int64) int64 {
		s := int64(math.RoundToEven(float64(v) * 1e-9 / period))
		return max(0, min(s, int64(fps-1)))
	}
	limit := 1.5 * period * 1e9
	dropped := map[int]bool{}
	for i := 1; i < n; i++ {
		d := float64(ns[i] - ns[i-1])
		if d <= limit {
			continue
		}
		missing := int(math.Round(d/(period*1e9))) - 1
		if missing < 1 {
			missing = 1
		}
		for k := 0; k < missing; k++ {
			if s := i + gaps + k; s < fps {
				dropped[s] = true
			}
		}
		gaps += missing
	}
	if gaps == 0 {
		slots = make([]int64, n)
		for i, v := range ns {
			slots[i] = nearest(v)
		}
		return slots, 0
	}

	for s := 0; s < fps; s++ {
		if !dropped[s] {
			slots = append(slots, int64(s))
		}
	}
	if len(slots) > n {
		slots = slots[:n]
	}
	for len(slots) < n {
		next := nearest(ns[len(slots)])
		if k := len(slots); k > 0 && next <= slots[k-1] {
			next = slots[k-1] + 1
		}
		slots = append(slots, next)
	}
	return slots, gaps
}

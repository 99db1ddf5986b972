// Package ingest drives sessions through the pipeline: bookkeeping rows,
// one transaction per topic, the reparse policy and the camera trigger
// correction that runs after each batch of split sessions.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"bagetl/internal/datasource"
	"bagetl/internal/etlerr"
	"bagetl/internal/frame"
	"bagetl/internal/metrics"
	"bagetl/internal/resolver"
	"bagetl/internal/schema"
	"bagetl/internal/storage"
	"bagetl/internal/storage/csvfile"
	"bagetl/internal/transformer"
)

// Logf receives progress and skip lines. Tests may replace it.
var Logf = log.Printf

const (
	defaultBatchSize = 5000
	topicSavepoint   = "topic"
)

// Config wires an Orchestrator.
type Config struct {
	Job      string
	Registry *schema.Registry
	Repo     storage.Repository
	Opener   datasource.Opener
	// Blobs receives image and packet payloads. Nil fails every blob topic
	// that has messages.
	Blobs transformer.Blobs
	// CSV, when set, also writes every normalized frame as a CSV file.
	CSV *csvfile.Writer

	Policy Policy
	// Decider, when set, replaces Policy for parsed sessions.
	Decider Decider

	// TripProfile selects the trip of new sessions; 0 records none.
	TripProfile int
	// BaseStation overrides the profile's base station.
	BaseStation string
	VehicleID   int64
	BatchSize   int

	// Correction enables the trigger correction pass.
	Correction *Correction
}

// Orchestrator loads sessions one at a time. It is not safe for concurrent
// use.
type Orchestrator struct {
	cfg    Config
	runID  string
	res    *resolver.Resolver
	gate   *reparseGate
	seeded bool
}

// New checks cfg and returns an Orchestrator with a fresh run id.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Repo == nil {
		return nil, errors.New("ingest: no repository")
	}
	if cfg.Opener == nil {
		return nil, errors.New("ingest: no log opener")
	}
	if cfg.Registry == nil {
		cfg.Registry = schema.Default()
	}
	if cfg.Job == "" {
		cfg.Job = "bagetl"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.VehicleID == 0 {
		cfg.VehicleID = schema.DefaultVehicle.ID
	}
	if cfg.TripProfile != 0 {
		if _, err := schema.TripProfileByID(cfg.TripProfile); err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
	}
	return &Orchestrator{
		cfg:   cfg,
		runID: uuid.NewString(),
		res:   resolver.New(storage.AutoStore{Repo: cfg.Repo}),
		gate:  &reparseGate{policy: cfg.Policy, decider: cfg.Decider},
	}, nil
}

// RunID identifies this run in summaries and logs.
func (o *Orchestrator) RunID() string { return o.runID }

// Seed upserts the static reference rows: the vehicle, the sensors and the
// base stations. It is safe to run on every start.
func (o *Orchestrator) Seed(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStep(o.cfg.Job, "seed", err, time.Since(start)) }()

	tx, err := o.cfg.Repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	v := schema.DefaultVehicle
	if _, err = tx.Upsert(ctx, schema.TableVehicle, []string{"id", "name"}, []any{v.ID, v.Name}, []string{"id"}); err != nil {
		return fmt.Errorf("seed %s: %w", schema.TableVehicle, err)
	}
	for _, s := range schema.Sensors {
		if _, err = tx.Upsert(ctx, schema.TableSensors, []string{"id", "product_name"}, []any{s.ID, s.Name}, []string{"id"}); err != nil {
			return fmt.Errorf("seed %s: %w", schema.TableSensors, err)
		}
	}
	for _, b := range schema.BaseStations {
		_, err = tx.Upsert(ctx, schema.TableBaseStations,
			[]string{"id", "name", "latitude", "longitude", "altitude", "latitude_std", "longitude_std", "altitude_std"},
			[]any{b.ID, b.Name, b.Latitude, b.Longitude, b.Altitude, b.LatitudeStd, b.LongitudeStd, b.AltitudeStd},
			[]string{"id"})
		if err != nil {
			return fmt.Errorf("seed %s: %w", schema.TableBaseStations, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("seed: commit: %w", err)
	}
	o.seeded = true
	return nil
}

// Run ingests paths in order and returns one summary per path. Sessions are
// grouped into batches that start at split index 0; the correction pass, if
// enabled, runs after each batch. Only a sink failure or cancellation stops
// the run early.
func (o *Orchestrator) Run(ctx context.Context, paths []string) ([]Summary, error) {
	if err := o.Seed(ctx); err != nil {
		return nil, err
	}
	var (
		out   []Summary
		batch []int64
	)
	flush := func() error {
		ids := batch
		batch = nil
		if o.cfg.Correction == nil || len(ids) == 0 {
			return nil
		}
		return o.correct(ctx, ids)
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if _, split, err := ParseSessionName(p); err == nil && split == 0 {
			if err := flush(); err != nil {
				return out, err
			}
		}
		s, err := o.Ingest(ctx, p)
		out = append(out, s)
		if err != nil {
			return out, err
		}
		if s.State == StateParsed || s.State == StatePartiallyParsed {
			batch = append(batch, s.SessionID)
		}
	}
	return out, flush()
}

func (o *Orchestrator) correct(ctx context.Context, ids []int64) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStep(o.cfg.Job, "correction", err, time.Since(start)) }()

	rep, err := CorrectBatch(ctx, o.cfg.Repo, *o.cfg.Correction, ids)
	if err != nil {
		if etlerr.IsFatal(err) {
			return err
		}
		Logf("ingest: correction sessions=%v: %v", ids, err)
		return nil
	}
	for _, s := range rep.Shifts {
		metrics.RecordCorrection(o.cfg.Job, o.cfg.Correction.Table, s)
	}
	Logf("ingest: %s", rep)
	return nil
}

// session is the per-session state threaded through topic loading.
type session struct {
	name      string
	path      string
	id        int64
	overwrite bool
}

// Ingest loads one session. Topic failures end up in the summary; the
// returned error is non-nil only for a sink failure or cancellation.
func (o *Orchestrator) Ingest(ctx context.Context, path string) (sum Summary, err error) {
	start := time.Now()
	sum = Summary{RunID: o.runID, Session: filepath.Base(path), Path: path, State: StateUnknown}
	defer func() {
		sum.Duration = time.Since(start)
		metrics.RecordStep(o.cfg.Job, "session", sum.Err, sum.Duration)
		Logf("ingest: run=%s %s", o.runID, sum)
	}()

	if !o.seeded {
		if err := o.Seed(ctx); err != nil {
			sum.State, sum.Err = StateFailed, err
			return sum, err
		}
	}

	lg, err := o.cfg.Opener.Open(ctx, path)
	if err != nil {
		var read *etlerr.ForeignSourceReadError
		if !errors.As(err, &read) {
			err = &etlerr.ForeignSourceReadError{Path: path, Err: err}
		}
		sum.State, sum.Err = StateFailed, err
		return sum, ctx.Err()
	}
	defer lg.Close()

	sess := &session{name: sum.Session, path: path}
	skip, err := o.register(ctx, sess, &sum)
	if err != nil {
		sum.State, sum.Err = StateFailed, err
		if etlerr.IsFatal(err) || ctx.Err() != nil {
			return sum, err
		}
		return sum, nil
	}
	if skip {
		sum.State = StateSkipped
		return sum, nil
	}
	sum.SessionID = sess.id
	sum.State = StateParsing
	o.res.Reset()

	topics, err := lg.Topics(ctx)
	if err != nil {
		sum.State, sum.Err = StateFailed, &etlerr.ForeignSourceReadError{Path: path, Err: err}
		return sum, ctx.Err()
	}
	sort.Strings(topics)

	for _, t := range topics {
		if err := ctx.Err(); err != nil {
			sum.State, sum.Err = StatePartiallyParsed, err
			return sum, err
		}
		r := o.topic(ctx, lg, sess, t)
		sum.add(r)
		metrics.RecordTopic(o.cfg.Job, r.Outcome, r.Kind())
		if r.Outcome != OutcomeLoaded {
			Logf("ingest: session=%s topic=%s %s (%s): %v", sess.name, t, r.Outcome, r.Kind(), r.Err)
		}
		if etlerr.IsFatal(r.Err) || errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
			sum.State, sum.Err = StatePartiallyParsed, r.Err
			return sum, r.Err
		}
	}

	complete := true
	for _, r := range sum.Topics {
		if r.Outcome == OutcomeFailed || etlerr.Kind(r.Err) == "source_read" {
			complete = false
		}
	}
	if err := o.finish(ctx, lg, sess, complete); err != nil {
		sum.State, sum.Err = StatePartiallyParsed, err
		if etlerr.IsFatal(err) || ctx.Err() != nil {
			return sum, err
		}
		return sum, nil
	}
	if complete {
		sum.State = StateParsed
	} else {
		sum.State = StatePartiallyParsed
	}
	return sum, nil
}

// register creates or refreshes the bag_files row of sess and its trip. It
// reports skip=true when the session is parsed and must be left alone.
func (o *Orchestrator) register(ctx context.Context, sess *session, sum *Summary) (skip bool, err error) {
	tx, err := o.cfg.Repo.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || skip {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Select(ctx, schema.TableBagFiles, []string{"id", "parsed", "trips_id"},
		storage.Where(storage.Eq("name", sess.name)), nil, 1)
	if err != nil {
		return false, fmt.Errorf("look up %s: %w", sess.name, err)
	}
	var tripID any
	if len(rows) == 1 {
		v, _ := transformer.Cast(schema.TypeBool, rows[0][1])
		if parsed, _ := v.(bool); parsed {
			ok, err := o.gate.overwrite(ctx, sess.name)
			if err != nil {
				return false, err
			}
			if !ok {
				Logf("ingest: session=%s already parsed; skipped", sess.name)
				return true, nil
			}
			sum.Overwritten = true
		}
		// A known session keeps its trip. An unfinished one is resumed and
		// may replace what an earlier attempt loaded.
		sess.overwrite = true
		tripID, _ = transformer.Cast(schema.TypeInt64, rows[0][2])
	}

	started, _, perr := ParseSessionName(sess.name)
	if tripID == nil && o.cfg.TripProfile != 0 {
		date := "unknown"
		if perr == nil {
			date = started.Format("2006-01-02")
		}
		id, err := o.upsertTrip(ctx, tx, date)
		if err != nil {
			return false, err
		}
		tripID = id
	}

	var datetime any
	if perr == nil {
		datetime = started.Format(datetimeLayout)
	} else {
		Logf("ingest: %v", perr)
	}
	id, err := tx.Upsert(ctx, schema.TableBagFiles,
		[]string{"name", "vehicle_id", "trips_id", "file_path", "datetime", "parsed"},
		[]any{sess.name, o.cfg.VehicleID, tripID, sess.path, datetime, false},
		[]string{"name"})
	if err != nil {
		return false, fmt.Errorf("register %s: %w", sess.name, err)
	}
	sess.id = id
	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("register %s: commit: %w", sess.name, err)
	}
	return false, nil
}

func (o *Orchestrator) upsertTrip(ctx context.Context, tx storage.Tx, date string) (int64, error) {
	p, err := schema.TripProfileByID(o.cfg.TripProfile)
	if err != nil {
		return 0, err
	}
	station := p.BaseStation
	if o.cfg.BaseStation != "" {
		station = o.cfg.BaseStation
	}
	var stationID any
	if b, ok := schema.BaseStationByName(station); ok {
		stationID = b.ID
	}
	id, err := tx.Upsert(ctx, schema.TableTrips,
		[]string{"name", "date", "base_stations_id", "description", "passengers", "driver", "notes", "date_added"},
		[]any{p.Name, date, stationID, p.Description, p.Passengers, p.Driver, p.Notes, time.Now().UTC().Format(datetimeLayout)},
		[]string{"name", "date"})
	if err != nil {
		return 0, fmt.Errorf("trip %q %s: %w", p.Name, date, err)
	}
	return id, nil
}

// finish marks the session parsed when complete and records its end time.
func (o *Orchestrator) finish(ctx context.Context, lg datasource.Log, sess *session, complete bool) (err error) {
	var end any
	if t, err := lg.End(ctx); err == nil && !t.IsZero() {
		end = t.UTC().Format(datetimeLayout)
	}
	tx, err := o.cfg.Repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if _, err = tx.Update(ctx, schema.TableBagFiles, []string{"parsed", "datetime_end"}, []any{complete, end},
		storage.Where(storage.Eq("id", sess.id))); err != nil {
		return fmt.Errorf("finish %s: %w", sess.name, err)
	}
	return tx.Commit(ctx)
}

// topic loads one topic and reports its outcome.
func (o *Orchestrator) topic(ctx context.Context, lg datasource.Log, sess *session, topic string) TopicResult {
	start := time.Now()
	if p, ok := o.cfg.Registry.LookupParam(topic); ok {
		r := o.params(ctx, lg, sess, p)
		metrics.RecordStep(o.cfg.Job, "topic", r.Err, time.Since(start))
		return r
	}
	rule, ok := o.cfg.Registry.Lookup(topic)
	if !ok {
		return TopicResult{Topic: topic, Outcome: OutcomeSkipped, Err: &etlerr.UnmappedTopicWarning{Topic: topic}}
	}
	r := o.load(ctx, lg, sess, rule)
	metrics.RecordStep(o.cfg.Job, "topic", r.Err, time.Since(start))
	return r
}

func (o *Orchestrator) load(ctx context.Context, lg datasource.Log, sess *session, rule schema.Rule) TopicResult {
	r := TopicResult{Topic: rule.Topic, Table: rule.Table}
	skipped := func(err error) TopicResult {
		r.Outcome, r.Err = OutcomeSkipped, readError(sess.path, rule.Topic, err)
		return r
	}
	failed := func(err error) TopicResult {
		r.Outcome, r.Err = OutcomeFailed, err
		return r
	}

	n, err := lg.MessageCount(ctx, rule.Topic)
	if err != nil {
		return skipped(err)
	}
	if n == 0 {
		r.Outcome = OutcomeLoaded
		return r
	}
	f, err := frame.Build(ctx, lg, rule.Topic, rule.RequestedFields())
	if err != nil {
		if ctx.Err() != nil {
			return failed(ctx.Err())
		}
		return skipped(err)
	}

	// Foreign keys resolve in their own transactions, so this runs before
	// the topic transaction opens.
	nf, err := transformer.Normalize(ctx, f, rule, sess.id, o.res, o.cfg.Blobs)
	if err != nil {
		return failed(err)
	}

	if o.cfg.CSV != nil {
		path, err := o.cfg.CSV.Write(sess.name, rule.Topic, nf)
		if err != nil {
			return failed(err)
		}
		r.File = path
	}

	loaded, err := o.copy(ctx, rule, sess, nf)
	if err != nil {
		return failed(err)
	}
	r.Outcome, r.Rows = OutcomeLoaded, loaded
	metrics.RecordRow(o.cfg.Job, rule.Table, loaded)
	metrics.RecordBatches(o.cfg.Job, (loaded+int64(o.cfg.BatchSize)-1)/int64(o.cfg.BatchSize))
	return r
}

// copy bulk-loads f inside one transaction. A uniqueness violation rolls
// back to the savepoint; when the session may be overwritten its rows in
// the table are deleted and the load is retried once.
func (o *Orchestrator) copy(ctx context.Context, rule schema.Rule, sess *session, f *frame.Frame) (n int64, err error) {
	tx, err := o.cfg.Repo.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = tx.Savepoint(ctx, topicSavepoint); err != nil {
		return 0, err
	}
	n, err = storage.CopyRows(ctx, tx, rule.Table, f.Columns, f.Rows, o.cfg.BatchSize)
	if errors.Is(err, storage.ErrDuplicate) {
		conflict := &etlerr.DuplicateSessionDataConflict{Table: rule.Table, SessionID: sess.id, Err: err}
		if !sess.overwrite {
			return 0, conflict
		}
		Logf("ingest: %v; replacing", conflict)
		if err = tx.RollbackTo(ctx, topicSavepoint); err != nil {
			return 0, err
		}
		var deleted int64
		if deleted, err = tx.Delete(ctx, rule.Table, sessionRows(rule, sess.id)); err != nil {
			return 0, fmt.Errorf("delete session %d from %s: %w", sess.id, rule.Table, err)
		}
		Logf("ingest: deleted %d rows of session %d from %s", deleted, sess.id, rule.Table)
		n, err = storage.CopyRows(ctx, tx, rule.Table, f.Columns, f.Rows, o.cfg.BatchSize)
		if errors.Is(err, storage.ErrDuplicate) {
			err = &etlerr.DuplicateSessionDataConflict{Table: rule.Table, SessionID: sess.id, Err: err}
		}
	}
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", rule.Table, err)
	}
	return n, nil
}

func readError(path, topic string, err error) error {
	var read *etlerr.ForeignSourceReadError
	if errors.As(err, &read) {
		return err
	}
	return &etlerr.ForeignSourceReadError{Path: path, Topic: topic, Err: err}
}

// sessionRows selects the rows rule loaded for a session. Tables shared by
// several sensors are narrowed to the rule's sensor.
func sessionRows(rule schema.Rule, sessionID int64) storage.Predicate {
	p := storage.Where(storage.Eq(rule.SessionColumn, sessionID))
	if rule.SensorID != 0 {
		p = append(p, storage.Eq("sensors_id", rule.SensorID))
	}
	return p
}

// params upserts the first message of a parameter topic.
func (o *Orchestrator) params(ctx context.Context, lg datasource.Log, sess *session, p schema.ParamRule) (r TopicResult) {
	r = TopicResult{Topic: p.Topic, Table: p.Table}
	fields := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		fields[i] = f.Source
	}
	row, ok, err := frame.FirstRow(ctx, lg, p.Topic, fields)
	if err != nil {
		r.Outcome, r.Err = OutcomeSkipped, readError(sess.path, p.Topic, err)
		return r
	}
	r.Outcome = OutcomeLoaded
	if !ok {
		return r
	}

	values := []any{sess.id, p.SensorID}
	for i, f := range p.Fields {
		v, err := transformer.Cast(f.Type, row[i])
		if err != nil {
			r.Outcome = OutcomeFailed
			r.Err = &etlerr.SchemaMismatchError{Topic: p.Topic, Table: p.Table, Column: f.Column, Row: 0, Err: err}
			return r
		}
		values = append(values, v)
	}

	tx, err := o.cfg.Repo.Begin(ctx)
	if err != nil {
		r.Outcome, r.Err = OutcomeFailed, err
		return r
	}
	if _, err = tx.Upsert(ctx, p.Table, p.Columns(), values, p.ConflictColumns()); err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		r.Outcome, r.Err = OutcomeFailed, fmt.Errorf("upsert %s: %w", p.Table, err)
		return r
	}
	r.Rows = 1
	metrics.RecordRow(o.cfg.Job, p.Table, 1)
	return r
}

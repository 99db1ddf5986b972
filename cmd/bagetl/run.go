package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"bagetl/internal/blob"
	"bagetl/internal/config"
	"bagetl/internal/datasource"
	"bagetl/internal/datasource/file"
	"bagetl/internal/ingest"
	"bagetl/internal/schema"
	"bagetl/internal/storage"
	"bagetl/internal/storage/csvfile"
)

// csvKind loads into an in-process store and keeps only the CSV files.
const csvKind = "csv"

var errUsage = errors.New("usage")

// newRepositoryFn is swapped in tests.
var newRepositoryFn = storage.New

// sessionPaths returns the sessions to load: the single positional argument,
// else the list file named by source.options.list, else every session found
// under source.dir.
func sessionPaths(p config.Pipeline, args []string) ([]string, error) {
	switch {
	case len(args) > 1:
		return nil, errUsage
	case len(args) == 1:
		return args, nil
	}
	if list := p.Source.Options.String("list", ""); list != "" {
		return file.ReadList(list)
	}
	if p.Source.Dir == "" {
		return nil, fmt.Errorf("no session given and no source.dir configured")
	}
	paths, err := file.Discover(p.Source.Dir, p.Source.Ext)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no *%s sessions under %s", p.Source.Ext, p.Source.Dir)
	}
	return paths, nil
}

// initRepository opens the configured store and creates the reference and
// topic tables when asked to, or when the store starts empty.
func initRepository(ctx context.Context, p config.Pipeline, reg *schema.Registry) (storage.Repository, error) {
	kind := p.Storage.Kind
	if kind == csvKind {
		kind = "memory"
	}
	repo, err := newRepositoryFn(ctx, storage.Config{Kind: kind, DSN: p.Storage.DB.DSN})
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}
	if p.Storage.DB.AutoCreateTable || kind == "memory" {
		tables := append(schema.ReferenceTables(), reg.Tables()...)
		if err := storage.EnsureTables(ctx, repo, tables); err != nil {
			repo.Close()
			return nil, fmt.Errorf("ensure tables: %w", err)
		}
	}
	return repo, nil
}

func csvWriter(p config.Pipeline) *csvfile.Writer {
	if p.Output.CSVDir == "" {
		return nil
	}
	return &csvfile.Writer{Dir: p.Output.CSVDir, Overwrite: p.Output.Overwrite}
}

func orchestratorConfig(p config.Pipeline, reg *schema.Registry, repo storage.Repository, opener datasource.Opener, decider ingest.Decider) (ingest.Config, error) {
	cfg := ingest.Config{
		Job:         p.Job,
		Registry:    reg,
		Repo:        repo,
		Opener:      opener,
		CSV:         csvWriter(p),
		TripProfile: p.Ingest.TripProfile,
		BaseStation: p.Ingest.BaseStation,
		VehicleID:   p.Ingest.VehicleID,
		BatchSize:   p.Storage.BatchSize,
	}
	if p.Ingest.Policy == "ask" {
		cfg.Decider = decider
	} else {
		policy, err := ingest.ParsePolicy(p.Ingest.Policy)
		if err != nil {
			return cfg, err
		}
		cfg.Policy = policy
	}
	if p.Blobs.Dir == "" {
		log.Printf("blobs: no blobs.dir; image and packet payloads are hashed but not stored")
	}
	cfg.Blobs = blob.NewStore(p.Blobs.Dir)
	if p.Correction.Enabled {
		cfg.Correction = &ingest.Correction{
			Table:     p.Correction.Table,
			SensorIDs: p.Correction.SensorIDs,
			Period:    p.Correction.PeriodSeconds,
		}
	}
	return cfg, nil
}

// run loads paths and prints one summary per session to out. Sessions that
// fail do not fail the run; only errors that stop it do.
func run(ctx context.Context, p config.Pipeline, paths []string, decider ingest.Decider, out io.Writer) error {
	if p.Storage.Kind == csvKind && p.Output.CSVDir == "" {
		return fmt.Errorf("storage kind %q needs output.csv_dir", csvKind)
	}
	opener, err := datasource.Lookup(p.Source.Kind)
	if err != nil {
		return err
	}
	reg := schema.Default()
	repo, err := initRepository(ctx, p, reg)
	if err != nil {
		return err
	}
	defer repo.Close()

	cfg, err := orchestratorConfig(p, reg, repo, opener, decider)
	if err != nil {
		return err
	}
	o, err := ingest.New(cfg)
	if err != nil {
		return err
	}
	log.Printf("run %s: %d session(s)", o.RunID(), len(paths))

	sums, err := o.Run(ctx, paths)
	failed := 0
	for _, s := range sums {
		fmt.Fprintln(out, s.String())
		if s.State == ingest.StateFailed {
			failed++
		}
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", o.RunID(), err)
	}
	if failed > 0 {
		log.Printf("run %s: %d of %d session(s) failed", o.RunID(), failed, len(sums))
	}
	return nil
}

// runExport writes the stored rows of session under output.csv_dir.
func runExport(ctx context.Context, p config.Pipeline, session string, out io.Writer) error {
	w := csvWriter(p)
	if w == nil {
		return fmt.Errorf("export needs output.csv_dir")
	}
	if p.Storage.Kind == csvKind {
		return fmt.Errorf("export needs a database storage kind, not %q", csvKind)
	}
	reg := schema.Default()
	repo, err := initRepository(ctx, p, reg)
	if err != nil {
		return err
	}
	defer repo.Close()

	results, err := ingest.Export(ctx, repo, reg, session, *w)
	for _, r := range results {
		if r.Outcome == ingest.OutcomeLoaded {
			fmt.Fprintf(out, "%s\t%d\t%s\n", r.Topic, r.Rows, r.File)
		}
	}
	if err != nil {
		return err
	}
	log.Printf("exported %s to %s", filepath.Base(session), w.Dir)
	return nil
}

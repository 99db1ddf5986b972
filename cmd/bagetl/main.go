// Command bagetl loads recorded mapping-van sessions into a database.
//
//	bagetl -config pipeline.json                 # every session under source.dir
//	bagetl -config pipeline.json run_0.bag       # one session
//	bagetl -config pipeline.json -export run_0.bag
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"bagetl/internal/config"
	"bagetl/internal/metrics"
	"bagetl/internal/metrics/datadog"
	"bagetl/internal/metrics/prompush"

	// Log readers and storage backends register themselves; the config
	// picks one of each.
	_ "bagetl/internal/datasource/csvdir"
	_ "bagetl/internal/datasource/memory"
	_ "bagetl/internal/storage/all"
)

func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		policyFlg         string
		exportFlg         string
		tripFlg           int
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/mapping_van.json", "pipeline config path (.json, .yaml or .yml)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides env METRICS_BACKEND)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&policyFlg, "policy", "", "reparse policy: skip, overwrite_all, overwrite_one or ask (overrides ingest.policy)")
	flag.IntVar(&tripFlg, "trip", 0, "trip profile number for new sessions (overrides ingest.trip_profile)")
	flag.StringVar(&exportFlg, "export", "", "write the stored rows of this session as CSV files and exit")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	p.ApplyEnv(os.Getenv)
	if policyFlg != "" {
		p.Ingest.Policy = policyFlg
	}
	if tripFlg != 0 {
		p.Ingest.TripProfile = tripFlg
	}

	issues := config.ValidatePipeline(p)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	paths, err := sessionPaths(p, flag.Args())
	if errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [session]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err != nil && exportFlg == "" {
		fatalf("%v", err)
	}

	flush := setupMetrics(metricsBackend(metricsBackendFlg, os.Getenv), pushGatewayURL(pushGatewayURLFlg, os.Getenv), p.Job, *verbose)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	timeout, _ := p.Runtime.TimeoutDuration()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if *verbose {
		log.Printf("pipeline: job=%s source=%s storage=%s policy=%s trip=%d sessions=%d",
			p.Job, p.Source.Kind, p.Storage.Kind, p.Ingest.Policy, p.Ingest.TripProfile, len(paths))
	}

	if exportFlg != "" {
		err = runExport(ctx, p, exportFlg, os.Stdout)
	} else {
		err = run(ctx, p, paths, newPromptDecider(os.Stdin, os.Stderr), os.Stdout)
	}
	if err != nil {
		flush()
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// metricsBackend decides the backend: flag → env → none.
func metricsBackend(flagValue string, getenv func(string) string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := getenv("METRICS_BACKEND"); v != "" {
		return v
	}
	return "none"
}

// pushGatewayURL decides the Pushgateway URL: flag → env → default.
func pushGatewayURL(flagValue string, getenv func(string) string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := getenv("PUSHGATEWAY_URL"); v != "" {
		return v
	}
	return "http://localhost:9091"
}

// setupMetrics installs the chosen backend and returns its flush function,
// safe to call more than once.
func setupMetrics(backendName, gwURL, job string, verbose bool) func() {
	if job == "" {
		job = "bagetl"
	}
	switch backendName {
	case "pushgateway":
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, job)
		metrics.SetBackend(b)

	case "datadog":
		addr := os.Getenv("DD_DOGSTATSD_ADDR")
		if addr == "" {
			addr = "localhost:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "bagetl.", GlobalTags: []string{"job:" + job}})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", addr, backendName, job)
		metrics.SetBackend(b)

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}
		return func() {}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
		return func() {}
	}

	done := false
	return func() {
		if done {
			return
		}
		done = true
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

// Command fleetopt solves a routing problem read from a YAML or JSON file and
// prints the result as JSON.
//
//	fleetopt -iterations 500 -timeout 10s problem.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"fleetroute/internal/logs"
	"fleetroute/internal/opt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "fleetopt: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fleetopt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	iterations := fs.Int("iterations", opt.DefaultIterations, "local search iterations")
	refine := fs.Int("refine", opt.DefaultRefinePasses, "3-opt refinement passes")
	workers := fs.Int("workers", 0, "neighborhood workers (0 = GOMAXPROCS)")
	timeout := fs.Duration("timeout", 30*time.Second, "time budget; the best plan so far is returned when it runs out")
	speed := fs.Float64("speed", opt.DefaultSpeedKmh, "average travel speed in km/h")
	logLevel := fs.String("log-level", "warn", "log level written to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one problem file")
	}

	p, err := readProblem(fs.Arg(0))
	if err != nil {
		return err
	}
	log, err := logs.New(stderr, *logLevel, true)
	if err != nil {
		return err
	}

	res, err := opt.New(opt.Options{
		Iterations:   *iterations,
		RefinePasses: *refine,
		Workers:      *workers,
		SpeedKmh:     *speed,
		TimeBudget:   *timeout,
		Logger:       log,
	}).Optimize(ctx, p)
	if err != nil && res.Algorithm == "" {
		return err
	}
	if err != nil {
		log.Warn("interrupted, printing best plan so far", "error", err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// readProblem decodes a problem file. Files ending in .json are read as JSON,
// everything else as YAML.
func readProblem(path string) (opt.Problem, error) {
	var p opt.Problem
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrap(err, "read problem")
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &p)
	} else {
		err = yaml.Unmarshal(raw, &p)
	}
	return p, errors.Wrapf(err, "parse %s", path)
}

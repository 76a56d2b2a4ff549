// Command wavesolve solves one instance file and writes the wave in the
// solution text format.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"wavepick/internal/config"
	"wavepick/internal/opt"
	"wavepick/internal/wave"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "wavesolve:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("wavesolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath  = fs.String("config", "", "YAML config file; only the solver section is used")
		out      = fs.String("o", "", "write the solution here instead of stdout")
		budget   = fs.Duration("time", 10*time.Second, "time budget")
		seed     = fs.Int64("seed", 0, "random seed (0 keeps the configured seed)")
		workers  = fs.Int("workers", 0, "batch evaluation workers (0 = NumCPU)")
		batch    = fs.Bool("batch", false, "enable batch evaluation of perturbations")
		stats    = fs.Bool("stats", false, "print search metrics as JSON on stderr")
		logLevel = fs.String("log-level", "warn", "log level")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected one instance file")
	}
	lvl, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(stderr)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	scfg := cfg.Solver
	if *seed != 0 {
		scfg.Seed = *seed
	}
	if *batch {
		scfg.UseBatchEvaluation = true
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	inst, err := wave.ReadInstance(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}

	res, err := opt.Solve(inst, scfg, time.Now().Add(*budget),
		opt.WithAcceleration(opt.NewAccelerationContext(*workers)),
		opt.WithLogger(logrus.WithField("prefix", "opt").WithField("instance", fs.Arg(0))))
	if err != nil {
		return err
	}
	if *stats {
		enc := json.NewEncoder(stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res.Metrics)
	}
	if res.Status == opt.StatusNoFeasible {
		return res.Err
	}

	if *out == "" {
		return wave.WriteSolution(stdout, res.Solution)
	}
	of, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := wave.WriteSolution(of, res.Solution); err != nil {
		_ = of.Close()
		return err
	}
	return of.Close()
}

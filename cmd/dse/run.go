package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/benbjohnson/dse"
	"github.com/benbjohnson/dse/metrics"
	"github.com/benbjohnson/dse/ssagraph"
	"github.com/benbjohnson/dse/store"
	"github.com/benbjohnson/dse/z3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/tools/go/ssa"
)

// DefaultFuncPrefix selects the functions explored when none are named.
const DefaultFuncPrefix = "Symbolic"

// RunCommand represents a command exploring the functions of a package.
type RunCommand struct {
	OptionsPath string
	Funcs       []string
	Prefix      string
	Dir         string
	NoSolver    bool
	StorePath   string
	MetricsAddr string
	Dump        bool

	Stdout io.Writer
}

// NewRunCommand returns a new instance of RunCommand.
func NewRunCommand() *RunCommand {
	return &RunCommand{
		Prefix: DefaultFuncPrefix,
		Stdout: os.Stdout,
	}
}

// Command returns the cobra command bound to cmd.
func (cmd *RunCommand) Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "run [flags] <package>",
		Short: "Explore the functions of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cmd.Stdout = c.OutOrStdout()
			return cmd.Run(c.Context(), args[0])
		},
	}
	fs := c.Flags()
	fs.StringVarP(&cmd.OptionsPath, "options", "o", "", "options file (YAML)")
	fs.StringSliceVarP(&cmd.Funcs, "func", "f", nil, "function names to explore")
	fs.StringVar(&cmd.Prefix, "prefix", cmd.Prefix, "explore functions with this prefix when no -func is given")
	fs.StringVarP(&cmd.Dir, "dir", "C", "", "directory to load the package from")
	fs.BoolVar(&cmd.NoSolver, "no-solver", false, "fork without consulting the solver")
	fs.StringVar(&cmd.StorePath, "store", "", "persist results to a database at this path")
	fs.StringVar(&cmd.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	fs.BoolVar(&cmd.Dump, "dump", false, "dump every collected state")
	return c
}

// Run loads pkg and explores the selected functions.
func (cmd *RunCommand) Run(ctx context.Context, pkg string) error {
	opts := dse.DefaultOptions()
	if cmd.OptionsPath != "" {
		var err error
		if opts, err = dse.LoadOptions(cmd.OptionsPath); err != nil {
			return err
		}
	}

	prog, pkgs, err := ssagraph.Load(ctx, cmd.Dir, pkg)
	if err != nil {
		return err
	}
	fns := ssagraph.Functions(pkgs, cmd.Prefix, cmd.Funcs...)
	if len(fns) == 0 {
		return fmt.Errorf("no functions to explore in %s", pkg)
	}

	var solver dse.Solver
	if !cmd.NoSolver {
		s := z3.NewSolver()
		defer s.Close()
		solver = s
	}

	g := ssagraph.NewGraph(prog)
	m := dse.NewMachine[*ssa.Function, ssa.Instruction](g, ssagraph.NewStepper(dse.NewForker[*ssa.Function, ssa.Instruction](opts, solver)))
	m.Options = opts
	m.Logger = slog.Default()

	if cmd.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m.Observers = append(m.Observers, metrics.NewObserver[*ssa.Function, ssa.Instruction](reg))

		shutdown, err := serveMetrics(cmd.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	var so *store.Observer[*ssa.Function, ssa.Instruction]
	if cmd.StorePath != "" {
		db, err := store.Open(store.Config{Path: cmd.StorePath, SyncWrites: true})
		if err != nil {
			return err
		}
		defer db.Close()

		so = store.NewObserver[*ssa.Function, ssa.Instruction](db)
		m.Observers = append(m.Observers, so)
	}

	report, err := m.Run(ctx, fns)
	if report != nil {
		cmd.printReport(report)
	}
	if err != nil {
		return err
	} else if so != nil {
		return so.Err()
	}
	return nil
}

func (cmd *RunCommand) printReport(report *dse.Report[*ssa.Function, ssa.Instruction]) {
	run := report.Run
	fmt.Fprintf(cmd.Stdout, "run %s: %s after %d steps in %s\n", run.ID, report.Reason, run.Steps.Total(), run.Elapsed())
	fmt.Fprintf(cmd.Stdout, "coverage: %.1f%% (%d/%d statements)\n", run.Coverage.Percent(), run.Coverage.CoveredStatements(), run.Coverage.TotalStatements())

	for _, s := range report.States {
		var inputs string
		if models := s.Models(); len(models) > 0 {
			inputs = fmt.Sprint(models[0])
		}
		fmt.Fprintf(cmd.Stdout, "%s %s depth=%d result=%v inputs=%s\n", s, s.Entry().Name(), s.Path().Depth(), s.Result(), inputs)
		if cmd.Dump {
			fmt.Fprintln(cmd.Stdout, strings.TrimSpace(s.Dump()))
		}
	}
}

// serveMetrics serves reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return func() { srv.Close() }, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/dataimport/internal/config"
	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/logging"
	"github.com/Iron-Ham/dataimport/internal/orchestrator"
	"github.com/Iron-Ham/dataimport/internal/request"
	"github.com/Iron-Ham/dataimport/internal/resolve"
	"github.com/Iron-Ham/dataimport/internal/tracker"
	"github.com/Iron-Ham/dataimport/internal/viewport"
)

var runCmd = &cobra.Command{
	Use:   "run <manifest.yaml>",
	Short: "Run an import pass over a request manifest",
	Long: `Run decodes a request manifest, loads its eager requests, then scrolls a
simulated viewport so lazy requests load as their elements become visible.
Lazy requests still hidden when scrolling stops are abandoned.

Each manifest entry may bind its key to a built-in module:
  echo     initializes successfully (default)
  silent   loads without an initialization hook
  broken   fails initialization
  panic    panics during initialization
  missing  is never registered, so its load fails

Examples:
  dataimport run page.yaml
  dataimport run page.yaml --steps 3
  dataimport run page.yaml --steps -1 --only './widgets/**' --output yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runOnly    string
	runSteps   int
	runTimeout time.Duration
	runOutput  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runOnly, "only", "", "glob restricting which keys are imported ('*' stops at '/', '**' does not)")
	runCmd.Flags().IntVar(&runSteps, "steps", 0, "viewport scroll steps after the eager batch (-1 scrolls to the end of the document)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Second, "abort loads still running after this long")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "table", "report format: table or yaml")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runOutput != "table" && runOutput != "yaml" {
		return fmt.Errorf("invalid --output %q: expected table or yaml", runOutput)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	scan, err := readManifest(args[0])
	if err != nil {
		return err
	}
	reqs, err := filterRequests(scan.Requests, runOnly)
	if err != nil {
		return err
	}

	resolver, err := resolve.New(cfg.Resolve.ResolverConfig())
	if err != nil {
		return err
	}
	registry, err := buildRegistry(resolver, reqs, scan.Bindings)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	bus := event.NewBus(event.WithPanicHandler(func(eventType string, recovered any, _ []byte) {
		logger.Error("event handler panicked", "event", eventType, "panic", recovered)
	}))
	report := newRunReport(reqs)
	bus.SubscribeAll(report.record)

	vp := viewport.New(cfg.Viewport.Height, bus)
	orch, err := orchestrator.New(orchestrator.Config{
		Resolver:   resolver,
		Loader:     registry,
		Visibility: vp,
		Bus:        bus,
		Logger:     logger,
	}, orchestrator.WithMaxConcurrency(cfg.Eager.MaxConcurrency))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	err = orch.OnScanned(ctx, orchestrator.ScanResult{Requests: reqs, Total: reqs.Total()}, func(last tracker.Settlement) {
		logger.Debug("last eager load settled", "key", string(last.Key), "failed", last.Failed())
	})
	if err != nil {
		return err
	}
	orch.Batch().Wait()

	scroll(vp, cfg.Viewport.ScrollStep, runSteps, documentExtent(reqs.Deferred))
	orch.Wait()
	orch.Close()
	report.reconcile(orch.Scheduler().States())

	if ctx.Err() != nil {
		return fmt.Errorf("import run %s timed out after %s", orch.RunID(), runTimeout)
	}

	out := cmd.OutOrStdout()
	if runOutput == "yaml" {
		return report.writeYAML(out)
	}
	report.writeTable(out)
	return nil
}

func readManifest(path string) (*request.Scan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open manifest")
	}
	defer func() { _ = f.Close() }()

	scan, err := request.DecodeManifest(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return scan, nil
}

func filterRequests(reqs request.Requests, pattern string) (request.Requests, error) {
	eager, err := reqs.Eager.Filter(pattern)
	if err != nil {
		return request.Requests{}, err
	}
	deferred, err := reqs.Deferred.Filter(pattern)
	if err != nil {
		return request.Requests{}, err
	}
	return request.Requests{Eager: eager, Deferred: deferred}, nil
}

// newLogger writes to the configured log directory, or to the command's
// stderr when none is set.
func newLogger(cmd *cobra.Command, lc config.LoggingConfig) (*logging.Logger, error) {
	level := logging.ParseLevel(lc.Level)
	if lc.Dir != "" {
		return logging.NewLogger(lc.Dir, level)
	}
	return logging.NewWriterLogger(cmd.ErrOrStderr(), level, lc.Format), nil
}

// scroll moves the viewport down step pixels at a time. A negative steps
// value scrolls until the viewport's bottom edge passes extent.
func scroll(vp *viewport.Viewport, step, steps, extent int) {
	if steps >= 0 {
		for range steps {
			vp.ScrollBy(step)
		}
		return
	}
	for vp.Top()+vp.Height() < extent {
		vp.ScrollBy(step)
	}
}

// documentExtent returns the lowest edge of any element in set.
func documentExtent(set request.Set) int {
	extent := 0
	for _, group := range set {
		for _, el := range group {
			if s, ok := el.(viewport.Spanner); ok {
				offset, height := s.Span()
				extent = max(extent, offset+height)
			}
		}
	}
	return extent
}

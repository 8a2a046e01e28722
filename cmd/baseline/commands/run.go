package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/baseline/am"
	"github.com/teranos/baseline/baseline"
	"github.com/teranos/baseline/dispatch"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/logger"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run discovered baselines",
	Long: `Run one orchestration pass.

Every definition matching the pattern is validated, queried, evaluated and
persisted. With more than one baseline each runs in its own child process
(dispatch.isolation = "process"); --only runs a single baseline in this
process and is how those children are started.

Exit codes with --only: 0 done, 3 skipped, 1 failed.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runPatternFlag   string
	runOnlyFlag      string
	runIDFlag        string
	runIsolationFlag string
)

func init() {
	RunCmd.Flags().StringVar(&runPatternFlag, "pattern", "", "SQL LIKE pattern on definition names (default baselines.pattern)")
	RunCmd.Flags().StringVar(&runOnlyFlag, "only", "", "Run only the baseline with this exact name")
	RunCmd.Flags().StringVar(&runIDFlag, "run-id", "", "Identifier recorded with every outcome of this pass")
	RunCmd.Flags().StringVar(&runIsolationFlag, "isolation", "", "process or inline (default dispatch.isolation)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := logger.WithComponent(cmd.Context(), "run")
	log := logger.ComponentLogger("baseline")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := baseline.Options{
		Schema:    cfg.Baselines.Schema,
		Pattern:   cfg.Baselines.Pattern,
		Isolation: cfg.Dispatch.Isolation,
		RunID:     runIDFlag,
	}
	if runPatternFlag != "" {
		opts.Pattern = runPatternFlag
	}
	if runIsolationFlag != "" {
		if runIsolationFlag != am.IsolationProcess && runIsolationFlag != am.IsolationInline {
			return errors.Newf("--isolation must be %s or %s", am.IsolationProcess, am.IsolationInline)
		}
		opts.Isolation = runIsolationFlag
	}

	session, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	executor, release, err := newExecutor(ctx, cfg)
	defer release()
	if err != nil {
		return err
	}

	var history baseline.History
	if h := historyStore(cfg, session); h != nil {
		history = h
	}
	pipeline := baseline.NewPipeline(session, executor, opts.Schema, log)

	if runOnlyFlag != "" {
		orch := baseline.NewOrchestrator(session, pipeline, nil, history, opts, log)
		res, err := orch.RunOne(ctx, runOnlyFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s rows=%d\n", res.Name, res.State, res.Rows)
		if code := baseline.ExitCode(res); code != dispatch.ExitOK {
			return &ExitError{Code: code}
		}
		return nil
	}

	// Fix the run id now so children record under the same one
	if opts.RunID == "" {
		opts.RunID = baseline.NewRunID()
	}
	childArgs := append([]string{"run", "--run-id", opts.RunID}, inheritedFlags(cmd)...)
	launcher, err := dispatch.NewProcessLauncher("", childArgs, log)
	if err != nil {
		return err
	}
	pool := dispatch.NewPool(launcher, dispatch.Config{
		Workers:          cfg.Dispatch.Workers,
		LaunchPerSecond:  cfg.Dispatch.LaunchPerSecond,
		MemoryPerChildGB: cfg.Dispatch.MemoryPerChildGB,
	}, log)

	orch := baseline.NewOrchestrator(session, pipeline, pool, history, opts, log)
	summary, err := orch.RunAll(ctx)
	if summary != nil {
		if renderErr := renderSummary(cmd, summary); renderErr != nil {
			return renderErr
		}
	}
	if err != nil {
		return err
	}

	if failures := summary.Failures(); len(failures) > 0 {
		for _, f := range failures {
			logger.Errorw("Baseline failed",
				logger.FieldBaseline, f.Name,
				logger.FieldExitCode, f.ExitCode,
				logger.FieldError, f.Err,
			)
		}
		return errors.Newf("%d of %d baselines failed (run %s)", len(failures), len(summary.Outcomes), summary.RunID)
	}
	return nil
}

func renderSummary(cmd *cobra.Command, summary *baseline.Summary) error {
	if len(summary.Outcomes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No baselines discovered")
		return nil
	}
	data := pterm.TableData{{"Baseline", "State", "Rows", "Exit", "Duration", "Error"}}
	for _, o := range summary.Outcomes {
		rows := "-"
		if o.State == baseline.StateDone {
			rows = fmt.Sprint(o.Rows)
		}
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		data = append(data, []string{
			o.Name,
			string(o.State),
			rows,
			fmt.Sprint(o.ExitCode),
			o.Duration.Round(time.Millisecond).String(),
			msg,
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render summary")
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

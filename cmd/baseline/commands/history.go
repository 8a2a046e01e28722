package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/baseline/errors"
)

// HistoryCmd represents the history command
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent baseline outcomes",
	Long:  "List the most recent baseline runs recorded in the baseline_runs table, newest first.",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyLimitFlag int

func init() {
	HistoryCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	session, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	store := historyStore(cfg, session)
	if store == nil {
		return errors.WithHint(
			errors.New("run history is not available"),
			"history needs history.enabled = true and the sqlite store")
	}

	runs, err := store.Recent(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}

	data := pterm.TableData{{"Started", "Run", "Baseline", "State", "Rows", "Duration", "Error"}}
	for _, r := range runs {
		state := r.State
		switch state {
		case "failed":
			state = pterm.Red(state)
		case "skipped":
			state = pterm.Yellow(state)
		}
		msg := r.Message
		if r.ErrorKind != "" {
			msg = r.ErrorKind + ": " + msg
		}
		data = append(data, []string{
			r.StartedAt.Local().Format(time.DateTime),
			shortID(r.RunID),
			r.Baseline,
			state,
			fmt.Sprint(r.Rows),
			r.Duration().Round(time.Millisecond).String(),
			msg,
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render history")
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Persistent flag names defined on the root command
const (
	FlagVerbose  = "verbose"
	FlagJSONLogs = "json-logs"
	FlagConfig   = "config"
)

// ExitError ends the process with Code and no message. A child run uses
// it to report skipped and failed baselines to its parent.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// inheritedFlags rebuilds the persistent flags a child process needs to
// log and configure itself like its parent.
func inheritedFlags(cmd *cobra.Command) []string {
	var args []string
	if v, _ := cmd.Flags().GetCount(FlagVerbose); v > 0 {
		args = append(args, fmt.Sprintf("--%s=%d", FlagVerbose, v))
	}
	if j, _ := cmd.Flags().GetBool(FlagJSONLogs); j {
		args = append(args, "--"+FlagJSONLogs)
	}
	if path, _ := cmd.Flags().GetString(FlagConfig); path != "" {
		args = append(args, "--"+FlagConfig, path)
	}
	return args
}

package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/baseline/baseline"
	"github.com/teranos/baseline/db"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/module"
)

// ListCmd represents the list command
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered baselines",
	Long:  "Discover baseline definitions and show whether each one's metadata would be accepted by run.",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var listPatternFlag string

func init() {
	ListCmd.Flags().StringVar(&listPatternFlag, "pattern", "", "SQL LIKE pattern on definition names (default baselines.pattern)")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pattern := cfg.Baselines.Pattern
	if listPatternFlag != "" {
		pattern = listPatternFlag
	}

	session, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	defs, err := session.Discover(cmd.Context(), cfg.Baselines.Schema, pattern)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No baselines in %s match %s\n", cfg.Baselines.Schema, pattern)
		return nil
	}

	loader := module.NewLoader(cfg.Modules.Dir)
	data := pterm.TableData{{"Baseline", "Module", "Description", "Log source", "Days", "Values", "Status"}}
	for _, def := range defs {
		data = append(data, listRow(loader, def))
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render baselines")
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func listRow(loader *module.Loader, def db.Definition) []string {
	md, err := baseline.ParseMetadata(def.Comment)
	if err == nil && !baseline.ValidName(def.Name) {
		err = errors.Newf("name %q is not a SQL identifier", def.Name)
	}
	if err != nil {
		return []string{def.Name, "", "", "", "", "", pterm.Red("invalid: " + err.Error())}
	}

	keys := make([]string, 0, len(md.RequiredValues))
	for k := range md.RequiredValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = k + "=" + md.RequiredValues[k]
	}

	// A broken manifest surfaces when the baseline runs
	manifest, _ := loader.Manifest(md.ModuleName)

	return []string{
		def.Name,
		md.ModuleName,
		manifest.Description,
		md.LogSource,
		fmt.Sprint(md.FilterDays),
		strings.Join(values, " "),
		pterm.Green("ok"),
	}
}

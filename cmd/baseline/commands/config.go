package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teranos/baseline/am"
	"github.com/teranos/baseline/errors"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or validate configuration",
	Long: `Display and check the effective configuration.

Configuration sources (in order of precedence):
1. Environment variables (BASELINE_* prefix, e.g. BASELINE_DISPATCH_WORKERS)
2. Project config (baseline.toml, searched upwards from the working directory)
3. User config (~/.baseline/config.toml)
4. System config (/etc/baseline/config.toml)
5. Default values

--config FILE replaces all of the above with FILE plus defaults.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configFormat      string
	configSourcesFlag bool
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	configShowCmd.Flags().BoolVar(&configSourcesFlag, "sources", false, "Show where each setting came from")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

// effectiveSettings returns the merged settings as a nested map keyed like
// the config file.
func effectiveSettings(cmd *cobra.Command) (map[string]interface{}, error) {
	path, _ := cmd.Flags().GetString(FlagConfig)
	if path == "" {
		if _, err := am.Load(); err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		return am.GetViper().AllSettings(), nil
	}

	v := viper.New()
	am.SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return v.AllSettings(), nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if configSourcesFlag {
		return showSources(cmd)
	}

	settings, err := effectiveSettings(cmd)
	if err != nil {
		return err
	}
	out, err := formatSettings(settings, configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func formatSettings(settings map[string]interface{}, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to JSON")
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to YAML")
		}
		return "# baseline configuration\n" + string(data), nil

	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to TOML")
		}
		return "# baseline configuration\n" + string(data), nil

	default:
		return "", errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func showSources(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString(FlagConfig); path != "" {
		return errors.New("--sources describes the layered configuration and cannot be combined with --config")
	}
	settings, err := am.Settings()
	if err != nil {
		return err
	}
	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range settings {
		data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render settings")
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration is valid\n  %s\n", cfg)
	return nil
}

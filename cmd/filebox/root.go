package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"filebox/internal/config"
	"filebox/internal/format"
)

// cliOptions holds the persistent flags shared by every command.
type cliOptions struct {
	json      bool
	yaml      bool
	logLevel  string
	logFormat string
	owner     string
}

// structured reports whether output should be machine readable.
func (o *cliOptions) structured() bool {
	return o.json || o.yaml
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           "filebox",
		Short:         "Filebox stores files with content deduplication",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.json && opts.yaml {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}
			if opts.yaml {
				outputFormatter = format.YAMLFormatter{}
			}
			warning, err := configureLoggerForCLI(opts.logLevel, cfg.LogLevel, opts.logFormat)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&opts.yaml, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", logFormatTint, "log format (tint, text, json)")
	cmd.PersistentFlags().StringVar(&opts.owner, "owner", "", "act as this owner (default: config owner, then the login name)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newPutCmd(cfg, opts),
		newListCmd(cfg, opts),
		newShowCmd(cfg, opts),
		newGetCmd(cfg, opts),
		newRmCmd(cfg, opts),
		newCheckCmd(cfg, opts),
		newConfigCmd(cfg),
		newMigrateCmd(cfg, opts),
	)

	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"filebox/internal/api"
	"filebox/internal/config"
)

func newCheckCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify refcounts and payloads",
		Long:  "Verify that blob refcounts match file references and that every payload exists with its recorded digest. With --repair, refcounts are reconciled and orphan payloads are removed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				report, err := client.Check(cmd.Context(), repair)
				if err != nil {
					return err
				}
				if opts.structured() {
					if err := writeJSON(report); err != nil {
						return err
					}
				} else if err := writeCheckReport(report); err != nil {
					return err
				}
				if !report.OK() {
					return fmt.Errorf("check found %d issue(s)", len(report.Issues))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "reconcile refcounts and remove orphan payloads")
	return cmd
}

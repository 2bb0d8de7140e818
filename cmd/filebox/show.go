package main

import (
	"github.com/spf13/cobra"

	"filebox/internal/api"
	"filebox/internal/config"
)

func newShowCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show file details",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				resp, err := client.GetFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.structured() {
					return writeJSON(resp)
				}
				return writeFileDetail(resp)
			})
		},
	}
}

package main

import (
	"github.com/spf13/cobra"

	"filebox/internal/api"
	"filebox/internal/config"
)

func newListCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your files, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				resp, err := client.ListFiles(cmd.Context())
				if err != nil {
					return err
				}
				if opts.structured() {
					return writeJSON(resp)
				}
				return writeFileList(resp.Files)
			})
		},
	}
}

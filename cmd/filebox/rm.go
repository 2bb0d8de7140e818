package main

import (
	"github.com/spf13/cobra"

	"filebox/internal/api"
	"filebox/internal/config"
)

func newRmCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id> [<id>...]",
		Aliases: []string{"delete"},
		Short:   "Delete files",
		Args:    requireAtLeastOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				deleted := make([]string, 0, len(args))
				for _, id := range args {
					if err := client.DeleteFile(cmd.Context(), id); err != nil {
						return err
					}
					deleted = append(deleted, id)
					if !opts.structured() {
						if err := writePlain("deleted %s\n", id); err != nil {
							return err
						}
					}
				}
				if opts.structured() {
					return writeJSON(map[string]any{"deleted": deleted})
				}
				return nil
			})
		},
	}
}

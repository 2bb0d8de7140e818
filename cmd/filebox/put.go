package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"filebox/internal/api"
	"filebox/internal/config"
)

func newPutCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "put <path>",
		Short: "Upload a file",
		Args:  requireExactlyArgs(1, "path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}
			if name == "" {
				name = filepath.Base(path)
			}

			return withClient(cfg, opts, func(client *api.Client) error {
				resp, err := client.Upload(cmd.Context(), name, f, info.Size())
				if err != nil {
					return err
				}
				if opts.structured() {
					return writeJSON(resp)
				}
				return writeUpload(resp)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (default: base name of path)")
	return cmd
}

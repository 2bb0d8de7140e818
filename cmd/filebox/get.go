package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"filebox/internal/api"
	"filebox/internal/config"
)

func newGetCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download a file",
		Long:  "Download a file. Use -o - to write to stdout; by default the file is saved under its display name.",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				if output == "-" {
					_, _, err := client.Download(cmd.Context(), args[0], os.Stdout)
					return err
				}

				dir := "."
				target := output
				if target != "" {
					dir = filepath.Dir(target)
				}
				tmp, err := os.CreateTemp(dir, ".filebox-get-*")
				if err != nil {
					return err
				}
				defer os.Remove(tmp.Name())

				name, n, err := client.Download(cmd.Context(), args[0], tmp)
				if closeErr := tmp.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					return err
				}
				if target == "" {
					target = filepath.Base(name)
					if target == "." || target == string(filepath.Separator) || target == "" {
						return fmt.Errorf("server returned no usable file name; pass -o")
					}
				}
				if err := os.Rename(tmp.Name(), target); err != nil {
					return err
				}

				if opts.structured() {
					return writeJSON(map[string]any{"id": args[0], "path": target, "size_bytes": n})
				}
				return writePlain("saved %s (%s)\n", target, formatSize(n))
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this path, or - for stdout")
	return cmd
}


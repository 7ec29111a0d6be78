package main

import (
	"fmt"
	"strings"

	"github.com/fachschaft/fsbot/internal/clifmt"
	"github.com/fachschaft/fsbot/internal/fsstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config.yaml with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				path = args[0]
			}
			path, err := fsstore.ExpandPath(path)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, clifmt.Headerf("fsbot init"))
			written, err := fsstore.WriteYAML(path, configDocument(viper.Get), fsstore.FileOptions{
				FilePerm:  0o600,
				Overwrite: force,
			})
			if err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			if !written {
				_, _ = fmt.Fprintf(out, "%s %s\n", clifmt.Warn("exists"), path)
				_, _ = fmt.Fprintln(out, clifmt.Dim("use --force to overwrite"))
				return nil
			}
			_, _ = fmt.Fprintf(out, "%s %s\n", clifmt.Success("wrote"), path)
			_, _ = fmt.Fprintf(out, "%s %s\n", clifmt.Key("next:"), "set rocketchat.server, rocketchat.username and rocketchat.password, then run `fsbot run --config "+path+"`")
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing config file.")
	return cmd
}

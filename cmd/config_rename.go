package cmd

import (
	"fmt"

	"github.com/brogergvhs/mangapipe/internal/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configRenameCmd = &cobra.Command{
	Use:   "rename <old_label> <new_label>",
	Short: "Rename a site profile; the active pointer follows it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := args[0], args[1]
		if from == config.DefaultLabel {
			return fmt.Errorf("the %s config cannot be renamed", config.DefaultLabel)
		}

		store := config.DefaultStore()
		active, _ := store.CurrentLabel()

		if err := store.RenameConfig(from, to); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Renamed config %q -> %q\n", from, to)
		if active == from {
			fmt.Fprintf(out, "Active config is now %q\n", to)
		}

		if cfg, err := store.Load(to); err != nil {
			color.Yellow("warning: %s will not load: %v", to, err)
		} else if len(cfg.Sources) == 0 {
			color.Yellow("warning: %s has no sources configured", to)
		}

		return nil
	},
}

func init() {
	configCmd.AddCommand(configRenameCmd)
}

package cmd

import (
	"fmt"

	"github.com/brogergvhs/mangapipe/internal/config"

	"github.com/spf13/cobra"
)

var flagResetKeepSources bool

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the current config to default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.DefaultStore()

		label, err := store.CurrentLabel()
		if err != nil {
			return err
		}

		def := config.DefaultConfig()
		if flagResetKeepSources {
			if old, err := store.Load(label); err == nil {
				def.Sources = old.Sources
				def.DefaultSource = old.DefaultSource
			}
		}

		if err := store.Save(label, def); err != nil {
			return err
		}

		path, _ := store.ActiveConfigPath()
		fmt.Printf("Reset active config: %s\n", path)
		return nil
	},
}

func init() {
	configResetCmd.Flags().BoolVar(&flagResetKeepSources, "keep-sources", false, "keep the configured sources")
	configCmd.AddCommand(configResetCmd)
}

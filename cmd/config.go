package cmd

import (
	"fmt"

	"github.com/brogergvhs/mangapipe/internal/config"

	"github.com/spf13/cobra"
)

var flagConfigPath bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the merged config, or manage the config profiles of mangapipe",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagConfigPath {
			path, err := config.DefaultStore().ActiveConfigPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		}

		cfg, used, err := config.LoadMerged(baseOptions())
		if err != nil {
			return err
		}

		fmt.Printf("Loaded config from:\n  %s\n\n", used)
		cfg.Print()
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&flagConfigPath, "path", false, "print the path of the active profile only")
	rootCmd.AddCommand(configCmd)
}

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/brogergvhs/mangapipe/internal/config"

	"github.com/spf13/cobra"
)

var flagAddFrom string

var configAddCmd = &cobra.Command{
	Use:   "add [label]",
	Short: "Create a new config, empty or copied from a YAML file (--from)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var label string
		if len(args) == 1 {
			label = args[0]
		} else {
			reader := bufio.NewReader(os.Stdin)
			fmt.Print("Enter label for new config: ")
			label, _ = reader.ReadString('\n')
		}
		label = strings.TrimSpace(label)

		store := config.DefaultStore()

		if flagAddFrom != "" {
			if err := store.AddConfig(label, flagAddFrom); err != nil {
				return err
			}
			path, err := store.Path(label)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %s as %s\n", flagAddFrom, path)
			return nil
		}

		path, err := store.CreateEmptyConfig(label)
		if err != nil {
			return err
		}

		fmt.Printf("Created new config: %s\n", path)
		return nil
	},
}

func init() {
	configAddCmd.Flags().StringVar(&flagAddFrom, "from", "", "YAML file to import, validated before copying")
	configCmd.AddCommand(configAddCmd)
}

package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/brogergvhs/mangapipe/internal/config"

	"github.com/spf13/cobra"
)

var configEditCmd = &cobra.Command{
	Use:   "edit [config_label]",
	Short: "Edit current or specified config in $VISUAL or $EDITOR",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.DefaultStore()

		var label string
		if len(args) == 0 {
			var err error
			label, err = store.CurrentLabel()
			if err != nil {
				return fmt.Errorf("failed to get current config label: %w", err)
			}
		} else {
			label = args[0]
		}

		path, err := store.Path(label)
		if err != nil {
			return err
		}

		cmdExec := exec.Command(editor(), path)
		cmdExec.Stdin = os.Stdin
		cmdExec.Stdout = os.Stdout
		cmdExec.Stderr = os.Stderr

		if err := cmdExec.Run(); err != nil {
			return fmt.Errorf("failed to open editor: %w", err)
		}

		cfg, err := store.Load(label)
		if err != nil {
			return fmt.Errorf("config %s no longer parses: %w", label, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config %s: %w", label, err)
		}

		return nil
	},
}

func editor() string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if e := os.Getenv(env); e != "" {
			return e
		}
	}
	return "vi"
}

func init() {
	configCmd.AddCommand(configEditCmd)
}

package cmd

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set with -ldflags "-X github.com/brogergvhs/mangapipe/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the mangapipe version and build details",
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := debug.ReadBuildInfo()
		fmt.Fprintln(cmd.OutOrStdout(), "mangapipe", describeBuild(Version, info))
	},
}

// describeBuild prefers the linked version, then the module version, and
// appends the VCS revision and toolchain when the binary records them.
func describeBuild(version string, info *debug.BuildInfo) string {
	if info == nil {
		return version
	}

	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	parts := []string{version}
	if rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if dirty {
			rev += "-dirty"
		}
		parts = append(parts, "("+rev+")")
	}
	if info.GoVersion != "" {
		parts = append(parts, info.GoVersion)
	}

	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

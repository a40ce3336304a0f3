package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/brogergvhs/mangapipe/internal/util"

	"github.com/spf13/cobra"
)

var (
	flagIgnoreConfig bool
	flagDebug        bool

	// source and transport
	flagSource     string
	flagCookie     string
	flagCookieFile string
	flagUserAgent  string
	flagCloudflare bool
	flagRateLimit  float64
)

var rootCmd = &cobra.Command{
	Use:           "mangapipe",
	Short:         "Manga source browser and downloader with image restoration",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	pf.BoolVar(&flagIgnoreConfig, "ignore-config", false, "ignore config and use only CLI flags")

	pf.StringVar(&flagSource, "source", "", "source name from the config (defaults to default_source or the URL host)")
	pf.StringVar(&flagCookie, "cookie", "", "cookie string, e.g. \"key=value; other=123\"")
	pf.StringVar(&flagCookieFile, "cookie-file", "", "path to a text file with cookies (one header line)")
	pf.StringVar(&flagUserAgent, "user-agent", "", "override User-Agent")
	pf.BoolVar(&flagCloudflare, "cloudflare", false, "use browser-like TLS and headers")
	pf.Float64Var(&flagRateLimit, "rate", 0, "max requests per second (0 = unlimited)")
}

func Execute() {
	ctx, stop := util.WithInterrupt(context.Background())
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

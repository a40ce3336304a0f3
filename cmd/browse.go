package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/brogergvhs/mangapipe/internal/chapters"
	"github.com/brogergvhs/mangapipe/internal/providers"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var flagPage int

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	dimColor   = color.New(color.Faint)
	labelColor = color.New(color.FgYellow)
)

func init() {
	popularCmd := &cobra.Command{
		Use:   "popular",
		Short: "List popular titles of a source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListing(cmd, func(ctx context.Context, src providers.Source) (providers.MangasPage, error) {
				return src.FetchPopular(ctx, flagPage)
			})
		},
	}

	latestCmd := &cobra.Command{
		Use:   "latest",
		Short: "List recently updated titles of a source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListing(cmd, func(ctx context.Context, src providers.Source) (providers.MangasPage, error) {
				return src.FetchLatest(ctx, flagPage)
			})
		},
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a source by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runListing(cmd, func(ctx context.Context, src providers.Source) (providers.MangasPage, error) {
				return src.FetchSearch(ctx, query, flagPage)
			})
		},
	}

	for _, c := range []*cobra.Command{popularCmd, latestCmd, searchCmd} {
		c.Flags().IntVar(&flagPage, "page", 1, "listing page")
		rootCmd.AddCommand(c)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "info <manga_url>",
		Short: "Show the details of a title",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "chapters <manga_url>",
		Short: "List the chapters of a title",
		Args:  cobra.ExactArgs(1),
		RunE:  runChapters,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "pages <chapter_url>",
		Short: "List the page image URLs of a chapter, transform parameters included",
		Args:  cobra.ExactArgs(1),
		RunE:  runPages,
	})
}

func runListing(cmd *cobra.Command, fetch func(context.Context, providers.Source) (providers.MangasPage, error)) error {
	sess, err := openSession(baseOptions())
	if err != nil {
		return err
	}

	src, err := sess.source("")
	if err != nil {
		return err
	}

	res, err := fetch(cmd.Context(), src)
	if err != nil {
		return err
	}

	printMangas(cmd.OutOrStdout(), res)
	return nil
}

func printMangas(w io.Writer, res providers.MangasPage) {
	if len(res.Mangas) == 0 {
		fmt.Fprintln(w, "No titles found.")
		return
	}

	for i, m := range res.Mangas {
		fmt.Fprintf(w, "%3d) %s\n", i+1, titleColor.Sprint(m.Title))
		fmt.Fprintf(w, "     %s\n", dimColor.Sprint(m.URL))
	}

	if res.HasNext {
		fmt.Fprintf(w, "\nMore results: --page %d\n", flagPage+1)
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	sess, err := openSession(baseOptions())
	if err != nil {
		return err
	}

	src, err := sess.source(args[0])
	if err != nil {
		return err
	}

	d, ok := src.(providers.Detailer)
	if !ok {
		return fmt.Errorf("source %s cannot describe titles", src.Name())
	}

	m, err := d.FetchMangaDetails(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	titleColor.Fprintln(w, m.Title)
	printField(w, "Author", m.Author)
	printField(w, "Artist", m.Artist)
	printField(w, "Status", m.Status.String())
	printField(w, "Genres", strings.Join(m.Genres, ", "))
	printField(w, "Cover", m.ThumbnailURL)
	if m.Description != "" {
		fmt.Fprintf(w, "\n%s\n", m.Description)
	}

	return nil
}

func printField(w io.Writer, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprintf("%-7s", name+":"), value)
}

func runChapters(cmd *cobra.Command, args []string) error {
	sess, err := openSession(baseOptions())
	if err != nil {
		return err
	}

	src, err := sess.source(args[0])
	if err != nil {
		return err
	}

	list, err := src.FetchChapterList(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, ch := range chapters.Wrap(list) {
		fmt.Fprintf(w, "%4d) %s  %s\n", i+1, labelColor.Sprintf("[%s]", ch.Label), ch.Title)
		if sess.cfg.Debug {
			fmt.Fprintf(w, "      %s\n", dimColor.Sprint(ch.URL))
		}
	}
	fmt.Fprintf(w, "\n%d chapters\n", len(list))

	return nil
}

func runPages(cmd *cobra.Command, args []string) error {
	sess, err := openSession(baseOptions())
	if err != nil {
		return err
	}

	src, err := sess.source(args[0])
	if err != nil {
		return err
	}

	pages, err := src.FetchPageList(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, p := range pages {
		fmt.Fprintf(w, "%3d  %s\n", p.Index+1, p.ImageURL)
	}

	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brogergvhs/mangapipe/internal/chapters"
	"github.com/brogergvhs/mangapipe/internal/config"
	"github.com/brogergvhs/mangapipe/internal/downloader"
	"github.com/brogergvhs/mangapipe/internal/providers"
	"github.com/brogergvhs/mangapipe/internal/ui"
	"github.com/brogergvhs/mangapipe/internal/util"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// selection
	flagURL      string
	flagChapter  string
	flagRange    string
	flagList     string
	flagAllowExt string

	// runtime
	flagOutput         string
	flagImageWorkers   int
	flagChapterWorkers int
	flagKeepFolders    bool
	flagDryRun         bool
	flagSkipBroken     bool
	flagOverwrite      bool
)

func init() {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download manga chapters and produce CBZ files. Uses the defaults from the selected config, overwritten by CLI flags",
		Args:  cobra.NoArgs,
		RunE:  runDownload,
	}

	// selection
	downloadCmd.Flags().StringVar(&flagURL, "url", "", "manga series/chapters page URL")
	downloadCmd.Flags().StringVar(&flagChapter, "chapter", "", "download single chapter by label or index (e.g. 28.5 or 5)")
	downloadCmd.Flags().StringVar(&flagRange, "range", "", "download range of chapters by number (e.g. 5-12)")
	downloadCmd.Flags().StringVar(&flagList, "list", "", "download specific chapters by label (e.g. 1,3,5.5)")
	downloadCmd.Flags().StringVar(&flagAllowExt, "allow-ext", "", "Allowed image extensions (e.g. \"webp|jpg|png\")")

	// runtime
	downloadCmd.Flags().StringVar(&flagOutput, "output", "", "output folder for CBZ files")
	downloadCmd.Flags().IntVar(&flagImageWorkers, "image-workers", 5, "parallel image downloads per chapter")
	downloadCmd.Flags().IntVar(&flagChapterWorkers, "chapter-workers", 2, "parallel chapter downloads")
	downloadCmd.Flags().BoolVar(&flagKeepFolders, "keep-folders", false, "keep temporary folders")
	downloadCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "show what would be downloaded, don’t download")
	downloadCmd.Flags().BoolVar(&flagSkipBroken, "skip-broken", false, "skip failed images instead of failing the whole chapter")
	downloadCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "download chapters whose CBZ already exists")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, _ []string) error {
	opts := baseOptions()
	opts.Output = flagOutput
	opts.KeepFolders = flagKeepFolders
	opts.DefaultURL = flagURL
	opts.DefaultRange = flagRange
	opts.DefaultList = flagList
	opts.SkipBroken = flagSkipBroken
	if flagAllowExt != "" {
		opts.AllowExt = splitExt(flagAllowExt)
	}
	if cmd.Flags().Changed("image-workers") {
		opts.ImageWorkers = flagImageWorkers
	}
	if cmd.Flags().Changed("chapter-workers") {
		opts.ChapterWorkers = flagChapterWorkers
	}

	sess, err := openSession(opts)
	if err != nil {
		return err
	}
	cfg := sess.cfg
	logSvc := sess.log

	if sess.used != "" {
		fmt.Printf("Config file: %s\n", sess.used)
	}

	if err := os.MkdirAll(cfg.Output, 0755); err != nil {
		return fmt.Errorf("cannot create output folder: %w", err)
	}

	if cfg.Debug {
		fmt.Println("Full config:")
		cfg.Print()
		fmt.Println()
	}

	if cfg.DefaultURL == "" {
		return fmt.Errorf("missing --url and no default_url in config")
	}

	if removed, err := util.CleanupUnfinishedTempFolders(cfg.Output); err != nil {
		logSvc.Warnf("cleanup of %s: %v", cfg.Output, err)
	} else if len(removed) > 0 {
		logSvc.Infof("Removed %d unfinished chapter folders", len(removed))
	}

	src, err := sess.source(cfg.DefaultURL)
	if err != nil {
		return err
	}
	logSvc.Debugf("using source %s", src.Name())

	ctx := cmd.Context()

	raw, err := src.FetchChapterList(ctx, cfg.DefaultURL)
	if err != nil {
		return err
	}
	all := chapters.Wrap(raw)

	sel := selection(cfg)
	if sel.Empty() {
		fmt.Printf("Found %d chapters on the site.\n\n", len(all))
	}

	selected, err := chapters.Filter(all, sel)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		if flagChapter != "" {
			return fmt.Errorf("chapter '%s' not found", flagChapter)
		}
		return fmt.Errorf("no chapters selected")
	}

	if flagDryRun {
		fmt.Printf("Dry-run: %d chapters selected.\n\n", len(selected))
		for i, ch := range selected {
			fmt.Printf("%3d) %s  [%s]\n    %s\n", i+1, ch.Title, ch.Label, ch.URL)
		}
		return nil
	}

	var series providers.Manga
	if d, ok := src.(providers.Detailer); ok {
		if series, err = d.FetchMangaDetails(ctx, cfg.DefaultURL); err != nil {
			logSvc.Warnf("no series metadata: %v", err)
		}
	}

	pm := ui.NewProgressManager(os.Stdout)

	stats := &ui.Stats{}
	dl := downloader.New(sess.client, downloader.Options{
		SkipBroken: cfg.SkipBroken,
		Referer:    refererOf(src),
		Workers:    max(1, cfg.ImageWorkers),
		Timeout:    cfg.Timeout,
	})
	start := time.Now()

	sem := make(chan struct{}, max(1, cfg.ChapterWorkers))
	var wg sync.WaitGroup

	for _, ch := range selected {
		cbzOut := ch.OutputCBZPath(cfg.Output)
		if !flagOverwrite {
			if _, err := os.Stat(cbzOut); err == nil {
				logSvc.Infof("Skipping %s, %s exists", ch.Label, filepath.Base(cbzOut))
				continue
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := downloadChapter(ctx, src, dl, pm, stats, cfg, series, ch, cbzOut); err != nil {
				stats.Failed.Add(1)
				logSvc.Errorf("Chapter %s failed: %v", ch.Label, err)
			}
		}()
	}
	wg.Wait()
	pm.Close()

	if ctx.Err() != nil {
		if _, err := util.CleanupUnfinishedTempFolders(cfg.Output); err != nil {
			logSvc.Warnf("cleanup of %s: %v", cfg.Output, err)
		}
		util.RemoveIfEmpty(cfg.Output)
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}

	fmt.Println()
	color.New(color.Bold).Println("Download Summary:")
	fmt.Println(stats.Summary(time.Since(start)))

	if n := stats.Failed.Load(); n > 0 {
		return fmt.Errorf("%d chapters failed", n)
	}

	color.Green("\nAll done.")
	return nil
}

func downloadChapter(
	ctx context.Context,
	src providers.Source,
	dl *downloader.Downloader,
	pm *ui.MPBProgressManager,
	stats *ui.Stats,
	cfg *config.Config,
	series providers.Manga,
	ch chapters.Chapter,
	cbzOut string,
) error {
	pages, err := src.FetchPageList(ctx, ch.URL)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return errors.New("no images")
	}

	handle := pm.Register("Ch." + ch.Label)
	handle.SetTotal(len(pages))

	tmpFolder := filepath.Join(cfg.Output, ch.FolderName())

	files, bytes, err := dl.Download(ctx, pages, tmpFolder, handle)
	if err != nil {
		handle.Abort()
		_ = os.RemoveAll(tmpFolder)
		return err
	}

	if err := util.CreateCBZ(files, cbzOut, comicInfo(series, ch, len(files))); err != nil {
		_ = os.RemoveAll(tmpFolder)
		return err
	}

	if !cfg.KeepFolders {
		util.CleanupFolder(tmpFolder)
	}

	stats.Record(len(files), bytes)
	return nil
}

func comicInfo(series providers.Manga, ch chapters.Chapter, pages int) *util.ComicInfo {
	return &util.ComicInfo{
		Title:     ch.Title,
		Series:    series.Title,
		Number:    strconv.FormatFloat(ch.Number(), 'f', -1, 64),
		Writer:    series.Author,
		Penciller: series.Artist,
		Summary:   series.Description,
		Genre:     util.JoinGenres(series.Genres),
		Web:       ch.URL,
		PageCount: pages,
	}
}

// selection prefers CLI flags over config defaults; a single chapter
// overrides both.
func selection(cfg *config.Config) chapters.Selection {
	if flagChapter != "" {
		return chapters.Selection{Chapter: flagChapter}
	}
	if flagRange != "" || flagList != "" {
		return chapters.Selection{Range: flagRange, List: flagList}
	}
	return chapters.Selection{Range: cfg.DefaultRange, List: cfg.DefaultList}
}

func splitExt(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' '
	})

	out := []string{}
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			out = append(out, f)
		}
	}

	return out
}

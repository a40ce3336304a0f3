// Package providers defines the records every source connector produces and
// the capability set they implement.
package providers

import (
	"context"
	"sort"
)

type Manga struct {
	URL          string
	Title        string
	Author       string
	Artist       string
	Description  string
	Genres       []string
	Status       Status
	ThumbnailURL string
}

type Chapter struct {
	URL        string
	Title      string
	NumMain    int
	SuffixType string
	SuffixNum  int
	Label      string
}

// Page is one image of a chapter. ImageURL may carry transform parameters
// that the response pipeline consumes before the request leaves the process.
type Page struct {
	Index    int
	ImageURL string
}

type MangasPage struct {
	Mangas  []Manga
	HasNext bool
}

// Source is implemented once per site kind; sites of the same kind differ
// only in configuration.
type Source interface {
	Name() string
	FetchPopular(ctx context.Context, page int) (MangasPage, error)
	FetchLatest(ctx context.Context, page int) (MangasPage, error)
	FetchSearch(ctx context.Context, query string, page int) (MangasPage, error)
	FetchChapterList(ctx context.Context, mangaURL string) ([]Chapter, error)
	FetchPageList(ctx context.Context, chapterURL string) ([]Page, error)
}

// Detailer is implemented by sources that can describe a single title.
type Detailer interface {
	FetchMangaDetails(ctx context.Context, mangaURL string) (Manga, error)
}

// SortChapters orders chapters by number, then suffix.
func SortChapters(out []Chapter) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NumMain != out[j].NumMain {
			return out[i].NumMain < out[j].NumMain
		}
		if out[i].SuffixType != out[j].SuffixType {
			return out[i].SuffixType < out[j].SuffixType
		}
		return out[i].SuffixNum < out[j].SuffixNum
	})
}

package carrier

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/brogergvhs/mangapipe/internal/transform"
)

// Companion documents live next to the image: face.xml describes the book,
// NNNN.xml describes one page.
const FaceDocument = "face.xml"

type Face struct {
	TotalPage int
	Width     int
	Height    int
}

type PageKind struct {
	No        int
	Scrambled bool
}

type PageDescriptor struct {
	PageNo      int
	Permutation []int
	Kinds       []PageKind
}

// Scrambled reports whether the descriptor asks for descrambling. Pages
// without Kind elements are scrambled whenever they carry a permutation.
func (p PageDescriptor) Scrambled() bool {
	if len(p.Permutation) == 0 {
		return false
	}
	if len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k.Scrambled {
			return true
		}
	}
	return false
}

// FaceURL returns the face document URL for a (stripped) image URL.
func FaceURL(img *url.URL) *url.URL {
	return img.ResolveReference(&url.URL{Path: FaceDocument})
}

// PageURL returns the page descriptor URL for pageNo.
func PageURL(img *url.URL, pageNo int) *url.URL {
	return img.ResolveReference(&url.URL{Path: fmt.Sprintf("%04d.xml", pageNo)})
}

// ParseFace reads a face document. Missing elements stay zero.
func ParseFace(r io.Reader) (Face, error) {
	var f Face

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return f, fmt.Errorf("parse %s: %w", FaceDocument, err)
	}

	if f.TotalPage, err = intElement(doc.Selection, "totalpage"); err != nil {
		return f, err
	}
	if f.Width, err = intElement(doc.Selection, "scramble > width"); err != nil {
		return f, err
	}
	if f.Height, err = intElement(doc.Selection, "scramble > height"); err != nil {
		return f, err
	}

	return f, nil
}

// ParsePage reads a page descriptor document.
func ParsePage(r io.Reader) (PageDescriptor, error) {
	var p PageDescriptor

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return p, fmt.Errorf("parse page descriptor: %w", err)
	}

	if p.PageNo, err = intElement(doc.Selection, "pageno"); err != nil {
		return p, err
	}

	if s := strings.TrimSpace(doc.Find("scramble").First().Text()); s != "" {
		if p.Permutation, err = ParseIntList(s); err != nil {
			return p, fmt.Errorf("%w: scramble %q", ErrMalformed, s)
		}
	}

	var kindErr error
	doc.Find("kind").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var k PageKind
		if no, ok := s.Attr("no"); ok {
			if k.No, kindErr = strconv.Atoi(strings.TrimSpace(no)); kindErr != nil {
				kindErr = fmt.Errorf("%w: kind no %q", ErrMalformed, no)
				return false
			}
		}
		if v, ok := s.Attr("scramble"); ok {
			v = strings.TrimSpace(v)
			k.Scrambled = v == "1" || strings.EqualFold(v, "true")
		}
		p.Kinds = append(p.Kinds, k)
		return true
	})

	return p, kindErr
}

// CompanionParams combines both documents into grid parameters. It returns
// (nil, nil) when either document lacks the scramble description.
func CompanionParams(f Face, p PageDescriptor) (transform.Params, error) {
	if f.Width <= 0 || f.Height <= 0 || !p.Scrambled() {
		return nil, nil
	}

	return transform.TileScrambleParams{
		Permutation: p.Permutation,
		GridWidth:   f.Width,
		GridHeight:  f.Height,
	}, nil
}

func intElement(s *goquery.Selection, selector string) (int, error) {
	text := strings.TrimSpace(s.Find(selector).First().Text())
	if text == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformed, selector, text)
	}

	return n, nil
}

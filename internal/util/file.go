package util

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ComicInfo is the metadata entry read by comic readers from a CBZ.
type ComicInfo struct {
	XMLName   xml.Name `xml:"ComicInfo"`
	Title     string   `xml:"Title,omitempty"`
	Series    string   `xml:"Series,omitempty"`
	Number    string   `xml:"Number,omitempty"`
	Writer    string   `xml:"Writer,omitempty"`
	Penciller string   `xml:"Penciller,omitempty"`
	Summary   string   `xml:"Summary,omitempty"`
	Genre     string   `xml:"Genre,omitempty"`
	Web       string   `xml:"Web,omitempty"`
	PageCount int      `xml:"PageCount,omitempty"`
}

// JoinGenres formats genres the way ComicInfo expects them.
func JoinGenres(genres []string) string {
	return strings.Join(genres, ", ")
}

// CreateCBZ zips files, sorted by name, into output. A non-nil info is
// stored as ComicInfo.xml.
func CreateCBZ(files []string, output string, info *ComicInfo) (err error) {
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("cbz: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("cbz: close %s: %w", output, cerr))
		}
		if err != nil {
			_ = os.Remove(output)
		}
	}()

	z := zip.NewWriter(out)
	defer func() {
		if cerr := z.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("cbz: finish %s: %w", output, cerr))
		}
	}()

	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	for _, file := range sorted {
		if err := addFileToZip(z, file); err != nil {
			return fmt.Errorf("cbz: %s: %w", file, err)
		}
	}

	if info != nil {
		if info.PageCount == 0 {
			info.PageCount = len(files)
		}
		if err := addComicInfo(z, info); err != nil {
			return fmt.Errorf("cbz: ComicInfo.xml: %w", err)
		}
	}

	return nil
}

func addComicInfo(z *zip.Writer, info *ComicInfo) error {
	w, err := z.Create("ComicInfo.xml")
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	return enc.Encode(info)
}

func addFileToZip(z *zip.Writer, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = filepath.Base(file)
	header.Method = zip.Deflate

	w, err := z.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, f)
	return err
}

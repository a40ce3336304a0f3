package util

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCBZ(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"page_002.png", "page_001.jpg"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0644))
		files = append(files, p)
	}

	out := filepath.Join(dir, "ch.cbz")
	info := &ComicInfo{Series: "Moon", Number: "1.5", Genre: JoinGenres([]string{"SF", "Drama"})}
	require.NoError(t, CreateCBZ(files, out, info))

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"page_001.jpg", "page_002.png", "ComicInfo.xml"}, names)

	rc, err := zr.File[2].Open()
	require.NoError(t, err)
	defer rc.Close()
	meta, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(meta), "<Series>Moon</Series>")
	assert.Contains(t, string(meta), "<Genre>SF, Drama</Genre>")
	assert.Contains(t, string(meta), "<PageCount>2</PageCount>")
}

func TestCreateCBZMissingFileLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "broken.cbz")

	err := CreateCBZ([]string{filepath.Join(dir, "nope.jpg")}, out, nil)
	require.Error(t, err)
	assert.NoFileExists(t, out)
}

func TestCleanupUnfinishedTempFolders(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "1_tmp"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keep"), 0755))

	removed, err := CleanupUnfinishedTempFolders(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "1_tmp")}, removed)
	assert.DirExists(t, filepath.Join(dir, "keep"))

	assert.False(t, RemoveIfEmpty(dir))
	assert.True(t, RemoveIfEmpty(filepath.Join(dir, "keep")))

	removed, err = CleanupUnfinishedTempFolders(filepath.Join(dir, "absent"))
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestHuman(t *testing.T) {
	assert.Equal(t, "512 B", Human(512))
	assert.Equal(t, "1.50 KB", Human(1536))
	assert.Equal(t, "2.00 MB", Human(2<<20))
	assert.Equal(t, "1.00 GB", Human(1<<30))
}

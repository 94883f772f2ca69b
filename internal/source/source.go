// Package source reads raw chapters from the on-disk layout the
// crawler produces: one directory per work, one UTF-8 text file per
// chapter. The first line of a chapter file is its title; the rest is
// the body.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/okovalov/seritran/internal/novel"
)

var chapterFilePattern = regexp.MustCompile(`^chapter_(\d+)\.txt$`)

// Dir reads works laid out as <root>/novel_<id>/raw/chapter_NNNN.txt.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// RawDir returns the raw-chapter directory for a work.
func (d *Dir) RawDir(workID string) string {
	return filepath.Join(d.root, "novel_"+workID, "raw")
}

// Exists reports whether the work has at least one raw chapter file.
func (d *Dir) Exists(workID string) bool {
	entries, err := os.ReadDir(d.RawDir(workID))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && chapterFilePattern.MatchString(e.Name()) {
			return true
		}
	}
	return false
}

// Chapters loads every raw chapter of a work in ascending index
// order. The chapter index comes from the file name, not the file
// position, so gaps in numbering are preserved.
func (d *Dir) Chapters(workID string) ([]novel.Chapter, error) {
	dir := d.RawDir(workID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chapter directory: %w", err)
	}

	var chapters []novel.Chapter
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := chapterFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 {
			continue
		}

		ch, err := readChapter(filepath.Join(dir, e.Name()), idx)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}

	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Index < chapters[j].Index })
	return chapters, nil
}

// readChapter parses one chapter file: first non-empty line is the
// title, everything after the first line break is the body.
func readChapter(path string, idx int) (novel.Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return novel.Chapter{}, fmt.Errorf("failed to read chapter %d: %w", idx, err)
	}

	// Cut returns the whole input as title when there is no line
	// break: a title-only file yields an empty body.
	title, body, _ := strings.Cut(string(data), "\n")

	return novel.Chapter{
		Index:  idx,
		Title:  strings.TrimSpace(title),
		Body:   strings.TrimSpace(body),
		Status: novel.StatusPending,
	}, nil
}

// WriteChapter stores a raw chapter file in the crawler layout. Used
// by tests and by import tooling.
func (d *Dir) WriteChapter(workID string, ch novel.Chapter) error {
	dir := d.RawDir(workID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	content := ch.Title + "\n" + ch.Body
	name := fmt.Sprintf("chapter_%04d.txt", ch.Index)
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}

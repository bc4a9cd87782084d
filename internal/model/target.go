package model

import (
	"path/filepath"
	"strings"

	ioutils "github.com/handiism/bookshelf-downloader/internal/io"
)

// Target is the resolved local location of one downloaded format.
//
// Every format of an item lands in the same directory:
//
//	<booksDir>/<Title - Authors>/<Title - Authors>.<ext>
//
// The name is sanitized, so a Target is a pure function of its inputs and
// doubles as the only key used to decide whether a file was already retrieved.
type Target struct {
	// Dir is the item directory.
	Dir string

	// Name is the sanitized "Title - Authors" base name.
	Name string

	// Path is the full file path including the extension.
	Path string
}

// NewTarget derives the target for title/authors/ext under booksDir.
//
// Example:
//
//	t := model.NewTarget("/books", "Lalka", "Bolesław Prus", "epub")
//	// t.Path = "/books/Lalka - Bolesław Prus/Lalka - Bolesław Prus.epub"
func NewTarget(booksDir, title, authors, ext string) Target {
	base := title
	if authors != "" {
		base = title + " - " + authors
	}
	name := ioutils.SanitizeFileName(base)
	dir := filepath.Join(booksDir, name)

	file := name
	if ext = sanitizeExt(ext); ext != "" {
		file = name + "." + ext
	}
	return Target{Dir: dir, Name: name, Path: filepath.Join(dir, file)}
}

// TargetFor derives the target of one item format.
func TargetFor(booksDir string, item *Item, f *Format) Target {
	return NewTarget(booksDir, item.Title, item.AuthorString(), f.Extension())
}

// CoverPath returns the location of the item cover next to the downloaded files.
func (t Target) CoverPath() string {
	return filepath.Join(t.Dir, "cover.jpg")
}

func sanitizeExt(ext string) string {
	ext = strings.TrimLeft(strings.ToLower(ext), ".")
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

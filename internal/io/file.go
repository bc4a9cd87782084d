package ioutils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest sanitized name, in runes.
const MaxNameLength = 200

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// This function ensures filenames are valid across different operating systems,
// particularly Windows which has the most restrictive naming rules.
//
// The following transformations are applied:
//   - Runs of whitespace, including tabs and newlines → single space
//   - Invalid characters (<>:"/\|?* and other control chars) → underscore
//   - Names longer than MaxNameLength runes → truncated
//   - Leading spaces and trailing dots/spaces → removed (Windows limitation)
//   - Empty result → "untitled"
//
// The result never contains a path separator and is never "." or "..".
// SanitizeFileName is idempotent: SanitizeFileName(SanitizeFileName(s)) == SanitizeFileName(s).
//
// Example:
//
//	SanitizeFileName("Book: Part 1/2")      // Returns "Book_ Part 1_2"
//	SanitizeFileName("Volume...")           // Returns "Volume"
//	SanitizeFileName("Name   with  spaces") // Returns "Name with spaces"
func SanitizeFileName(name string) string {
	name = whitespace.ReplaceAllString(name, " ")
	name = invalidChars.ReplaceAllString(name, "_")

	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}

	name = strings.TrimLeft(name, " ")
	name = strings.TrimRight(name, ". ")

	if name == "" {
		return "untitled"
	}
	return name
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// NonEmptyFile reports whether path is a regular file with size > 0, and its size.
//
// A missing file is not an error.
func NonEmptyFile(path string) (bool, int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if !info.Mode().IsRegular() {
		return false, 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size() > 0, info.Size(), nil
}

// AtomicFile is a temporary file that replaces its destination on Commit.
//
// Until Commit succeeds the destination is untouched, so an interrupted
// write never leaves a truncated file under the final name.
//
// Example:
//
//	f, err := CreateAtomic("/books/Title/Title.epub")
//	if err != nil {
//	    return err
//	}
//	defer f.Abort()
//	if _, err := io.Copy(f, body); err != nil {
//	    return err
//	}
//	return f.Commit()
type AtomicFile struct {
	*os.File
	dest string
	done bool
}

// CreateAtomic creates the destination directory and a hidden temporary file beside dest.
func CreateAtomic(dest string) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{File: tmp, dest: dest}, nil
}

// Commit flushes the temporary file and renames it to the destination.
func (f *AtomicFile) Commit() error {
	if f.done {
		return os.ErrClosed
	}
	if err := f.File.Sync(); err != nil {
		f.Abort()
		return err
	}
	if err := f.File.Close(); err != nil {
		f.Abort()
		return err
	}
	if err := os.Rename(f.File.Name(), f.dest); err != nil {
		f.Abort()
		return err
	}
	f.done = true
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	_ = f.File.Close()
	_ = os.Remove(f.File.Name())
}

// WriteFileAtomic writes data to path through an AtomicFile.
func WriteFileAtomic(path string, data []byte) error {
	f, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	defer f.Abort()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}

// Package ioutils provides file system and image processing utilities.
//
// # File Operations
//
//	// Ensure directory exists
//	err := ioutils.EnsureDir("/books/Title - Author")
//
//	// Write a small file without ever exposing a partial copy
//	err = ioutils.WriteFileAtomic("/books/Title - Author/cover.jpg", data)
//
//	// Was this file retrieved by an earlier run?
//	present, size, err := ioutils.NonEmptyFile(path)
//
// Large downloads stream into an AtomicFile and Commit once the body has
// been fully written.
//
// # Filename Sanitization
//
//	safe := ioutils.SanitizeFileName("Book: Part 1/2") // Returns "Book_ Part 1_2"
//
// # Image Processing
//
//	jpeg, err := ioutils.FitJPEG(coverData, 600)
package ioutils

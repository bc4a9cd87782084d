// Package model defines the core data structures used throughout
// the bookshelf-downloader application.
//
// # Item
//
// Item represents a purchased work read from a storefront shelf, with one
// Format per downloadable variant:
//
//	for _, f := range item.Formats {
//	    fmt.Println(item.DisplayName(), f.Tag, f.Ready)
//	}
//
// # Target
//
// Target is where a format is saved locally:
//
//	t := model.TargetFor("/books", item, format)
//	fmt.Println(t.Path) // /books/Title - Author/Title - Author.epub
package model

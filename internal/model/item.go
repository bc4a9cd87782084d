package model

import "strings"

// Item represents one purchased work on a storefront shelf.
//
// Item is produced by a storefront catalog reader and is read-only to the
// download pipeline. IDs holds whatever identifiers the storefront needs to
// address the item in URL templates (for example "bookId" or "copyId").
//
// Example:
//
//	item := &model.Item{
//	    Title:   "Lalka",
//	    Authors: []string{"Bolesław Prus"},
//	    ID:      "12345",
//	    IDs:     map[string]string{"copyId": "12345"},
//	    Formats: []*model.Format{{Tag: "epub", Ext: "epub", Ready: true}},
//	}
type Item struct {
	// Title is the work title as shown on the shelf.
	Title string

	// Authors lists author names in shelf order.
	Authors []string

	// ID is the storefront's primary identifier, used in log messages.
	ID string

	// IDs holds named identifiers available to URL templates.
	IDs map[string]string

	// Formats lists the downloadable variants.
	Formats []*Format

	// CoverURL is the cover image location. Empty means no cover.
	CoverURL string
}

// AuthorString joins the authors with ", ".
func (i *Item) AuthorString() string {
	return strings.Join(i.Authors, ", ")
}

// DisplayName returns "Title - Authors", or just the title when there are no authors.
func (i *Item) DisplayName() string {
	authors := i.AuthorString()
	if authors == "" {
		return i.Title
	}
	return i.Title + " - " + authors
}

// Vars returns the item identifiers merged with the format parameters, for
// URL template expansion. Format parameters win on conflict.
func (i *Item) Vars(f *Format) map[string]string {
	vars := make(map[string]string, len(i.IDs)+len(f.Params)+1)
	for k, v := range i.IDs {
		vars[k] = v
	}
	vars["fileFormat"] = f.Tag
	for k, v := range f.Params {
		vars[k] = v
	}
	return vars
}

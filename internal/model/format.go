package model

// Format is one downloadable variant of an Item.
type Format struct {
	// Tag is the storefront's name for the format ("epub", "mobi", "mp3").
	Tag string

	// Ext is the local file extension without the dot.
	Ext string

	// Ready reports whether the file can be fetched without server-side generation.
	Ready bool

	// DownloadURL is the direct link when the catalog already knows it.
	// Otherwise the storefront builds it once the format is ready.
	DownloadURL string

	// Params holds format-level identifiers for URL templates (e.g. "fileId").
	Params map[string]string

	// ProbeSize requests a HEAD size check before downloading.
	ProbeSize bool
}

// Extension returns Ext, falling back to Tag.
func (f *Format) Extension() string {
	if f.Ext != "" {
		return f.Ext
	}
	return f.Tag
}

// Package audio writes ID3 tags to downloaded MP3 audiobooks.
//
// Storefronts ship audiobooks either as bare MP3 files or as ZIP archives
// of chapters; only the former are tagged. Use the Tagger after a file is
// fully written:
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig())
//	err := tagger.SaveTags(path, item, coverJPEG)
//
// The tagger supports:
//   - Title and Album (both the book title)
//   - Artist and Album Artist (the authors)
//   - Genre ("Audiobook")
//   - Cover Art (embedded in MP3)
package audio

package audio

import (
	"fmt"

	"github.com/bogem/id3v2"
	"github.com/handiism/bookshelf-downloader/internal/model"
)

// AudiobookGenre is written to TCON when Genre is TagModify.
const AudiobookGenre = "Audiobook"

// TagEditAction defines how to handle individual ID3 tags.
//
// Each tag field can be configured independently to determine whether
// it should be modified, cleared, or left unchanged.
type TagEditAction int

const (
	// TagEmpty clears the tag value (sets to empty string).
	TagEmpty TagEditAction = iota

	// TagModify updates the tag with the value from the storefront catalog.
	TagModify

	// TagDoNotModify leaves the existing tag value unchanged.
	TagDoNotModify
)

// TagConfig holds tagging configuration for each ID3 field.
//
// Example:
//
//	cfg := &TagConfig{
//	    ModifyTags:  true,
//	    Title:       TagModify,      // book title
//	    Artist:      TagModify,      // authors
//	    Album:       TagModify,      // book title, groups chapters in players
//	    AlbumArtist: TagDoNotModify, // keep the narrator set by the publisher
//	    Genre:       TagModify,      // "Audiobook"
//	    Comments:    TagEmpty,
//	}
type TagConfig struct {
	// ModifyTags gates every text frame; cover art is embedded regardless.
	ModifyTags bool

	Title       TagEditAction // TIT2, book title
	Artist      TagEditAction // TPE1, authors
	AlbumArtist TagEditAction // TPE2, authors
	Album       TagEditAction // TALB, book title
	Genre       TagEditAction // TCON, AudiobookGenre
	Comments    TagEditAction // COMM, only TagEmpty has an effect
}

// DefaultTagConfig returns the default tag configuration.
//
// By default every field is set to TagModify except comments, which are
// cleared.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		ModifyTags:  true,
		Title:       TagModify,
		Artist:      TagModify,
		AlbumArtist: TagModify,
		Album:       TagModify,
		Genre:       TagModify,
		Comments:    TagEmpty,
	}
}

// Tagger writes ID3 tags to downloaded MP3 audiobook files.
//
// Example:
//
//	tagger := NewTagger(DefaultTagConfig())
//
//	// After downloading the file
//	if err := tagger.SaveTags(target.Path, item, coverJPEG); err != nil {
//	    log.Printf("Failed to tag %s: %v", target.Path, err)
//	}
type Tagger struct {
	config *TagConfig
}

// NewTagger creates a new Tagger with the given configuration.
//
// If config is nil, DefaultTagConfig() is used.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// SaveTags writes ID3 tags for item to the MP3 file at path and embeds
// artwork as the front cover when it is non-nil.
func (t *Tagger) SaveTags(path string, item *model.Item, artwork []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer tag.Close()

	if t.config.ModifyTags {
		tag.SetDefaultEncoding(id3v2.EncodingUTF8)
		for _, f := range t.textFrames(item) {
			f.apply(tag)
		}
		if t.config.Comments == TagEmpty {
			tag.DeleteFrames(tag.CommonID("Comments"))
		}
	}

	if artwork != nil {
		embedCover(tag, artwork)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("tagging %s: %w", path, err)
	}
	return nil
}

// textFrame pairs an ID3 text frame with the value a book supplies for it.
type textFrame struct {
	id     string
	action TagEditAction
	value  string
}

func (t *Tagger) textFrames(item *model.Item) []textFrame {
	authors := item.AuthorString()
	return []textFrame{
		{id: "TIT2", action: t.config.Title, value: item.Title},
		{id: "TPE1", action: t.config.Artist, value: authors},
		{id: "TALB", action: t.config.Album, value: item.Title},
		{id: "TPE2", action: t.config.AlbumArtist, value: authors},
		{id: "TCON", action: t.config.Genre, value: AudiobookGenre},
	}
}

func (f textFrame) apply(tag *id3v2.Tag) {
	switch f.action {
	case TagEmpty:
		tag.DeleteFrames(f.id)
	case TagModify:
		tag.DeleteFrames(f.id)
		if f.value != "" {
			tag.AddTextFrame(f.id, id3v2.EncodingUTF8, f.value)
		}
	}
}

func embedCover(tag *id3v2.Tag, artwork []byte) {
	tag.DeleteFrames(tag.CommonID("Attached picture"))
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     artwork,
	})
}

package download

import (
	"fmt"

	"github.com/handiism/bookshelf-downloader/internal/errs"
	ioutils "github.com/handiism/bookshelf-downloader/internal/io"
	"github.com/handiism/bookshelf-downloader/internal/model"
)

// Decision is the verdict of the Gate for one format.
type Decision int

const (
	// Proceed means the file should be fetched.
	Proceed Decision = iota

	// Skip means the file is already on disk.
	Skip

	// Reject means the remote file is larger than allowed.
	Reject
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Reject:
		return "reject"
	default:
		return "proceed"
	}
}

// Gate decides whether a format is fetched.
//
// The local check runs before any network call: a non-empty file at the
// target path is the only record of an earlier download.
type Gate struct {
	// MaxFileSize is the largest accepted remote size in bytes. Zero or
	// negative disables the limit.
	MaxFileSize int64
}

// Local returns Skip when target already holds a non-empty file.
func (g Gate) Local(target model.Target) (Decision, error) {
	exists, _, err := ioutils.NonEmptyFile(target.Path)
	if err != nil {
		return Proceed, err
	}
	if exists {
		return Skip, nil
	}
	return Proceed, nil
}

// Remote judges a probed size. Negative sizes mean the server did not say.
func (g Gate) Remote(size int64) Decision {
	if g.MaxFileSize > 0 && size > g.MaxFileSize {
		return Reject
	}
	return Proceed
}

// RejectedError records a file skipped for its size, with the link the user
// can fetch by hand.
type RejectedError struct {
	URL   string
	Size  int64
	Limit int64
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("file is %d bytes, limit is %d, download it manually from %s", e.Size, e.Limit, e.URL)
}

func (e *RejectedError) Unwrap() error {
	return errs.ErrSizeRejected
}

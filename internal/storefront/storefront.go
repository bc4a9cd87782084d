package storefront

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/handiism/bookshelf-downloader/internal/auth"
	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/generation"
	"github.com/handiism/bookshelf-downloader/internal/http"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Env is what a storefront needs at run time besides its own configuration.
type Env struct {
	Session *http.Session
	Clock   *pacing.Clock
	Logger  *zap.Logger

	// RequestDelay paces extra requests a catalog reader makes per item.
	RequestDelay time.Duration
}

// Page is one parsed shelf page.
type Page struct {
	Items []*model.Item

	// Next lists shelf page URLs discovered on this page. The runner fetches
	// each distinct URL once, in discovery order.
	Next []string
}

// CatalogReader turns a shelf page into items.
//
// ReadPage may issue further requests through env, for example to fetch
// per-item format details.
type CatalogReader interface {
	ReadPage(ctx context.Context, env *Env, body, pageURL string) (Page, error)
}

// CatalogFunc adapts a pure parsing function to CatalogReader.
type CatalogFunc func(body, pageURL string) (Page, error)

// ReadPage implements CatalogReader.
func (f CatalogFunc) ReadPage(_ context.Context, _ *Env, body, pageURL string) (Page, error) {
	return f(body, pageURL)
}

// Generator prepares a format server-side. Implementations normally build a
// generation.Adapter and hand it to generation.Run.
type Generator interface {
	Prepare(ctx context.Context, env *Env, item *model.Item, f *model.Format) (*generation.Job, error)
}

// Storefront is the capability record of one site.
//
// The download pipeline is the same for every site; a Storefront only
// supplies data and functions. Generation is nil for sites that serve every
// format directly.
type Storefront struct {
	Name string

	// Charset decodes pages that are not UTF-8. Nil means UTF-8.
	Charset encoding.Encoding

	// ShelfURL is the first catalog page.
	ShelfURL string

	Checker    auth.Checker
	Login      auth.Strategy
	Catalog    CatalogReader
	Generation Generator

	// DownloadURL resolves the direct link of a ready format.
	DownloadURL func(item *model.Item, f *model.Format) (string, error)
}

// TemplateDownloadURL returns a DownloadURL that prefers a link found in the
// catalog and otherwise expands template with the item and format variables.
func TemplateDownloadURL(template string) func(*model.Item, *model.Format) (string, error) {
	return func(item *model.Item, f *model.Format) (string, error) {
		if f.DownloadURL != "" {
			return f.DownloadURL, nil
		}
		return config.Expand(template, item.Vars(f))
	}
}

// Resolve makes ref absolute against base.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

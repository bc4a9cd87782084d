package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/handiism/bookshelf-downloader/internal/auth"
	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/generation"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
	"go.uber.org/zap"
)

const (
	woblinkAttempts = 10
	woblinkInterval = 10 * time.Second
)

// NewWoblink builds the woblink.com storefront.
//
// Woblink watermarks every file on request, so each format goes through a
// generate call that is repeated until the site answers ready.
func NewWoblink(acct config.Account, settings *config.Settings) (*Storefront, error) {
	u, err := urls(acct, "not_logged_in", "login_form", "login", "shelf", "generate", "download")
	if err != nil {
		return nil, err
	}

	shelf := u["shelf"]
	return &Storefront{
		Name:     acct.Storefront,
		ShelfURL: shelf,
		Checker:  auth.RedirectCheck{ShelfURL: shelf, Marker: u["not_logged_in"]},
		Login: auth.FormLogin{
			FormURL:   u["login_form"],
			SubmitURL: u["login"],
			FormDelay: settings.LoginFormDelay,
			Fields: func(c auth.Credentials, form string) (url.Values, error) {
				v, err := auth.HiddenInputs(form)
				v.Set("login[email]", c.Login)
				v.Set("login[password]", c.Password)
				v.Set("referer", shelf)
				return v, err
			},
		},
		Catalog:     CatalogFunc(parseWoblinkShelf),
		Generation:  woblinkGenerator{generateURL: u["generate"]},
		DownloadURL: TemplateDownloadURL(u["download"]),
	}, nil
}

func parseWoblinkShelf(body, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parsing shelf page: %w", err)
	}

	var page Page
	doc.Find(".shelf-book").Each(func(_ int, book *goquery.Selection) {
		copyID := book.AttrOr("data-copy-id", "")
		details := book.Find(".shelf-book-details")
		item := &model.Item{
			Title: strings.TrimSpace(details.Find("h3").First().Text()),
			ID:    copyID,
			IDs: map[string]string{
				"copyId": copyID,
				"bookId": book.AttrOr("data-book-id", ""),
			},
		}
		details.Find(`a[itemprop="author"]`).Each(func(_ int, a *goquery.Selection) {
			if name := strings.TrimSpace(a.Text()); name != "" {
				item.Authors = append(item.Authors, name)
			}
		})
		details.Find("p.formats span").Each(func(_ int, span *goquery.Selection) {
			for _, tag := range strings.Split(span.Text(), ",") {
				tag = strings.ToLower(strings.TrimSpace(tag))
				if tag != "" {
					item.Formats = append(item.Formats, &model.Format{Tag: tag})
				}
			}
		})
		if copyID == "" || item.Title == "" {
			return
		}
		if src, ok := book.Find("img").First().Attr("src"); ok {
			if abs, err := Resolve(pageURL, src); err == nil {
				item.CoverURL = abs
			}
		}
		page.Items = append(page.Items, item)
	})

	doc.Find("ul.pagination a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" || href == "#" {
			return
		}
		if abs, err := Resolve(pageURL, href); err == nil {
			page.Next = append(page.Next, abs)
		}
	})
	return page, nil
}

type woblinkStatus struct {
	Success      bool   `json:"success"`
	Ready        bool   `json:"ready"`
	ErrorMessage string `json:"errorMessage"`
}

type woblinkGenerator struct {
	generateURL string
}

// Prepare implements Generator. Every poll re-posts the generate form; the
// first call starts the watermarking.
func (g woblinkGenerator) Prepare(ctx context.Context, env *Env, item *model.Item, f *model.Format) (*generation.Job, error) {
	poller := generation.NewPoller(env.Clock, woblinkAttempts,
		pacing.Constant{Every: woblinkInterval}, env.Logger)

	form := url.Values{}
	form.Set("copy_id", item.IDs["copyId"])
	form.Set("format", strings.ToLower(f.Tag))

	return generation.Run(ctx, poller, f.Tag, f.Ready, generation.Adapter[woblinkStatus]{
		Poll: func(ctx context.Context) ([]byte, error) {
			resp, err := env.Session.PostForm(ctx, g.generateURL, form)
			if err != nil {
				return nil, err
			}
			return resp.Body, nil
		},
		Decode: func(body []byte) (woblinkStatus, error) {
			var s woblinkStatus
			if err := json.Unmarshal(body, &s); err != nil {
				return s, err
			}
			if !s.Success && s.ErrorMessage != "" {
				env.Logger.Warn("generate call reported an error",
					zap.String("item", item.Title), zap.String("message", s.ErrorMessage))
			}
			return s, nil
		},
		Ready: func(s woblinkStatus) bool { return s.Ready },
	})
}

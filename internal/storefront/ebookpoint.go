package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/handiism/bookshelf-downloader/internal/auth"
	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// NewEbookpoint builds the ebookpoint.pl storefront.
//
// Ebookpoint serves ISO-8859-2 pages and lists purchases on two pages, the
// shelf and the archive. Formats are downloadable at once but the size of
// each file is probed before downloading.
func NewEbookpoint(acct config.Account, settings *config.Settings) (*Storefront, error) {
	u, err := urls(acct, "not_logged_in", "login_form", "login", "shelf", "archive", "details", "download")
	if err != nil {
		return nil, err
	}

	shelf := u["shelf"]
	return &Storefront{
		Name:     acct.Storefront,
		Charset:  charmap.ISO8859_2,
		ShelfURL: shelf,
		Checker:  auth.RedirectCheck{ShelfURL: shelf, Marker: u["not_logged_in"]},
		Login: auth.FormLogin{
			FormURL:   u["login_form"],
			SubmitURL: u["login"],
			FormDelay: settings.LoginFormDelay,
			Fields: func(c auth.Credentials, _ string) (url.Values, error) {
				v := url.Values{}
				v.Set("gdzie", shelf)
				v.Set("edit", "")
				v.Set("loginemail", c.Login)
				v.Set("haslo", c.Password)
				return v, nil
			},
		},
		Catalog:     ebookpointCatalog{archiveURL: u["archive"], detailsURL: u["details"]},
		DownloadURL: TemplateDownloadURL(u["download"]),
	}, nil
}

type ebookpointCatalog struct {
	archiveURL string
	detailsURL string
}

// ReadPage implements CatalogReader. The shelf page links to the archive,
// which uses a different list markup.
func (c ebookpointCatalog) ReadPage(ctx context.Context, env *Env, body, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parsing shelf page: %w", err)
	}

	var page Page
	selector := ".ebooki"
	if pageURL == c.archiveURL {
		selector = ".lista li"
	} else {
		page.Next = []string{c.archiveURL}
	}

	for _, item := range parseEbookpointItems(doc.Find(selector)) {
		if err := env.Clock.Delay(ctx, env.RequestDelay); err != nil {
			return page, err
		}
		tags, err := c.formats(ctx, env, item.IDs["control"])
		if err != nil {
			env.Logger.Warn("reading formats failed", zap.String("item", item.Title), zap.Error(err))
			continue
		}
		for _, tag := range tags {
			f := &model.Format{Tag: tag, Ready: true, ProbeSize: true}
			if tag == "mp3" {
				f.Ext = "zip"
			}
			item.Formats = append(item.Formats, f)
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (c ebookpointCatalog) formats(ctx context.Context, env *Env, control string) ([]string, error) {
	detailsURL, err := config.Expand(c.detailsURL, map[string]string{"control": control})
	if err != nil {
		return nil, err
	}
	body, err := env.Session.GetString(ctx, detailsURL)
	if err != nil {
		return nil, err
	}
	return parseEbookpointFormats(body)
}

type ebookpointDetails struct {
	Dane struct {
		Formaty []struct {
			FormatName string `json:"format_name"`
			Status     string `json:"status"`
		} `json:"formaty"`
	} `json:"dane"`
}

func parseEbookpointFormats(body string) ([]string, error) {
	var d ebookpointDetails
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return nil, fmt.Errorf("decoding book details: %w", err)
	}
	var tags []string
	for _, f := range d.Dane.Formaty {
		if f.Status == "OK" && f.FormatName != "" {
			tags = append(tags, strings.ToLower(f.FormatName))
		}
	}
	return tags, nil
}

// parseEbookpointItems reads list entries whose cover carries
// onclick="modal.showModal('control','type','id')".
func parseEbookpointItems(entries *goquery.Selection) []*model.Item {
	var items []*model.Item
	entries.Each(func(_ int, entry *goquery.Selection) {
		onclick := entry.Find("p.cover").Last().AttrOr("onclick", "")
		args := strings.Split(strings.NewReplacer("modal.showModal(", "", ")", "", "'", "").Replace(onclick), ",")
		if len(args) < 3 {
			return
		}
		for i := range args {
			args[i] = strings.TrimSpace(args[i])
		}

		title := strings.TrimSuffix(strings.TrimSpace(entry.Find("span.showModalTitle").First().Text()), ".")
		if title == "" {
			return
		}
		item := &model.Item{
			Title: title,
			ID:    args[2],
			IDs: map[string]string{
				"control": args[0],
				"type":    strings.ToLower(args[1]),
				"bookId":  args[2],
			},
		}
		if authors := strings.TrimSuffix(strings.TrimSpace(entry.Find("p.author").Text()), "."); authors != "" {
			for _, a := range strings.Split(authors, ",") {
				if a = strings.TrimSpace(a); a != "" {
					item.Authors = append(item.Authors, a)
				}
			}
		}
		items = append(items, item)
	})
	return items
}

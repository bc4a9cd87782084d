package storefront

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/handiism/bookshelf-downloader/internal/auth"
	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/generation"
	"github.com/handiism/bookshelf-downloader/internal/http"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
	"go.uber.org/zap"
)

const (
	informitAttempts = 60
	informitInterval = 5 * time.Second
)

var (
	informitRegen    = regexp.MustCompile(`javascript:regen\((.*)\)`)
	informitLinkType = regexp.MustCompile(`/([a-z]+)\.aspx`)
)

// NewInformit builds the informit.com storefront.
//
// Shelf links are either direct downloads or javascript:regen(...) calls
// for files that have to be rebuilt before they can be fetched.
func NewInformit(acct config.Account, settings *config.Settings) (*Storefront, error) {
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
			Fields: func(c auth.Credentials, _ string) (url.Values, error) {
				return url.Values{
					"email_address": {c.Login},
					"password":      {c.Password},
				}, nil
			},
			Headers: map[string]string{"Referer": shelf},
		},
		Catalog:     CatalogFunc(parseInformitShelf),
		Generation:  informitGenerator{generateURL: u["generate"], referer: shelf},
		DownloadURL: TemplateDownloadURL(u["download"]),
	}, nil
}

func parseInformitShelf(body, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parsing shelf page: %w", err)
	}

	var page Page
	doc.Find("dl.rFull").Each(func(_ int, entry *goquery.Selection) {
		item := &model.Item{Title: strings.TrimSpace(entry.Find("dt").First().Text())}
		if item.Title == "" {
			return
		}
		seen := map[string]bool{}
		entry.Find("dd.productState a").Each(func(_ int, a *goquery.Selection) {
			f := informitFormat(a.AttrOr("href", ""), pageURL)
			if f == nil || seen[f.Tag] {
				return
			}
			seen[f.Tag] = true
			if item.ID == "" {
				item.ID = f.Params["isbn"]
			}
			item.Formats = append(item.Formats, f)
		})
		page.Items = append(page.Items, item)
	})
	return page, nil
}

// informitFormat reads one shelf link. regen calls carry
// (title, isbn, nid, _, fileType); anything else is a direct link whose
// format is the name of the .aspx handler.
func informitFormat(href, pageURL string) *model.Format {
	if m := informitRegen.FindStringSubmatch(href); m != nil {
		args := strings.Split(strings.NewReplacer(`'`, "", `"`, "").Replace(m[1]), ",")
		if len(args) < 5 {
			return nil
		}
		tag := strings.ToLower(strings.TrimSpace(args[4]))
		if tag == "" {
			return nil
		}
		return &model.Format{
			Tag: tag,
			Params: map[string]string{
				"isbn": strings.TrimSpace(args[1]),
				"nid":  strings.TrimSpace(args[2]),
			},
		}
	}

	m := informitLinkType.FindStringSubmatch(href)
	if m == nil {
		return nil
	}
	link, err := Resolve(pageURL, href)
	if err != nil {
		return nil
	}
	return &model.Format{Tag: m[1], Ready: true, DownloadURL: link}
}

type informitResult struct {
	RequestSuccess      string `xml:"RequestSuccess"`
	GenerationCompleted string `xml:"GenerationCompleted"`
}

func (r informitResult) accepted() bool  { return strings.EqualFold(r.RequestSuccess, "True") }
func (r informitResult) completed() bool { return strings.EqualFold(r.GenerationCompleted, "True") }

// parseInformitResult reads
// <Result><RequestSuccess>True</RequestSuccess><GenerationCompleted>False</GenerationCompleted></Result>.
func parseInformitResult(body []byte) (informitResult, error) {
	var r informitResult
	if err := xml.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("decoding generation result: %w", err)
	}
	return r, nil
}

type informitGenerator struct {
	generateURL string
	referer     string
}

// Prepare implements Generator. The same form both starts the rebuild and
// reports its progress.
func (g informitGenerator) Prepare(ctx context.Context, env *Env, item *model.Item, f *model.Format) (*generation.Job, error) {
	form := url.Values{
		"isbn13": {f.Params["isbn"]},
		"nid":    {f.Params["nid"]},
		"format": {f.Tag},
	}
	post := func(ctx context.Context) ([]byte, error) {
		resp, err := env.Session.PostForm(ctx, g.generateURL, form,
			http.WithHeader("Referer", g.referer),
			http.WithHeader("X-Requested-With", "XMLHttpRequest"))
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	poller := generation.NewPoller(env.Clock, informitAttempts, pacing.Constant{Every: informitInterval}, env.Logger)
	return generation.Run(ctx, poller, f.Tag, f.Ready, generation.Adapter[informitResult]{
		Trigger: func(ctx context.Context) error {
			body, err := post(ctx)
			if err != nil {
				return err
			}
			r, err := parseInformitResult(body)
			if err != nil {
				return err
			}
			if !r.accepted() {
				return errors.New("request rejected")
			}
			env.Logger.Info("regenerating file", zap.String("item", item.Title), zap.String("format", f.Tag))
			return nil
		},
		Poll:   post,
		Decode: parseInformitResult,
		Ready:  informitResult.completed,
		Failed: func(r informitResult) (string, bool) {
			return "request rejected", !r.accepted()
		},
	})
}

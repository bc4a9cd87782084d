package storefront

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
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
	nextoAttempts        = 60
	nextoInterval        = 5 * time.Second
	nextoMaxAuthorLength = 100
)

// Nexto file states reported by the status service.
const (
	nextoNotPrepared = 1
	nextoPreparing   = 2
	nextoReady       = 3
)

var (
	nextoTitleSuffix = regexp.MustCompile(`\s+-\s+e-*book|\s+-\s+audiobook`)
	nextoFileType    = regexp.MustCompile(`^[a-zA-Z0-9]+`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// NewNexto builds the nexto.pl storefront.
func NewNexto(acct config.Account, settings *config.Settings) (*Storefront, error) {
	u, err := urls(acct, "not_logged_in", "login_form", "login", "shelf", "status", "prepare")
	if err != nil {
		return nil, err
	}

	return &Storefront{
		Name:     acct.Storefront,
		ShelfURL: u["shelf"],
		Checker:  auth.RedirectCheck{ShelfURL: u["shelf"], Marker: u["not_logged_in"]},
		Login: auth.FormLogin{
			FormURL:   u["login_form"],
			SubmitURL: u["login"],
			FormDelay: settings.LoginFormDelay,
			Fields: func(c auth.Credentials, _ string) (url.Values, error) {
				v := url.Values{}
				v.Set("fb_form_id", "login")
				v.Set("email", c.Login)
				v.Set("password", c.Password)
				v.Set("extra_param", "")
				v.Set("remember[0]", "1")
				v.Set("remember[1]", "0")
				return v, nil
			},
		},
		Catalog:    CatalogFunc(parseNextoShelf),
		Generation: nextoGenerator{statusURL: u["status"], prepareURL: u["prepare"]},
		DownloadURL: func(item *model.Item, f *model.Format) (string, error) {
			if f.DownloadURL == "" {
				return "", fmt.Errorf("no download link for %s of %s", f.Tag, item.Title)
			}
			return f.DownloadURL, nil
		},
	}, nil
}

func parseNextoShelf(body, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parsing shelf page: %w", err)
	}

	var page Page
	doc.Find("#library tbody tr").Each(func(_ int, row *goquery.Selection) {
		title := whitespace.ReplaceAllString(row.Find(".title span").Text(), " ")
		title = strings.TrimSpace(nextoTitleSuffix.ReplaceAllString(title, ""))
		if title == "" {
			return
		}

		item := &model.Item{Title: title, Authors: nextoAuthors(row.Find(".title div b a").Text())}
		seen := map[string]bool{}
		row.Find(".download_td a.link-download-a").Each(func(_ int, a *goquery.Selection) {
			href := strings.TrimSpace(whitespace.ReplaceAllString(a.AttrOr("href", ""), " "))
			tag := nextoFileType.FindString(strings.TrimSpace(a.Text()))
			if href == "" || tag == "" || seen[href] {
				return
			}
			seen[href] = true

			link, err := Resolve(pageURL, href)
			if err != nil {
				return
			}
			q := linkQuery(link)
			f := &model.Format{
				Tag:         strings.ToLower(tag),
				DownloadURL: link,
				Params: map[string]string{
					"fileId":     q.Get("fileId"),
					"fileTypeId": q.Get("fileTypeId"),
				},
			}
			if f.Tag == "mp3" {
				f.Ext = "zip"
			}
			item.Formats = append(item.Formats, f)
			if item.ID == "" {
				item.ID = q.Get("fileId")
			}
		})
		page.Items = append(page.Items, item)
	})

	doc.Find(".listnavigator a:not([class])").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		if abs, err := Resolve(pageURL, href); err == nil {
			page.Next = append(page.Next, abs)
		}
	})
	return page, nil
}

// nextoAuthors splits the comma separated author line.
func nextoAuthors(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimRight(raw, ", \t\n")
	if r := []rune(raw); len(r) > nextoMaxAuthorLength {
		raw = string(r[:nextoMaxAuthorLength])
	}
	var authors []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	return authors
}

func linkQuery(link string) url.Values {
	u, err := url.Parse(link)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

type nextoResult struct {
	Int string `xml:"int"`
}

// parseNextoStatus reads <result><int>3.0</int></result>.
func parseNextoStatus(body []byte) (int, error) {
	var r nextoResult
	if err := xml.Unmarshal(body, &r); err != nil {
		return 0, fmt.Errorf("decoding status: %w", err)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(r.Int), 64)
	if err != nil {
		return 0, fmt.Errorf("decoding status %q: %w", r.Int, err)
	}
	return int(value), nil
}

type nextoGenerator struct {
	statusURL  string
	prepareURL string
}

// Prepare implements Generator. One status call decides whether the file
// is ready, needs a prepare call, or is already being prepared.
func (g nextoGenerator) Prepare(ctx context.Context, env *Env, item *model.Item, f *model.Format) (*generation.Job, error) {
	vars := item.Vars(f)
	statusURL, err := config.Expand(g.statusURL, vars)
	if err != nil {
		return nil, err
	}
	prepareURL, err := config.Expand(g.prepareURL, vars)
	if err != nil {
		return nil, err
	}

	poll := func(ctx context.Context) ([]byte, error) {
		return env.Session.GetBytes(ctx, statusURL)
	}

	body, err := poll(ctx)
	if err != nil {
		return failedJob(f, err.Error())
	}
	status, err := parseNextoStatus(body)
	if err != nil {
		return failedJob(f, err.Error())
	}

	adapter := generation.Adapter[int]{
		Poll:   poll,
		Decode: parseNextoStatus,
		Ready:  func(s int) bool { return s == nextoReady },
		Failed: nextoUnrecognized,
	}
	switch status {
	case nextoReady:
		return &generation.Job{Format: f.Tag, Outcome: generation.Ready}, nil
	case nextoNotPrepared:
		env.Logger.Info("preparing file", zap.String("item", item.Title), zap.String("format", f.Tag))
		adapter.Trigger = func(ctx context.Context) error {
			_, err := env.Session.GetBytes(ctx, prepareURL)
			return err
		}
	case nextoPreparing:
	default:
		reason, _ := nextoUnrecognized(status)
		return failedJob(f, reason)
	}

	poller := generation.NewPoller(env.Clock, nextoAttempts, pacing.Constant{Every: nextoInterval}, env.Logger)
	return generation.Run(ctx, poller, f.Tag, false, adapter)
}

func nextoUnrecognized(status int) (string, bool) {
	switch status {
	case nextoNotPrepared, nextoPreparing, nextoReady:
		return "", false
	}
	return fmt.Sprintf("unrecognized status %d", status), true
}

func failedJob(f *model.Format, reason string) (*generation.Job, error) {
	job := &generation.Job{Format: f.Tag, Outcome: generation.Failed, Reason: reason}
	return job, job.Err()
}

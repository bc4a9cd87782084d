package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/handiism/bookshelf-downloader/internal/auth"
	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/generation"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
)

const (
	publioItemsPerPage = 20
	publioAttempts     = 30

	publioTokenName   = "authorizationToken"
	publioRefreshName = "refreshToken"
)

var publioBackoff = pacing.Exponential{Initial: time.Second, Factor: 2, Max: 30 * time.Second}

// Package states returned by the prepare service.
const (
	publioPartReady = "READY"
	publioPartError = "ERROR"
)

// NewPublio builds the publio.pl storefront.
//
// Publio exposes a JSON API guarded by a bearer token in X-Auth-Token. The
// shelf is paged by number; a publication is assembled into a download
// package that must report every part READY.
func NewPublio(acct config.Account, _ *config.Settings) (*Storefront, error) {
	u, err := urls(acct, "login", "shelf", "prepare", "download")
	if err != nil {
		return nil, err
	}

	perPage := acct.ItemsPerPage
	if perPage <= 0 {
		perPage = publioItemsPerPage
	}
	catalog := publioCatalog{shelfURL: u["shelf"], perPage: perPage}
	first, err := catalog.pageURL(1)
	if err != nil {
		return nil, err
	}

	return &Storefront{
		Name:     acct.Storefront,
		ShelfURL: first,
		Checker: auth.TokenCheck{
			ShelfURL:  first,
			TokenName: publioTokenName,
			Header:    "X-Auth-Token",
		},
		Login: auth.TokenLogin{
			URL: u["login"],
			Body: func(c auth.Credentials) any {
				return map[string]string{"login": c.Login, "password": c.Password}
			},
			Tokens: []string{publioTokenName, publioRefreshName},
		},
		Catalog:     CatalogFunc(catalog.parse),
		Generation:  publioGenerator{prepareURL: u["prepare"]},
		DownloadURL: TemplateDownloadURL(u["download"]),
	}, nil
}

type publioShelf struct {
	Items []struct {
		PublicationID  json.Number `json:"publicationId"`
		DownloadInfoID json.Number `json:"downloadInfoId"`
		Title          string      `json:"title"`
		Authors        []string    `json:"authors"`
		Type           string      `json:"type"`
		Cover          string      `json:"coverUrl"`
		Formats        []struct {
			Name        string `json:"name"`
			PackageType string `json:"packageType"`
		} `json:"formats"`
	} `json:"items"`
	TotalResults int `json:"totalResults"`
}

type publioCatalog struct {
	shelfURL string
	perPage  int
}

func (c publioCatalog) pageURL(n int) (string, error) {
	return config.Expand(c.shelfURL, map[string]string{
		"page": strconv.Itoa(n),
		"size": strconv.Itoa(c.perPage),
	})
}

func (c publioCatalog) parse(body, pageURL string) (Page, error) {
	var shelf publioShelf
	if err := json.Unmarshal([]byte(body), &shelf); err != nil {
		return Page{}, fmt.Errorf("decoding shelf page: %w", err)
	}

	var page Page
	for _, p := range shelf.Items {
		// Press subscriptions come as GROUP entries without files of their own.
		if p.Type != "" && !strings.EqualFold(p.Type, "SINGLE") {
			continue
		}
		item := &model.Item{
			Title:    strings.TrimSpace(p.Title),
			Authors:  p.Authors,
			ID:       p.PublicationID.String(),
			CoverURL: p.Cover,
			IDs: map[string]string{
				"publicationId":  p.PublicationID.String(),
				"downloadInfoId": p.DownloadInfoID.String(),
			},
		}
		for _, f := range p.Formats {
			tag := strings.ToLower(f.Name)
			format := &model.Format{Tag: tag, Params: map[string]string{"packageType": f.PackageType}}
			if tag == "mp3" {
				format.Ext = "zip"
			}
			item.Formats = append(item.Formats, format)
		}
		page.Items = append(page.Items, item)
	}

	n := 1
	if v := linkQuery(pageURL).Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	if c.perPage*n < shelf.TotalResults {
		next, err := c.pageURL(n + 1)
		if err != nil {
			return page, err
		}
		page.Next = []string{next}
	}
	return page, nil
}

type publioGenerator struct {
	prepareURL string
}

// Prepare implements Generator. Each poll asks for the package; the
// response maps every package part to its state.
func (g publioGenerator) Prepare(ctx context.Context, env *Env, item *model.Item, f *model.Format) (*generation.Job, error) {
	prepareURL, err := config.Expand(g.prepareURL, item.Vars(f))
	if err != nil {
		return nil, err
	}

	poller := generation.NewPoller(env.Clock, publioAttempts, publioBackoff, env.Logger)
	return generation.Run(ctx, poller, f.Tag, f.Ready, generation.Adapter[map[string]string]{
		Poll: func(ctx context.Context) ([]byte, error) {
			return env.Session.GetBytes(ctx, prepareURL)
		},
		Decode: func(body []byte) (map[string]string, error) {
			var parts map[string]string
			err := json.Unmarshal(body, &parts)
			return parts, err
		},
		Ready: func(parts map[string]string) bool {
			states := make([]string, 0, len(parts))
			for _, s := range parts {
				states = append(states, s)
			}
			return generation.All(states, func(s string) bool { return s == publioPartReady })
		},
		Failed: func(parts map[string]string) (string, bool) {
			for part, s := range parts {
				if s == publioPartError {
					return fmt.Sprintf("package part %s failed", part), true
				}
			}
			return "", false
		},
	})
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/handiism/bookshelf-downloader/internal/http"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
)

// Credentials are the secrets submitted on login.
type Credentials struct {
	Login    string
	Password string
}

// Strategy submits credentials to a storefront.
type Strategy interface {
	Login(ctx context.Context, s *http.Session, clock *pacing.Clock, c Credentials) error
}

// FormLogin posts an HTML login form.
//
// When FormURL is set the form page is fetched first, which seeds session
// cookies and anti-forgery tokens, and FormDelay is waited exactly before
// submitting. Fields builds the POST body from the credentials and the
// fetched form page (empty when FormURL is unset).
//
// Example:
//
//	login := auth.FormLogin{
//	    FormURL:   "https://example.com/login",
//	    SubmitURL: "https://example.com/login_check",
//	    FormDelay: 3 * time.Second,
//	    Fields: func(c auth.Credentials, form string) (url.Values, error) {
//	        v, err := auth.HiddenInputs(form)
//	        v.Set("email", c.Login)
//	        v.Set("password", c.Password)
//	        return v, err
//	    },
//	}
type FormLogin struct {
	FormURL   string
	SubmitURL string
	FormDelay time.Duration
	Fields    func(c Credentials, form string) (url.Values, error)
	Headers   map[string]string
}

// Login implements Strategy.
func (l FormLogin) Login(ctx context.Context, s *http.Session, clock *pacing.Clock, c Credentials) error {
	var form string
	if l.FormURL != "" {
		body, err := s.GetString(ctx, l.FormURL)
		if err != nil {
			return fmt.Errorf("visiting login form: %w", err)
		}
		form = body
		if err := clock.DelayExactly(ctx, l.FormDelay); err != nil {
			return err
		}
	}

	values, err := l.Fields(c, form)
	if err != nil {
		return fmt.Errorf("building login form: %w", err)
	}

	opts := make([]http.RequestOption, 0, len(l.Headers))
	for k, v := range l.Headers {
		opts = append(opts, http.WithHeader(k, v))
	}
	if _, err := s.PostForm(ctx, l.SubmitURL, values, opts...); err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}
	return nil
}

// HiddenInputs collects name/value pairs of every hidden input in an HTML page.
func HiddenInputs(page string) (url.Values, error) {
	values := url.Values{}
	if strings.TrimSpace(page) == "" {
		return values, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return values, err
	}
	doc.Find(`input[type="hidden"]`).Each(func(_ int, sel *goquery.Selection) {
		if name, ok := sel.Attr("name"); ok && name != "" {
			values.Set(name, sel.AttrOr("value", ""))
		}
	})
	return values, nil
}

// TokenLogin posts credentials as JSON and stores the returned tokens in the
// session jar under the same names as the response fields.
type TokenLogin struct {
	URL string

	// Body builds the JSON payload.
	Body func(c Credentials) any

	// Tokens lists the response fields to persist. The first one is required.
	Tokens []string
}

// Login implements Strategy.
func (l TokenLogin) Login(ctx context.Context, s *http.Session, _ *pacing.Clock, c Credentials) error {
	resp, err := s.PostJSON(ctx, l.URL, l.Body(c))
	if err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(resp.Body, &fields); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}

	for i, name := range l.Tokens {
		value, _ := fields[name].(string)
		if value == "" {
			if i == 0 {
				return fmt.Errorf("login response has no %s", name)
			}
			continue
		}
		if err := s.Jar().SetToken(name, value); err != nil {
			return fmt.Errorf("storing %s: %w", name, err)
		}
	}
	return nil
}

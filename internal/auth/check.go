package auth

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/handiism/bookshelf-downloader/internal/http"
)

// Checker decides whether a session is already authenticated.
//
// On success it returns the body of the page it fetched, normally the first
// shelf page, so the caller does not request it twice.
type Checker interface {
	Check(ctx context.Context, s *http.Session) (body string, ok bool, err error)
}

// RedirectCheck fetches ShelfURL and treats the session as logged out when
// the final URL after redirects contains Marker.
type RedirectCheck struct {
	ShelfURL string
	Marker   string
}

// Check implements Checker.
func (c RedirectCheck) Check(ctx context.Context, s *http.Session) (string, bool, error) {
	resp, err := s.Get(ctx, c.ShelfURL)
	if err != nil {
		return "", false, err
	}
	if strings.Contains(resp.URL.String(), c.Marker) {
		return "", false, nil
	}
	body, err := resp.Text()
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

// TokenCheck authenticates requests with a bearer token kept in the session jar.
//
// A missing token, or a JWT whose exp claim has passed, is logged out
// without any request. Otherwise ShelfURL is fetched with the token in
// Header; 401 and 403 mean logged out. On success the header stays set on
// the session for every later request.
type TokenCheck struct {
	ShelfURL  string
	TokenName string

	// Header defaults to "Authorization".
	Header string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Check implements Checker.
func (c TokenCheck) Check(ctx context.Context, s *http.Session) (string, bool, error) {
	header := c.Header
	if header == "" {
		header = "Authorization"
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	token, ok := s.Jar().Token(c.TokenName)
	if !ok || TokenExpired(token, now()) {
		s.SetHeader(header, "")
		return "", false, nil
	}

	s.SetHeader(header, "Bearer "+token)
	resp, err := s.Get(ctx, c.ShelfURL)
	if err != nil {
		var statusErr *http.StatusError
		if errors.As(err, &statusErr) &&
			(statusErr.Code == nethttp.StatusUnauthorized || statusErr.Code == nethttp.StatusForbidden) {
			s.SetHeader(header, "")
			return "", false, nil
		}
		return "", false, err
	}

	body, err := resp.Text()
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

// TokenExpired reports whether token is a JWT whose exp claim is not after now.
// Tokens that are not JWTs, or carry no exp, never expire here.
func TokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser(jwt.WithoutClaimsValidation()).ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(now)
}

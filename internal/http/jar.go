package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/net/publicsuffix"
)

var (
	cookiesBucket = []byte("cookies")
	tokensBucket  = []byte("tokens")
)

// storedCookie is the on-disk form of one cookie. Origin is the URL the
// cookie was received from; replaying it through cookiejar restores the
// host-only and default-path rules.
type storedCookie struct {
	Origin   string    `json:"origin"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (s storedCookie) expired(now time.Time) bool {
	return !s.Expires.IsZero() && !s.Expires.After(now)
}

func (s storedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.Name,
		Value:    s.Value,
		Domain:   s.Domain,
		Path:     s.Path,
		Expires:  s.Expires,
		Secure:   s.Secure,
		HttpOnly: s.HttpOnly,
	}
}

// Jar is a cookie jar persisted to a bbolt file.
//
// Cookies live in memory in a net/http/cookiejar and every SetCookies call is
// written through to disk, so a later process run opening the same file
// starts with the same authenticated state. The file also keeps named tokens
// for storefronts that authenticate with bearer tokens instead of cookies.
type Jar struct {
	mu   sync.Mutex
	db   *bolt.DB
	mem  *cookiejar.Jar
	now  func() time.Time
	path string
}

// OpenJar opens the jar file at path, creating it when absent, and loads
// every unexpired cookie. Expired entries are purged.
func OpenJar(path string) (*Jar, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating jar directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening jar %s: %w", path, err)
	}

	mem, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &Jar{db: db, mem: mem, now: time.Now, path: path}
	if err := j.load(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("loading jar %s: %w", path, err)
	}
	return j, nil
}

func (j *Jar) load() error {
	now := j.now()
	return j.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{cookiesBucket, tokensBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}

		b := tx.Bucket(cookiesBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var sc storedCookie
			if err := json.Unmarshal(v, &sc); err != nil {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			if sc.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			origin, err := url.Parse(sc.Origin)
			if err != nil {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			j.mem.SetCookies(origin, []*http.Cookie{sc.cookie()})
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Path returns the jar file location.
func (j *Jar) Path() string {
	return j.path
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.mem.Cookies(u)
}

// SetCookies implements http.CookieJar. Cookies are stored in memory and
// written to disk; a cookie that is already expired removes its stored copy.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mem.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	// http.CookieJar has no error return; a failed write only costs a re-login
	// on the next run.
	_ = j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cookiesBucket)
		for _, c := range cookies {
			sc := storedCookie{
				Origin:   originOf(u),
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HttpOnly: c.HttpOnly,
			}
			switch {
			case c.MaxAge < 0:
				sc.Expires = now
			case c.MaxAge > 0:
				sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
			}

			key := []byte(cookieKey(u, c))
			if sc.expired(now) {
				if err := b.Delete(key); err != nil {
					return err
				}
				continue
			}
			data, err := json.Marshal(sc)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Token returns a stored token and whether it was present.
func (j *Jar) Token(name string) (string, bool) {
	var value string
	var ok bool
	_ = j.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(tokensBucket).Get([]byte(name)); v != nil {
			value, ok = string(v), true
		}
		return nil
	})
	return value, ok
}

// SetToken stores a token under name. An empty value deletes it.
func (j *Jar) SetToken(name, value string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tokensBucket)
		if value == "" {
			return b.Delete([]byte(name))
		}
		return b.Put([]byte(name), []byte(value))
	})
}

// Close closes the jar file.
func (j *Jar) Close() error {
	return j.db.Close()
}

func originOf(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
}

func cookieKey(u *url.URL, c *http.Cookie) string {
	domain := c.Domain
	if domain == "" {
		domain = u.Hostname()
	}
	return domain + "|" + c.Path + "|" + c.Name
}

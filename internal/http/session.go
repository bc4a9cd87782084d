package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ioutils "github.com/handiism/bookshelf-downloader/internal/io"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// DefaultUserAgent identifies the downloader to storefronts.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) bookshelf-downloader"

// Options configures a Session.
type Options struct {
	// UserAgent is sent with every request. Empty means DefaultUserAgent.
	UserAgent string

	// Timeout bounds each request including reading the body. Zero means 60s.
	// Downloads are bounded by their context only.
	Timeout time.Duration

	// Charset decodes text bodies returned by Response.Text. Nil means UTF-8.
	Charset encoding.Encoding

	// Logger receives per-request debug entries. Nil disables logging.
	Logger *zap.Logger
}

// Session is an HTTP client bound to one account.
//
// Session provides:
//   - A cookie Jar persisted to disk between runs
//   - A fixed User-Agent header and optional default headers (bearer tokens)
//   - Redirect following, which individual requests may disable
//   - File download with progress tracking into an atomic temporary file
//   - Content-Length probing via HEAD requests
//
// Session does not retry. Any failure is returned as a *TransportError or,
// for 4xx/5xx answers, a *StatusError.
//
// Example usage:
//
//	s, err := http.NewSession("/cookies/jan-example.com.woblink.cookies.db", http.Options{})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	resp, err := s.Get(ctx, "https://woblink.com/profil/polka")
//	if resp.URL.Path == "/logowanie" {
//	    // not logged in
//	}
type Session struct {
	client     *http.Client
	noRedirect *http.Client
	download   *http.Client
	jar        *Jar
	userAgent  string
	headers    http.Header
	charset    encoding.Encoding
	logger     *zap.Logger
}

// NewSession opens (or creates) the jar file at jarPath and returns a Session
// using it.
func NewSession(jarPath string, opts Options) (*Session, error) {
	jar, err := OpenJar(jarPath)
	if err != nil {
		return nil, err
	}

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Session{
		client: &http.Client{Jar: jar, Timeout: opts.Timeout},
		noRedirect: &http.Client{
			Jar:     jar,
			Timeout: opts.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		download:  &http.Client{Jar: jar},
		jar:       jar,
		userAgent: opts.UserAgent,
		headers:   http.Header{},
		charset:   opts.Charset,
		logger:    opts.Logger,
	}, nil
}

// Jar returns the session's persisted jar.
func (s *Session) Jar() *Jar {
	return s.jar
}

// SetHeader adds a header sent with every later request. An empty value removes it.
func (s *Session) SetHeader(key, value string) {
	if value == "" {
		s.headers.Del(key)
		return
	}
	s.headers.Set(key, value)
}

// Close releases the jar file.
func (s *Session) Close() error {
	return s.jar.Close()
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int

	// URL is the final URL after redirects.
	URL *url.URL

	Header http.Header
	Body   []byte

	// ContentLength is the announced body size, or -1 when unknown.
	ContentLength int64

	charset encoding.Encoding
}

// Text returns the body decoded with the session charset.
func (r *Response) Text() (string, error) {
	if r.charset == nil {
		return string(r.Body), nil
	}
	out, err := r.charset.NewDecoder().Bytes(r.Body)
	if err != nil {
		return "", fmt.Errorf("decoding body of %s: %w", r.URL, err)
	}
	return string(out), nil
}

// RequestOption adjusts a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	headers    http.Header
	noRedirect bool
}

// WithHeader sets a header on one request.
func WithHeader(key, value string) RequestOption {
	return func(c *requestConfig) {
		c.headers.Set(key, value)
	}
}

// WithoutRedirects returns 3xx answers as they are instead of following them.
func WithoutRedirects() RequestOption {
	return func(c *requestConfig) {
		c.noRedirect = true
	}
}

// Get performs a GET request.
func (s *Session) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return s.do(ctx, http.MethodGet, rawURL, nil, "", opts)
}

// GetString performs a GET request and returns the decoded body.
//
// This is a convenience wrapper around Get for fetching HTML and XML pages.
func (s *Session) GetString(ctx context.Context, rawURL string, opts ...RequestOption) (string, error) {
	resp, err := s.Get(ctx, rawURL, opts...)
	if err != nil {
		return "", err
	}
	return resp.Text()
}

// GetBytes performs a GET request and returns the raw body.
//
// Use this for small files like cover art. For book files use DownloadFile.
func (s *Session) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := s.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PostForm submits an application/x-www-form-urlencoded body.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values, opts ...RequestOption) (*Response, error) {
	return s.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", opts)
}

// PostJSON submits payload encoded as JSON.
func (s *Session) PostJSON(ctx context.Context, rawURL string, payload any, opts ...RequestOption) (*Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request for %s: %w", rawURL, err)
	}
	return s.do(ctx, http.MethodPost, rawURL, bytes.NewReader(data), "application/json", opts)
}

// Head performs a HEAD request.
func (s *Session) Head(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return s.do(ctx, http.MethodHead, rawURL, nil, "", opts)
}

// ContentLength returns the size announced by a HEAD request, or -1 when the
// server does not send Content-Length.
//
// Example:
//
//	size, err := s.ContentLength(ctx, fileURL)
//	if size > maxFileSize {
//	    // too big
//	}
func (s *Session) ContentLength(ctx context.Context, rawURL string) (int64, error) {
	resp, err := s.Head(ctx, rawURL)
	if err != nil {
		return -1, err
	}
	return resp.ContentLength, nil
}

func (s *Session) newRequest(ctx context.Context, method, rawURL string, body io.Reader, contentType string, opts []RequestOption) (*http.Request, *requestConfig, error) {
	cfg := &requestConfig{headers: http.Header{}}
	for _, opt := range opts {
		opt(cfg)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, nil, &TransportError{Method: method, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)
	for k, v := range s.headers {
		req.Header[k] = v
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range cfg.headers {
		req.Header[k] = v
	}
	return req, cfg, nil
}

func (s *Session) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, opts []RequestOption) (*Response, error) {
	req, cfg, err := s.newRequest(ctx, method, rawURL, body, contentType, opts)
	if err != nil {
		return nil, err
	}

	client := s.client
	if cfg.noRedirect {
		client = s.noRedirect
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: rawURL, Err: err}
	}

	s.logger.Debug("request",
		zap.String("method", method),
		zap.String("url", rawURL),
		zap.String("final_url", resp.Request.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{Method: method, URL: rawURL, Code: resp.StatusCode}
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		URL:           resp.Request.URL,
		Header:        resp.Header,
		Body:          data,
		ContentLength: resp.ContentLength,
		charset:       s.charset,
	}, nil
}

// ProgressWriter wraps a writer to track download progress.
//
// Example:
//
//	pw := &ProgressWriter{
//	    Writer: file,
//	    Total:  contentLength,
//	    OnUpdate: func(written, total int64) {
//	        fmt.Printf("%d / %d bytes\n", written, total)
//	    },
//	}
//	io.Copy(pw, response.Body)
type ProgressWriter struct {
	// Writer is the underlying writer to write data to.
	Writer io.Writer

	// Total is the expected total bytes (from Content-Length header), or -1.
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with current progress.
	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// DownloadFile streams url into destPath and returns the number of bytes written.
//
// The destination directory is created if needed. The body is written to a
// temporary file beside destPath which is renamed into place only after the
// whole body has been received and flushed; on any error the temporary file
// is removed and destPath is left untouched.
//
// Parameters:
//   - ctx: Context for cancellation
//   - rawURL: URL to download from
//   - destPath: Local file path to save to
//   - onProgress: Optional callback called with (bytesWritten, totalBytes)
//
// Example:
//
//	n, err := s.DownloadFile(ctx, fileURL, "/books/Title/Title.epub", func(written, total int64) {
//	    if total > 0 {
//	        fmt.Printf("%.1f%%\r", float64(written)/float64(total)*100)
//	    }
//	})
func (s *Session) DownloadFile(ctx context.Context, rawURL, destPath string, onProgress func(written, total int64)) (int64, error) {
	req, _, err := s.newRequest(ctx, http.MethodGet, rawURL, nil, "", nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.download.Do(req)
	if err != nil {
		return 0, &TransportError{Method: http.MethodGet, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, &StatusError{Method: http.MethodGet, URL: rawURL, Code: resp.StatusCode}
	}

	file, err := ioutils.CreateAtomic(destPath)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer file.Abort()

	var writer io.Writer = file
	if onProgress != nil {
		writer = &ProgressWriter{
			Writer:   file,
			Total:    resp.ContentLength,
			OnUpdate: onProgress,
		}
	}

	written, err := io.Copy(writer, resp.Body)
	if err != nil {
		return written, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return written, &TransportError{Method: http.MethodGet, URL: rawURL, Err: io.ErrUnexpectedEOF}
	}

	if err := file.Commit(); err != nil {
		return written, fmt.Errorf("saving %s: %w", destPath, err)
	}

	s.logger.Debug("downloaded",
		zap.String("url", rawURL),
		zap.String("path", destPath),
		zap.Int64("bytes", written),
	)
	return written, nil
}

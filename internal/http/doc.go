// Package http provides the per-account HTTP session used to talk to storefronts.
//
// A Session handles:
//   - A cookie/token Jar persisted to a bbolt file, so a later run reuses the
//     authenticated state instead of logging in again
//   - User-Agent and default headers
//   - Charset decoding for storefronts that do not serve UTF-8
//   - File downloads with progress tracking, written atomically
//   - Content-Length probing via HEAD requests
//
// # Basic Usage
//
//	s, err := http.NewSession(jarPath, http.Options{Charset: charmap.ISO8859_2})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	page, err := s.GetString(ctx, shelfURL)
//
//	n, err := s.DownloadFile(ctx, fileURL, "/books/Title/Title.epub", func(written, total int64) {
//	    fmt.Printf("%d/%d\n", written, total)
//	})
//
// # Errors
//
// Requests are never retried. Failures are *TransportError or *StatusError,
// both matching errs.ErrTransport with errors.Is.
package http

// Package storefront describes each supported bookstore as a capability
// record and builds those records from account configuration.
//
// A Storefront bundles a login checker, a login strategy, a catalog reader,
// an optional server-side generator and a download link resolver. The
// download pipeline never branches on the site name; everything
// site-specific lives in the adapter files of this package:
//
//   - woblink.go: HTML shelf, form login, per-format watermark generation
//   - nexto.go: HTML shelf, form login, XML status polling
//   - ebookpoint.go: ISO-8859-2 shelf plus archive, size probed downloads
//   - publio.go: JSON API with bearer token, package preparation
//   - informit.go: HTML shelf with regen links, XML completion polling
//
// Default URL templates are embedded from defaults.toml and merged under
// the [urls] table of each account.
//
// Example:
//
//	reg, err := storefront.Default()
//	if err != nil {
//	    return err
//	}
//	sf, err := reg.Build(account, settings)
package storefront

// Package download runs storefront accounts end to end.
//
// # Runner
//
// The Runner drives one account at a time:
//
//  1. Build the storefront from the account configuration
//  2. Open the persistent session (cookie/token jar per account)
//  3. Reuse the persisted login or log in
//  4. Read every shelf page, following discovered page links once each
//  5. For each item and format: gate, generate when needed, probe, fetch
//  6. Tag MP3 audiobooks and save cover art
//
// # Basic Usage
//
//	registry, _ := storefront.Default()
//	runner := download.NewRunner(settings, registry, func(event download.ProgressEvent) {
//	    fmt.Println(event.Message)
//	})
//
//	reports, err := runner.RunAll(ctx, settings.Accounts)
//	for _, r := range reports {
//	    fmt.Println(r.Summary())
//	}
//
// # Gate
//
// A non-empty file at the target path is never fetched again, so a second
// run against an unchanged catalog makes no file requests. Storefronts that
// ask for it get a HEAD probe first, and files over settings.MaxFileSize are
// rejected with their direct link reported for manual download.
//
// # Progress Tracking
//
// Progress is reported via a callback function that receives ProgressEvent:
//
//	type ProgressEvent struct {
//	    Message string
//	    Level   ProgressLevel // Info, Verbose, Warning, Error, Success
//	}
//
// Every failed or rejected format produces exactly one Error or Warning
// event naming the item and the reason.
package download

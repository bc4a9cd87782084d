package download

import (
	"fmt"
	"strings"
)

// Report summarises one account run.
type Report struct {
	Account    string
	Storefront string

	Downloaded int
	Skipped    int
	Rejected   int
	Failed     int

	// Bytes counts bytes written by completed downloads.
	Bytes int64

	// RejectedLinks lists direct links of files over the size limit.
	RejectedLinks []string

	// Err is set when the account run was aborted.
	Err error
}

// Summary renders the report on one line.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %d downloaded, %d skipped, %d rejected, %d failed, %s",
		r.Account, r.Storefront, r.Downloaded, r.Skipped, r.Rejected, r.Failed, FormatBytes(r.Bytes))
	if r.Err != nil {
		fmt.Fprintf(&b, ", aborted: %v", r.Err)
	}
	return b.String()
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

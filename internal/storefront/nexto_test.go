package storefront

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/handiism/bookshelf-downloader/internal/errs"
	"github.com/handiism/bookshelf-downloader/internal/generation"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nextoShelf = `<html><body><table id="library"><tbody>
<tr>
  <td class="title"><span>Solaris   - ebook</span><div><b><a>Stanisław Lem, </a></b></div></td>
  <td class="download_td">
    <a class="link-download-a" href="/download.xml?fileId=11&amp;x=1&amp;fileTypeId=2">EPUB (2 MB)</a>
    <a class="link-download-a" href="/download.xml?fileId=11&amp;x=1&amp;fileTypeId=2">EPUB (2 MB)</a>
    <a class="link-download-a" href="/download.xml?fileId=12&amp;x=1&amp;fileTypeId=7">mp3 archive</a>
  </td>
</tr>
</tbody></table>
<div class="listnavigator"><a class="current" href="?p=1">1</a><a href="?p=2">2</a></div>
</body></html>`

func TestParseNextoShelf(t *testing.T) {
	page, err := parseNextoShelf(nextoShelf, "https://www.nexto.pl/user/library.xml")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	item := page.Items[0]
	assert.Equal(t, "Solaris", item.Title)
	assert.Equal(t, []string{"Stanisław Lem"}, item.Authors)
	require.Len(t, item.Formats, 2)

	epub := item.Formats[0]
	assert.Equal(t, "epub", epub.Tag)
	assert.Equal(t, "epub", epub.Extension())
	assert.Equal(t, "11", epub.Params["fileId"])
	assert.Equal(t, "2", epub.Params["fileTypeId"])
	assert.Equal(t, "https://www.nexto.pl/download.xml?fileId=11&x=1&fileTypeId=2", epub.DownloadURL)

	assert.Equal(t, "mp3", item.Formats[1].Tag)
	assert.Equal(t, "zip", item.Formats[1].Extension())

	assert.Equal(t, []string{"https://www.nexto.pl/user/library.xml?p=2"}, page.Next)
}

func TestParseNextoStatus(t *testing.T) {
	status, err := parseNextoStatus([]byte(`<?xml version="1.0"?><result><int>3.0</int></result>`))
	require.NoError(t, err)
	assert.Equal(t, 3, status)

	_, err = parseNextoStatus([]byte(`<result><int>soon</int></result>`))
	assert.Error(t, err)
}

type nextoServer struct {
	srv      *httptest.Server
	statuses []int
	calls    atomic.Int32
	prepares atomic.Int32
}

func newNextoServer(t *testing.T, statuses ...int) *nextoServer {
	t.Helper()
	ns := &nextoServer{statuses: statuses}
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/status", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "11", r.URL.Query().Get("fileId"))
		n := int(ns.calls.Add(1)) - 1
		if n >= len(ns.statuses) {
			n = len(ns.statuses) - 1
		}
		fmt.Fprintf(w, "<result><int>%d.0</int></result>", ns.statuses[n])
	})
	mux.HandleFunc("/prepare", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ns.prepares.Add(1)
		fmt.Fprint(w, "<result><int>2.0</int></result>")
	})
	ns.srv = httptest.NewServer(mux)
	t.Cleanup(ns.srv.Close)
	return ns
}

func (ns *nextoServer) prepare(t *testing.T) (*generation.Job, error) {
	t.Helper()
	env, _ := testEnv(t, nil)
	gen := nextoGenerator{
		statusURL:  ns.srv.URL + "/status?fileId=_fileId_&fileTypeId=_fileTypeId_",
		prepareURL: ns.srv.URL + "/prepare?fileId=_fileId_&fileTypeId=_fileTypeId_",
	}
	item := &model.Item{Title: "Solaris"}
	format := &model.Format{Tag: "epub", Params: map[string]string{"fileId": "11", "fileTypeId": "2"}}
	return gen.Prepare(context.Background(), env, item, format)
}

func TestNextoAlreadyReady(t *testing.T) {
	ns := newNextoServer(t, 3)
	job, err := ns.prepare(t)
	require.NoError(t, err)
	assert.Equal(t, generation.Ready, job.Outcome)
	assert.Equal(t, int32(1), ns.calls.Load())
	assert.Zero(t, ns.prepares.Load())
}

func TestNextoTriggersPreparation(t *testing.T) {
	ns := newNextoServer(t, 1, 2, 2, 3)
	job, err := ns.prepare(t)
	require.NoError(t, err)
	assert.Equal(t, generation.Ready, job.Outcome)
	assert.Equal(t, int32(1), ns.prepares.Load())
	assert.Equal(t, int32(4), ns.calls.Load())
}

func TestNextoAlreadyPreparing(t *testing.T) {
	ns := newNextoServer(t, 2, 3)
	job, err := ns.prepare(t)
	require.NoError(t, err)
	assert.Equal(t, generation.Ready, job.Outcome)
	assert.Zero(t, ns.prepares.Load())
}

func TestNextoUnrecognizedStatus(t *testing.T) {
	ns := newNextoServer(t, 9)
	job, err := ns.prepare(t)
	assert.ErrorIs(t, err, errs.ErrGenerationFailed)
	assert.Equal(t, generation.Failed, job.Outcome)
	assert.Contains(t, job.Reason, "unrecognized status 9")
}

func TestNextoUnrecognizedStatusWhilePolling(t *testing.T) {
	ns := newNextoServer(t, 2, 9)
	job, err := ns.prepare(t)
	assert.ErrorIs(t, err, errs.ErrGenerationFailed)
	assert.Equal(t, generation.Failed, job.Outcome)
	assert.Equal(t, "unrecognized status 9", job.Reason)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, int32(2), ns.calls.Load())
}

func TestNextoNeverReady(t *testing.T) {
	ns := newNextoServer(t, 2)
	job, err := ns.prepare(t)
	assert.ErrorIs(t, err, errs.ErrGenerationExhausted)
	assert.Equal(t, nextoAttempts, job.Attempts)
}

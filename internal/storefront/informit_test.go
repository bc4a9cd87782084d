package storefront

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/errs"
	"github.com/handiism/bookshelf-downloader/internal/generation"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const informitShelf = `<html><body>
<dl class="rFull">
  <dt>The Go Programming Language</dt>
  <dd class="productState">
    <a href="javascript:regen('The Go Programming Language', '9780134190440', '2417', 'x', 'epub')">EPUB</a>
    <a href="javascript:regen('The Go Programming Language', '9780134190440', '2417', 'x', 'epub')">EPUB again</a>
    <a href="/account/download/pdf.aspx?isbn=9780134190440">PDF</a>
  </dd>
</dl>
<dl class="rFull">
  <dt></dt>
  <dd class="productState"><a href="/account/download/pdf.aspx?isbn=1">PDF</a></dd>
</dl>
</body></html>`

func TestParseInformitShelf(t *testing.T) {
	page, err := parseInformitShelf(informitShelf, "https://www.informit.com/account/home.aspx")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.Next)

	item := page.Items[0]
	assert.Equal(t, "The Go Programming Language", item.Title)
	assert.Equal(t, "9780134190440", item.ID)
	require.Len(t, item.Formats, 2)

	epub := item.Formats[0]
	assert.Equal(t, "epub", epub.Tag)
	assert.False(t, epub.Ready)
	assert.Equal(t, map[string]string{"isbn": "9780134190440", "nid": "2417"}, epub.Params)

	pdf := item.Formats[1]
	assert.Equal(t, "pdf", pdf.Tag)
	assert.True(t, pdf.Ready)
	assert.Equal(t, "https://www.informit.com/account/download/pdf.aspx?isbn=9780134190440", pdf.DownloadURL)
}

func TestParseInformitResult(t *testing.T) {
	r, err := parseInformitResult([]byte(`<Result><RequestSuccess>True</RequestSuccess><GenerationCompleted>False</GenerationCompleted></Result>`))
	require.NoError(t, err)
	assert.True(t, r.accepted())
	assert.False(t, r.completed())

	_, err = parseInformitResult([]byte("<Result>"))
	assert.Error(t, err)
}

type informitServer struct {
	srv      *httptest.Server
	accepted bool
	doneAt   int32
	posts    atomic.Int32
}

func newInformitServer(t *testing.T, accepted bool, doneAt int32) *informitServer {
	t.Helper()
	is := &informitServer{accepted: accepted, doneAt: doneAt}
	is.srv = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, nethttp.MethodPost, r.Method)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		_ = r.ParseForm()
		assert.Equal(t, "9780134190440", r.PostForm.Get("isbn13"))
		assert.Equal(t, "2417", r.PostForm.Get("nid"))
		assert.Equal(t, "epub", r.PostForm.Get("format"))

		n := is.posts.Add(1)
		fmt.Fprintf(w, "<Result><RequestSuccess>%s</RequestSuccess><GenerationCompleted>%s</GenerationCompleted></Result>",
			xmlBool(is.accepted), xmlBool(is.doneAt > 0 && n >= is.doneAt))
	}))
	t.Cleanup(is.srv.Close)
	return is
}

func xmlBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func informitEpub() (*model.Item, *model.Format) {
	return &model.Item{Title: "The Go Programming Language"},
		&model.Format{Tag: "epub", Params: map[string]string{"isbn": "9780134190440", "nid": "2417"}}
}

func TestInformitGeneration(t *testing.T) {
	is := newInformitServer(t, true, 4)
	sf, err := NewInformit(account("informit", is.srv.URL, map[string]string{
		"not_logged_in": "/login.aspx", "login_form": "/login.aspx", "login": "/login.aspx",
		"shelf": "/home.aspx", "generate": "/regen", "download": "/get/_fileFormat_.aspx?isbn=_isbn_&nid=_nid_",
	}), config.DefaultSettings())
	require.NoError(t, err)

	env, rec := testEnv(t, nil)
	item, format := informitEpub()
	job, err := sf.Generation.Prepare(context.Background(), env, item, format)
	require.NoError(t, err)
	assert.Equal(t, generation.Ready, job.Outcome)
	// one trigger post, then polls until the fourth post reports completion
	assert.Equal(t, int32(4), is.posts.Load())
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, rec.Waits())

	link, err := sf.DownloadURL(item, format)
	require.NoError(t, err)
	assert.Equal(t, is.srv.URL+"/get/epub.aspx?isbn=9780134190440&nid=2417", link)
}

func TestInformitGenerationRejected(t *testing.T) {
	is := newInformitServer(t, false, 0)
	env, _ := testEnv(t, nil)
	item, format := informitEpub()

	job, err := informitGenerator{generateURL: is.srv.URL}.Prepare(context.Background(), env, item, format)
	assert.ErrorIs(t, err, errs.ErrGenerationFailed)
	assert.Equal(t, generation.Failed, job.Outcome)
	assert.Contains(t, job.Reason, "request rejected")
	assert.Equal(t, int32(1), is.posts.Load())
}

func TestInformitGenerationExhausted(t *testing.T) {
	is := newInformitServer(t, true, 0)
	env, _ := testEnv(t, nil)
	item, format := informitEpub()

	job, err := informitGenerator{generateURL: is.srv.URL}.Prepare(context.Background(), env, item, format)
	assert.ErrorIs(t, err, errs.ErrGenerationExhausted)
	assert.Equal(t, informitAttempts, job.Attempts)
	assert.Equal(t, int32(informitAttempts+1), is.posts.Load())
}

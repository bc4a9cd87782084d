package download

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/handiism/bookshelf-downloader/internal/auth"
	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/errs"
	"github.com/handiism/bookshelf-downloader/internal/generation"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
	"github.com/handiism/bookshelf-downloader/internal/storefront"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fileBody = "%PDF-1.4 not really a book"

// fakeStore is a cookie storefront with a poll-based generation endpoint.
// Every endpoint counts its calls.
type fakeStore struct {
	srv *httptest.Server

	password    string
	statuses    []string
	headSize    int64
	maxAttempts int
	pages       map[string]storefront.Page

	logins   atomic.Int32
	triggers atomic.Int32
	polls    atomic.Int32
	fetches  atomic.Int32
	heads    atomic.Int32
	shelves  atomic.Int32
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	fs := &fakeStore{password: "secret", statuses: []string{"ready"}, headSize: -1, maxAttempts: 5}
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/shelf", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if c, err := r.Cookie("sid"); err != nil || c.Value != "ok" {
			nethttp.Redirect(w, r, "/login", nethttp.StatusFound)
			return
		}
		fs.shelves.Add(1)
		fmt.Fprint(w, "shelf")
	})
	mux.HandleFunc("/login", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			fmt.Fprint(w, "<form></form>")
			return
		}
		fs.logins.Add(1)
		_ = r.ParseForm()
		if r.PostForm.Get("password") == fs.password {
			nethttp.SetCookie(w, &nethttp.Cookie{Name: "sid", Value: "ok", Path: "/", MaxAge: 3600})
		}
		fmt.Fprint(w, "welcome")
	})
	mux.HandleFunc("/trigger", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fs.triggers.Add(1)
	})
	mux.HandleFunc("/status", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		n := int(fs.polls.Add(1)) - 1
		fmt.Fprint(w, fs.statuses[min(n, len(fs.statuses)-1)])
	})
	mux.HandleFunc("/file/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			fs.heads.Add(1)
			if fs.headSize >= 0 {
				w.Header().Set("Content-Length", fmt.Sprint(fs.headSize))
			}
			return
		}
		fs.fetches.Add(1)
		if strings.HasSuffix(r.URL.Path, "/broken") {
			nethttp.Error(w, "gone", nethttp.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, fileBody)
	})
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeStore) shelfURL() string { return fs.srv.URL + "/shelf" }

// setItems puts items on the first shelf page.
func (fs *fakeStore) setItems(items ...*model.Item) {
	fs.pages = map[string]storefront.Page{fs.shelfURL(): {Items: items}}
}

type fakeGenerator struct{ fs *fakeStore }

func (g fakeGenerator) Prepare(ctx context.Context, env *storefront.Env, _ *model.Item, f *model.Format) (*generation.Job, error) {
	poller := generation.NewPoller(env.Clock, g.fs.maxAttempts, pacing.Constant{Every: 5 * time.Second}, env.Logger)
	return generation.Run(ctx, poller, f.Tag, f.Ready, generation.Adapter[string]{
		Trigger: func(ctx context.Context) error {
			_, err := env.Session.GetBytes(ctx, g.fs.srv.URL+"/trigger")
			return err
		},
		Poll: func(ctx context.Context) ([]byte, error) {
			return env.Session.GetBytes(ctx, g.fs.srv.URL+"/status")
		},
		Decode: func(body []byte) (string, error) { return string(body), nil },
		Ready:  func(s string) bool { return s == "ready" },
	})
}

func (fs *fakeStore) factory(acct config.Account, settings *config.Settings) (*storefront.Storefront, error) {
	return &storefront.Storefront{
		Name:     acct.Storefront,
		ShelfURL: fs.shelfURL(),
		Checker:  auth.RedirectCheck{ShelfURL: fs.shelfURL(), Marker: "/login"},
		Login: auth.FormLogin{
			FormURL:   fs.srv.URL + "/login",
			SubmitURL: fs.srv.URL + "/login",
			FormDelay: settings.LoginFormDelay,
			Fields: func(c auth.Credentials, _ string) (url.Values, error) {
				return url.Values{"email": {c.Login}, "password": {c.Password}}, nil
			},
		},
		Catalog: storefront.CatalogFunc(func(_, pageURL string) (storefront.Page, error) {
			page, ok := fs.pages[pageURL]
			if !ok {
				return storefront.Page{}, fmt.Errorf("unexpected page %s", pageURL)
			}
			return page, nil
		}),
		Generation:  fakeGenerator{fs: fs},
		DownloadURL: storefront.TemplateDownloadURL(fs.srv.URL + "/file/_id_/_fileFormat_"),
	}, nil
}

type harness struct {
	settings *config.Settings
	runner   *Runner
	rec      *pacing.Recorder

	mu     sync.Mutex
	events []ProgressEvent
}

func newHarness(t *testing.T, fs *fakeStore) *harness {
	t.Helper()
	settings := config.DefaultSettings()
	settings.BooksDir = t.TempDir()
	settings.CookiesDir = t.TempDir()
	settings.PageDelay = 0
	settings.DownloadDelay = 0
	settings.LoginFormDelay = 0
	settings.SaveCoverArt = false
	settings.MaxFileSize = 500 << 20

	registry, err := storefront.NewRegistry()
	require.NoError(t, err)
	registry.Register("fake", fs.factory)

	h := &harness{settings: settings, rec: &pacing.Recorder{}}
	clock := pacing.NewClockWith(h.rec.Sleep, func(int64) int64 { return 0 })
	h.runner = NewRunner(settings, registry, h.record, WithClock(clock))
	return h
}

func (h *harness) record(e ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *harness) messages(level ProgressLevel) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

func (h *harness) account(password string) config.Account {
	return config.Account{Storefront: "fake", Login: "jan@example.com", Password: password}
}

func book(formats ...*model.Format) *model.Item {
	return &model.Item{
		Title:   "Lalka",
		Authors: []string{"Bolesław Prus"},
		IDs:     map[string]string{"id": "42"},
		Formats: formats,
	}
}

func TestRun_ScenarioA_ReadyFormat(t *testing.T) {
	fs := newFakeStore(t)
	fs.setItems(book(&model.Format{Tag: "pdf", Ready: true}))
	h := newHarness(t, fs)

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)

	assert.Zero(t, fs.triggers.Load())
	assert.Zero(t, fs.polls.Load())
	assert.Equal(t, int32(1), fs.fetches.Load())
	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, int64(len(fileBody)), report.Bytes)

	target := model.NewTarget(h.settings.BooksDir, "Lalka", "Bolesław Prus", "pdf")
	data, err := os.ReadFile(target.Path)
	require.NoError(t, err)
	assert.Equal(t, fileBody, string(data))

	received, formats := h.runner.GetProgress()
	assert.Equal(t, int64(len(fileBody)), received)
	assert.Equal(t, int32(1), formats)
}

func TestRun_ScenarioB_ReadyAfterTwoPolls(t *testing.T) {
	fs := newFakeStore(t)
	fs.statuses = []string{"queued", "processing", "ready"}
	fs.setItems(book(&model.Format{Tag: "epub"}))
	h := newHarness(t, fs)

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), fs.triggers.Load())
	assert.Equal(t, int32(3), fs.polls.Load())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, h.rec.Waits())
	assert.Equal(t, int32(1), fs.fetches.Load())
	assert.Equal(t, 1, report.Downloaded)
}

func TestRun_ScenarioC_Exhausted(t *testing.T) {
	fs := newFakeStore(t)
	fs.statuses = []string{"queued"}
	fs.setItems(book(&model.Format{Tag: "epub"}))
	h := newHarness(t, fs)

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err, "a failed format does not abort the account")

	assert.Equal(t, int32(5), fs.polls.Load())
	assert.Zero(t, fs.fetches.Load())
	assert.Equal(t, 1, report.Failed)

	errorsLogged := h.messages(LevelError)
	require.Len(t, errorsLogged, 1)
	assert.Contains(t, errorsLogged[0], "Lalka")
	assert.Contains(t, errorsLogged[0], "5 attempts")
}

func TestRun_ScenarioD_SizeRejected(t *testing.T) {
	fs := newFakeStore(t)
	fs.headSize = 600 << 20
	fs.setItems(book(&model.Format{Tag: "mp3", Ext: "zip", Ready: true, ProbeSize: true}))
	h := newHarness(t, fs)

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)

	link := fs.srv.URL + "/file/42/mp3"
	assert.Equal(t, int32(1), fs.heads.Load())
	assert.Zero(t, fs.fetches.Load())
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, []string{link}, report.RejectedLinks)

	warnings := h.messages(LevelWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], link)

	target := model.NewTarget(h.settings.BooksDir, "Lalka", "Bolesław Prus", "zip")
	assert.NoFileExists(t, target.Path)
}

func TestRun_ProbedSizeWithinLimit(t *testing.T) {
	fs := newFakeStore(t)
	fs.headSize = int64(len(fileBody))
	fs.setItems(book(&model.Format{Tag: "pdf", Ready: true, ProbeSize: true}))
	h := newHarness(t, fs)

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), fs.heads.Load())
	assert.Equal(t, int32(1), fs.fetches.Load())
	assert.Equal(t, 1, report.Downloaded)
}

func TestRun_ScenarioE_ExistingFileSkipped(t *testing.T) {
	fs := newFakeStore(t)
	fs.statuses = []string{"queued", "ready"}
	fs.setItems(book(&model.Format{Tag: "epub", ProbeSize: true}))
	h := newHarness(t, fs)

	target := model.NewTarget(h.settings.BooksDir, "Lalka", "Bolesław Prus", "epub")
	require.NoError(t, os.MkdirAll(target.Dir, 0o755))
	require.NoError(t, os.WriteFile(target.Path, []byte("already here"), 0o644))

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)

	assert.Zero(t, fs.triggers.Load())
	assert.Zero(t, fs.polls.Load())
	assert.Zero(t, fs.heads.Load())
	assert.Zero(t, fs.fetches.Load())
	assert.Equal(t, 1, report.Skipped)
}

func TestRun_SecondRunReusesSessionAndFiles(t *testing.T) {
	fs := newFakeStore(t)
	fs.setItems(book(&model.Format{Tag: "pdf", Ready: true}, &model.Format{Tag: "epub", Ready: true}))
	h := newHarness(t, fs)

	_, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), fs.logins.Load())
	assert.Equal(t, int32(2), fs.fetches.Load())

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), fs.logins.Load(), "persisted cookies skip the login POST")
	assert.Equal(t, int32(2), fs.fetches.Load(), "existing files are not fetched again")
	assert.Equal(t, 2, report.Skipped)
}

func TestRun_FormatFailureDoesNotStopSiblings(t *testing.T) {
	fs := newFakeStore(t)
	broken := book(&model.Format{Tag: "pdf", Ready: true, DownloadURL: fs.srv.URL + "/file/broken"})
	good := &model.Item{
		Title:   "Faraon",
		Authors: []string{"Bolesław Prus"},
		IDs:     map[string]string{"id": "43"},
		Formats: []*model.Format{{Tag: "epub", Ready: true}},
	}
	fs.setItems(broken, good)
	h := newHarness(t, fs)

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Downloaded)

	target := model.NewTarget(h.settings.BooksDir, "Lalka", "Bolesław Prus", "pdf")
	assert.NoFileExists(t, target.Path)

	errorsLogged := h.messages(LevelError)
	require.Len(t, errorsLogged, 1)
	assert.Contains(t, errorsLogged[0], "Lalka")
}

func TestRun_FollowsPagesOnce(t *testing.T) {
	fs := newFakeStore(t)
	page2 := fs.shelfURL() + "?page=2"
	page3 := fs.shelfURL() + "?page=3"
	item := func(id string) *model.Item {
		return &model.Item{Title: "Book " + id, IDs: map[string]string{"id": id},
			Formats: []*model.Format{{Tag: "pdf", Ready: true}}}
	}
	fs.pages = map[string]storefront.Page{
		fs.shelfURL(): {Items: []*model.Item{item("1")}, Next: []string{page2, page3, page2}},
		page2:         {Items: []*model.Item{item("2")}, Next: []string{fs.shelfURL(), page3}},
		page3:         {Items: []*model.Item{item("3")}},
	}
	h := newHarness(t, fs)
	h.settings.PageDelay = time.Second

	report, err := h.runner.Run(context.Background(), h.account("secret"))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Downloaded)
	assert.Equal(t, int32(3), fs.shelves.Load(), "entry check plus two extra pages")
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, h.rec.Waits())
}

func TestRun_WrongPasswordAbortsAccount(t *testing.T) {
	fs := newFakeStore(t)
	fs.setItems(book(&model.Format{Tag: "pdf", Ready: true}))
	h := newHarness(t, fs)

	report, err := h.runner.Run(context.Background(), h.account("wrong"))
	assert.ErrorIs(t, err, errs.ErrAuthentication)
	assert.ErrorIs(t, report.Err, errs.ErrAuthentication)
	assert.Zero(t, fs.fetches.Load())
}

func TestRunAll_ContinuesAfterFailedAccount(t *testing.T) {
	fs := newFakeStore(t)
	fs.setItems(book(&model.Format{Tag: "pdf", Ready: true}))
	h := newHarness(t, fs)

	accounts := []config.Account{
		h.account("wrong"),
		{Storefront: "nowhere", Login: "x@example.com"},
		{Storefront: "fake", Login: "ola@example.com", Password: "secret"},
	}
	reports, err := h.runner.RunAll(context.Background(), accounts)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrAuthentication)
	assert.ErrorIs(t, err, errs.ErrUnknownStorefront)

	require.Len(t, reports, 3)
	assert.Error(t, reports[0].Err)
	assert.Error(t, reports[1].Err)
	assert.NoError(t, reports[2].Err)
	assert.Equal(t, 1, reports[2].Downloaded)
}

func TestRun_Cancelled(t *testing.T) {
	fs := newFakeStore(t)
	fs.statuses = []string{"queued"}
	fs.setItems(book(&model.Format{Tag: "epub"}))
	h := newHarness(t, fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.runner.Run(ctx, h.account("secret"))
	assert.ErrorIs(t, err, context.Canceled)
}

package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/handiism/bookshelf-downloader/internal/audio"
	"github.com/handiism/bookshelf-downloader/internal/auth"
	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/errs"
	"github.com/handiism/bookshelf-downloader/internal/http"
	ioutils "github.com/handiism/bookshelf-downloader/internal/io"
	"github.com/handiism/bookshelf-downloader/internal/model"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
	"github.com/handiism/bookshelf-downloader/internal/storefront"
	"go.uber.org/zap"
)

// Runner drives accounts end to end: session, login, catalog pages, and
// for each format generation, gate and fetch.
//
// Work inside one account is strictly sequential. Failures of a single item
// or format are reported as events and never abort the account.
type Runner struct {
	settings *config.Settings
	registry *storefront.Registry
	clock    *pacing.Clock
	logger   *zap.Logger
	tagger   *audio.Tagger
	gate     Gate

	receivedBytes   atomic.Int64
	processedFormat atomic.Int32

	onProgress func(ProgressEvent)
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the pacing clock.
func WithClock(c *pacing.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTagger replaces the ID3 tagger.
func WithTagger(t *audio.Tagger) Option {
	return func(r *Runner) { r.tagger = t }
}

// NewRunner creates a Runner. onProgress may be nil.
func NewRunner(settings *config.Settings, registry *storefront.Registry, onProgress func(ProgressEvent), opts ...Option) *Runner {
	r := &Runner{
		settings:   settings,
		registry:   registry,
		clock:      pacing.NewClock(),
		logger:     zap.NewNop(),
		tagger:     audio.NewTagger(audio.DefaultTagConfig()),
		gate:       Gate{MaxFileSize: settings.MaxFileSize},
		onProgress: onProgress,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetProgress returns bytes received and formats processed so far.
func (r *Runner) GetProgress() (received int64, formats int32) {
	return r.receivedBytes.Load(), r.processedFormat.Load()
}

// RunAll runs accounts one after another. A failing account does not stop
// the batch; the returned error joins every account error.
func (r *Runner) RunAll(ctx context.Context, accounts []config.Account) ([]*Report, error) {
	reports := make([]*Report, 0, len(accounts))
	var errList []error
	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			errList = append(errList, err)
			break
		}
		report, err := r.Run(ctx, acct)
		reports = append(reports, report)
		if err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", acct.DisplayName(), err))
		}
	}
	return reports, errors.Join(errList...)
}

// Run processes one account. The error is non-nil only when the account
// was aborted: unknown storefront, failed login, or an unreadable first
// shelf page.
func (r *Runner) Run(ctx context.Context, acct config.Account) (*Report, error) {
	report := &Report{Account: acct.DisplayName(), Storefront: acct.Storefront}
	abort := func(err error) (*Report, error) {
		report.Err = err
		r.progress(ProgressEvent{Message: fmt.Sprintf("Account %s aborted: %v", report.Account, err), Level: LevelError})
		return report, err
	}

	sf, err := r.registry.Build(acct, r.settings)
	if err != nil {
		return abort(err)
	}

	logger := r.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("storefront", sf.Name),
		zap.String("login", acct.Login),
	)

	session, err := http.NewSession(r.settings.JarPath(acct), http.Options{
		UserAgent: r.settings.UserAgent,
		Timeout:   r.settings.HTTPTimeout,
		Charset:   sf.Charset,
		Logger:    logger,
	})
	if err != nil {
		return abort(err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing session", zap.Error(err))
		}
	}()

	env := &storefront.Env{Session: session, Clock: r.clock, Logger: logger, RequestDelay: r.settings.PageDelay}

	r.progress(ProgressEvent{Message: fmt.Sprintf("Checking session of %s on %s", acct.Login, sf.Name), Level: LevelVerbose})
	flow := &auth.Flow{
		Session:     session,
		Clock:       r.clock,
		Checker:     sf.Checker,
		Strategy:    sf.Login,
		Credentials: auth.Credentials{Login: acct.Login, Password: acct.Password},
		Storefront:  sf.Name,
		Logger:      logger,
	}
	body, err := flow.Authenticate(ctx)
	if err != nil {
		return abort(err)
	}
	r.progress(ProgressEvent{Message: fmt.Sprintf("Logged in as %s on %s", acct.Login, sf.Name), Level: LevelInfo})

	page, err := sf.Catalog.ReadPage(ctx, env, body, sf.ShelfURL)
	if err != nil {
		return abort(fmt.Errorf("%w: %w", errs.ErrCatalog, err))
	}

	visited := map[string]bool{sf.ShelfURL: true}
	queue := page.Next
	if err := r.processItems(ctx, env, sf, page.Items, report); err != nil {
		return abort(err)
	}

	for i := 0; i < len(queue); i++ {
		pageURL := queue[i]
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		if err := r.clock.Delay(ctx, r.settings.PageDelay); err != nil {
			return abort(err)
		}
		r.progress(ProgressEvent{Message: fmt.Sprintf("Reading shelf page %s", pageURL), Level: LevelVerbose})

		body, err := session.GetString(ctx, pageURL)
		if err == nil {
			page, err = sf.Catalog.ReadPage(ctx, env, body, pageURL)
		}
		if err != nil {
			if ctx.Err() != nil {
				return abort(ctx.Err())
			}
			r.progress(ProgressEvent{Message: fmt.Sprintf("Error reading shelf page %s: %v", pageURL, err), Level: LevelError})
			continue
		}

		queue = append(queue, page.Next...)
		if err := r.processItems(ctx, env, sf, page.Items, report); err != nil {
			return abort(err)
		}
	}

	r.progress(ProgressEvent{Message: report.Summary(), Level: LevelSuccess})
	return report, nil
}

// itemState carries per-item data shared by its formats.
type itemState struct {
	item    *model.Item
	cover   []byte
	fetched bool
}

// processItems returns an error only when ctx is done.
func (r *Runner) processItems(ctx context.Context, env *storefront.Env, sf *storefront.Storefront, items []*model.Item, report *Report) error {
	for _, item := range items {
		if len(item.Formats) == 0 {
			r.progress(ProgressEvent{Message: fmt.Sprintf("No downloadable formats for %s", item.DisplayName()), Level: LevelWarning})
			continue
		}
		state := &itemState{item: item}
		for _, f := range item.Formats {
			if err := r.processFormat(ctx, env, sf, state, f, report); err != nil {
				return err
			}
			r.processedFormat.Add(1)
		}
	}
	return nil
}

// processFormat runs one format through generation, gate and fetch. Only
// context cancellation is returned; everything else becomes an event.
func (r *Runner) processFormat(ctx context.Context, env *storefront.Env, sf *storefront.Storefront, state *itemState, f *model.Format, report *Report) error {
	item := state.item
	target := model.TargetFor(r.settings.BooksDir, item, f)
	name := item.DisplayName()

	fail := func(format string, args ...any) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Failed++
		r.progress(ProgressEvent{Message: fmt.Sprintf(format, args...), Level: LevelError})
		return nil
	}

	decision, err := r.gate.Local(target)
	if err != nil {
		return fail("Error checking %s: %v", target.Path, err)
	}
	if decision == Skip {
		report.Skipped++
		r.progress(ProgressEvent{Message: fmt.Sprintf("Skipping existing: %s", target.Name), Level: LevelVerbose})
		return nil
	}

	if sf.Generation != nil && !f.Ready {
		r.progress(ProgressEvent{Message: fmt.Sprintf("Preparing %s file for %s", f.Tag, name), Level: LevelInfo})
		job, err := sf.Generation.Prepare(ctx, env, item, f)
		if err != nil {
			return fail("Could not prepare %s file for %s: %v", f.Tag, name, err)
		}
		env.Logger.Debug("format ready", zap.String("format", f.Tag), zap.Int("attempts", job.Attempts))
	}

	link, err := sf.DownloadURL(item, f)
	if err != nil {
		return fail("No download link for %s file of %s: %v", f.Tag, name, err)
	}

	if f.ProbeSize {
		size, err := env.Session.ContentLength(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			env.Logger.Debug("size probe failed", zap.String("url", link), zap.Error(err))
			size = -1
		}
		if r.gate.Remote(size) == Reject {
			report.Rejected++
			report.RejectedLinks = append(report.RejectedLinks, link)
			rejected := &RejectedError{URL: link, Size: size, Limit: r.gate.MaxFileSize}
			r.progress(ProgressEvent{Message: fmt.Sprintf("Skipping %s file of %s: %v", f.Tag, name, rejected), Level: LevelWarning})
			return nil
		}
	}

	if err := r.clock.Delay(ctx, r.settings.DownloadDelay); err != nil {
		return err
	}
	r.progress(ProgressEvent{Message: fmt.Sprintf("Downloading %s file for %s", f.Tag, name), Level: LevelInfo})

	var last int64
	n, err := env.Session.DownloadFile(ctx, link, target.Path, func(written, _ int64) {
		r.receivedBytes.Add(written - last)
		last = written
	})
	if err != nil {
		r.receivedBytes.Add(-last)
		return fail("Error downloading %s file for %s: %v", f.Tag, name, fmt.Errorf("%w: %w", errs.ErrDownload, err))
	}

	report.Downloaded++
	report.Bytes += n
	r.progress(ProgressEvent{Message: fmt.Sprintf("Downloaded: %s", target.Name), Level: LevelSuccess})

	cover := r.cover(ctx, env, state, target)
	if r.settings.TagAudio && f.Extension() == "mp3" {
		if err := r.tagger.SaveTags(target.Path, item, cover); err != nil {
			r.progress(ProgressEvent{Message: fmt.Sprintf("Error tagging %s: %v", target.Name, err), Level: LevelWarning})
		}
	}
	return nil
}

// cover returns the item cover as JPEG, saving it as cover.jpg next to the
// downloaded files. It is fetched at most once per item and never fails the
// format.
func (r *Runner) cover(ctx context.Context, env *storefront.Env, state *itemState, target model.Target) []byte {
	if !r.settings.SaveCoverArt || state.item.CoverURL == "" {
		return nil
	}
	if state.fetched {
		return state.cover
	}
	state.fetched = true

	path := target.CoverPath()
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		state.cover = data
		return data
	}

	raw, err := env.Session.GetBytes(ctx, state.item.CoverURL)
	if err != nil {
		r.progress(ProgressEvent{Message: fmt.Sprintf("Error downloading cover of %s: %v", state.item.Title, err), Level: LevelWarning})
		return nil
	}
	data, err := ioutils.FitJPEG(raw, r.settings.CoverArtMaxSize)
	if err != nil {
		r.progress(ProgressEvent{Message: fmt.Sprintf("Error converting cover of %s: %v", state.item.Title, err), Level: LevelWarning})
		return nil
	}
	if err := ioutils.WriteFileAtomic(path, data); err != nil {
		r.progress(ProgressEvent{Message: fmt.Sprintf("Error saving cover of %s: %v", state.item.Title, err), Level: LevelWarning})
	}
	state.cover = data
	return data
}

func (r *Runner) progress(event ProgressEvent) {
	if r.onProgress != nil {
		r.onProgress(event)
	}
}

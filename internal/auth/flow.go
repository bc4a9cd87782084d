package auth

import (
	"context"
	"fmt"

	"github.com/handiism/bookshelf-downloader/internal/errs"
	"github.com/handiism/bookshelf-downloader/internal/http"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
	"go.uber.org/zap"
)

// State is the authentication state of a Flow.
type State int

const (
	// Unauthenticated is the initial state.
	Unauthenticated State = iota

	// Authenticated is reached only after a successful check.
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Error reports a login that did not produce an authenticated session.
type Error struct {
	Login      string
	Storefront string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on %s: %v", e.Login, e.Storefront, e.Err)
	}
	return fmt.Sprintf("%s on %s: still logged out after login", e.Login, e.Storefront)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{errs.ErrAuthentication, e.Err}
	}
	return []error{errs.ErrAuthentication}
}

// Flow drives one account from Unauthenticated to Authenticated.
//
// The check runs first; when the persisted session is still valid no
// credentials are submitted at all.
type Flow struct {
	Session     *http.Session
	Clock       *pacing.Clock
	Checker     Checker
	Strategy    Strategy
	Credentials Credentials
	Storefront  string
	Logger      *zap.Logger

	state State
}

// State returns the current state.
func (f *Flow) State() State {
	return f.state
}

// Authenticate ensures the session is logged in and returns the body of
// the page fetched by the final check.
func (f *Flow) Authenticate(ctx context.Context) (string, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := f.Clock
	if clock == nil {
		clock = pacing.NewClock()
	}

	body, ok, err := f.Checker.Check(ctx, f.Session)
	if err != nil {
		return "", f.fail(err)
	}
	if ok {
		logger.Debug("reusing persisted session")
		f.state = Authenticated
		return body, nil
	}

	logger.Info("logging in")
	if err := f.Strategy.Login(ctx, f.Session, clock, f.Credentials); err != nil {
		return "", f.fail(err)
	}

	body, ok, err = f.Checker.Check(ctx, f.Session)
	if err != nil {
		return "", f.fail(err)
	}
	if !ok {
		return "", f.fail(nil)
	}

	f.state = Authenticated
	return body, nil
}

func (f *Flow) fail(err error) error {
	f.state = Unauthenticated
	return &Error{Login: f.Credentials.Login, Storefront: f.Storefront, Err: err}
}

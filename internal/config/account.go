package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/handiism/bookshelf-downloader/internal/errs"
	ioutils "github.com/handiism/bookshelf-downloader/internal/io"
)

// Account is one storefront login.
//
// URLs overrides the storefront's built-in URL templates by key. Viper
// lowercases map keys, so URL keys are lowercase snake_case.
type Account struct {
	Storefront   string            `mapstructure:"storefront"`
	Login        string            `mapstructure:"login"`
	Password     string            `mapstructure:"password"`
	PasswordEnv  string            `mapstructure:"password_env"`
	Name         string            `mapstructure:"name"`
	ItemsPerPage int               `mapstructure:"items_per_page"`
	URLs         map[string]string `mapstructure:"urls"`
}

// DisplayName returns Name, or Login when no name is set.
func (a Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Login
}

// SessionKey identifies the account's persisted session file.
//
// Example:
//
//	Account{Login: "jan@example.com", Storefront: "woblink"}.SessionKey()
//	// "jan-example.com.woblink"
func (a Account) SessionKey() string {
	login := strings.ReplaceAll(a.Login, "@", "-")
	return ioutils.SanitizeFileName(login + "." + a.Storefront)
}

// URL returns the URL template stored under key.
func (a Account) URL(key string) (string, error) {
	u, ok := a.URLs[key]
	if !ok || u == "" {
		return "", fmt.Errorf("%w: %s needs %q", errs.ErrMissingURL, a.Storefront, key)
	}
	return u, nil
}

// WithURLDefaults returns a copy whose URLs are defaults overridden by the
// account's own entries.
func (a Account) WithURLDefaults(defaults map[string]string) Account {
	merged := make(map[string]string, len(defaults)+len(a.URLs))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range a.URLs {
		merged[strings.ToLower(k)] = v
	}
	a.URLs = merged
	return a
}

func (a *Account) resolvePassword() {
	if a.PasswordEnv == "" {
		return
	}
	if v := os.Getenv(a.PasswordEnv); v != "" {
		a.Password = v
	}
}

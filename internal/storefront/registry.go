package storefront

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/errs"
	"github.com/pelletier/go-toml/v2"
)

//go:embed defaults.toml
var defaultsTOML []byte

// Factory builds a Storefront for one account. The account URLs already
// include the built-in defaults.
type Factory func(acct config.Account, settings *config.Settings) (*Storefront, error)

type definition struct {
	URLs map[string]string `toml:"urls"`
}

// Registry maps storefront names to factories and default URL templates.
type Registry struct {
	factories map[string]Factory
	defaults  map[string]map[string]string
}

// NewRegistry creates an empty registry with the built-in URL templates loaded.
func NewRegistry() (*Registry, error) {
	var defs map[string]definition
	if err := toml.Unmarshal(defaultsTOML, &defs); err != nil {
		return nil, fmt.Errorf("parsing defaults.toml: %w", err)
	}

	r := &Registry{
		factories: map[string]Factory{},
		defaults:  map[string]map[string]string{},
	}
	for name, def := range defs {
		r.defaults[name] = def.URLs
	}
	return r, nil
}

// Default returns a registry with every built-in storefront.
func Default() (*Registry, error) {
	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	r.Register("woblink", NewWoblink)
	r.Register("nexto", NewNexto)
	r.Register("ebookpoint", NewEbookpoint)
	r.Register("publio", NewPublio)
	r.Register("informit", NewInformit)
	return r, nil
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names lists registered storefronts in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultURLs returns a copy of the built-in URL templates of a storefront.
func (r *Registry) DefaultURLs(name string) map[string]string {
	out := make(map[string]string, len(r.defaults[name]))
	for k, v := range r.defaults[name] {
		out[k] = v
	}
	return out
}

// Build creates the Storefront of an account.
func (r *Registry) Build(acct config.Account, settings *config.Settings) (*Storefront, error) {
	f, ok := r.factories[acct.Storefront]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownStorefront, acct.Storefront)
	}
	return f(acct.WithURLDefaults(r.defaults[acct.Storefront]), settings)
}

// urls fetches required URL templates from an account.
func urls(acct config.Account, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		u, err := acct.URL(k)
		if err != nil {
			return nil, err
		}
		out[k] = u
	}
	return out, nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BOOKSHELF_BOOKS_DIR.
const EnvPrefix = "BOOKSHELF"

// DefaultMaxFileSize is the largest file downloaded without manual action.
const DefaultMaxFileSize int64 = 500 * 1024 * 1024

// Settings holds all configuration options.
//
// Settings is built once at process start and passed by parameter; nothing
// in the application reads configuration from globals.
type Settings struct {
	// Storage
	BooksDir   string `mapstructure:"books_dir"`
	CookiesDir string `mapstructure:"cookies_dir"`

	// Download gate
	MaxFileSize int64 `mapstructure:"max_file_size"`

	// HTTP and pacing
	UserAgent      string        `mapstructure:"user_agent"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	PageDelay      time.Duration `mapstructure:"page_delay"`
	DownloadDelay  time.Duration `mapstructure:"download_delay"`
	LoginFormDelay time.Duration `mapstructure:"login_form_delay"`

	// Post-processing
	SaveCoverArt    bool `mapstructure:"save_cover_art"`
	CoverArtMaxSize int  `mapstructure:"cover_art_max_size"`
	TagAudio        bool `mapstructure:"tag_audio"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	Accounts []Account `mapstructure:"accounts"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		BooksDir:    filepath.Join(homeDir, "Books"),
		CookiesDir:  filepath.Join(homeDir, ".config", "bookshelf-downloader", "cookies"),
		MaxFileSize: DefaultMaxFileSize,

		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
		HTTPTimeout:    60 * time.Second,
		PageDelay:      1 * time.Second,
		DownloadDelay:  2 * time.Second,
		LoginFormDelay: 3 * time.Second,

		SaveCoverArt:    true,
		CoverArtMaxSize: 1000,
		TagAudio:        true,

		LogLevel: "info",
	}
}

// DefaultPath returns ~/.config/bookshelf-downloader/config.toml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "bookshelf-downloader", "config.toml")
}

// Load reads settings from a TOML file.
//
// An empty path searches ~/.config/bookshelf-downloader and the working
// directory for config.toml; a missing file yields the defaults. Scalar
// settings can be overridden with BOOKSHELF_* environment variables.
// Account passwords named by password_env are resolved here.
func Load(path string) (*Settings, error) {
	v := viper.New()

	defaults := DefaultSettings()
	v.SetDefault("books_dir", defaults.BooksDir)
	v.SetDefault("cookies_dir", defaults.CookiesDir)
	v.SetDefault("max_file_size", defaults.MaxFileSize)
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("http_timeout", defaults.HTTPTimeout)
	v.SetDefault("page_delay", defaults.PageDelay)
	v.SetDefault("download_delay", defaults.DownloadDelay)
	v.SetDefault("login_form_delay", defaults.LoginFormDelay)
	v.SetDefault("save_cover_art", defaults.SaveCoverArt)
	v.SetDefault("cover_art_max_size", defaults.CoverArtMaxSize)
	v.SetDefault("tag_audio", defaults.TagAudio)
	v.SetDefault("log_level", defaults.LogLevel)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	settings.BooksDir = expandPath(settings.BooksDir)
	settings.CookiesDir = expandPath(settings.CookiesDir)
	for i := range settings.Accounts {
		settings.Accounts[i].resolvePassword()
	}

	return &settings, nil
}

// JarPath returns the persisted session file of an account.
func (s *Settings) JarPath(a Account) string {
	return filepath.Join(s.CookiesDir, a.SessionKey()+".cookies.db")
}

// FindAccount returns the first account whose login, name or session key
// matches.
func (s *Settings) FindAccount(key string) (Account, bool) {
	for _, a := range s.Accounts {
		if a.Login == key || a.SessionKey() == key || (a.Name != "" && a.Name == key) {
			return a, true
		}
	}
	return Account{}, false
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// fileSettings is the TOML layout written by Save. Durations are strings for readability.
type fileSettings struct {
	BooksDir        string        `toml:"books_dir"`
	CookiesDir      string        `toml:"cookies_dir"`
	MaxFileSize     int64         `toml:"max_file_size"`
	UserAgent       string        `toml:"user_agent"`
	HTTPTimeout     string        `toml:"http_timeout"`
	PageDelay       string        `toml:"page_delay"`
	DownloadDelay   string        `toml:"download_delay"`
	LoginFormDelay  string        `toml:"login_form_delay"`
	SaveCoverArt    bool          `toml:"save_cover_art"`
	CoverArtMaxSize int           `toml:"cover_art_max_size"`
	TagAudio        bool          `toml:"tag_audio"`
	LogLevel        string        `toml:"log_level"`
	Accounts        []fileAccount `toml:"accounts"`
}

type fileAccount struct {
	Storefront   string            `toml:"storefront"`
	Login        string            `toml:"login"`
	Password     string            `toml:"password,omitempty"`
	PasswordEnv  string            `toml:"password_env,omitempty"`
	Name         string            `toml:"name,omitempty"`
	ItemsPerPage int               `toml:"items_per_page,omitempty"`
	URLs         map[string]string `toml:"urls,omitempty"`
}

// Save writes settings to a TOML file.
//
// Passwords that came from password_env are not written back.
func (s *Settings) Save(path string) error {
	out := fileSettings{
		BooksDir:        s.BooksDir,
		CookiesDir:      s.CookiesDir,
		MaxFileSize:     s.MaxFileSize,
		UserAgent:       s.UserAgent,
		HTTPTimeout:     s.HTTPTimeout.String(),
		PageDelay:       s.PageDelay.String(),
		DownloadDelay:   s.DownloadDelay.String(),
		LoginFormDelay:  s.LoginFormDelay.String(),
		SaveCoverArt:    s.SaveCoverArt,
		CoverArtMaxSize: s.CoverArtMaxSize,
		TagAudio:        s.TagAudio,
		LogLevel:        s.LogLevel,
	}
	for _, a := range s.Accounts {
		fa := fileAccount{
			Storefront:   a.Storefront,
			Login:        a.Login,
			PasswordEnv:  a.PasswordEnv,
			Name:         a.Name,
			ItemsPerPage: a.ItemsPerPage,
			URLs:         a.URLs,
		}
		if a.PasswordEnv == "" {
			fa.Password = a.Password
		}
		out.Accounts = append(out.Accounts, fa)
	}

	data, err := toml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// GenerateDefault writes the default settings with one example account to path.
func GenerateDefault(path string) error {
	s := DefaultSettings()
	s.Accounts = []Account{{
		Storefront:  "woblink",
		Login:       "reader@example.com",
		PasswordEnv: "WOBLINK_PASSWORD",
		Name:        "example",
	}}
	return s.Save(path)
}

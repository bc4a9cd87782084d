// Package config provides configuration management for bookshelf-downloader.
//
// This package handles:
//   - Loading settings and accounts from TOML with viper
//   - Default configuration values and default file generation
//   - Session file naming per account
//   - URL template expansion
//
// # Loading
//
//	settings, err := config.Load("") // ~/.config/bookshelf-downloader/config.toml
//	for _, acct := range settings.Accounts {
//	    fmt.Println(acct.DisplayName(), settings.JarPath(acct))
//	}
//
// A minimal file:
//
//	books_dir = "~/Books"
//	max_file_size = 524288000
//
//	[[accounts]]
//	storefront = "nexto"
//	login = "jan@example.com"
//	password_env = "NEXTO_PASSWORD"
//
// # URL Templates
//
//	u, err := config.Expand(acct.URLs["download"], item.Vars(format))
package config

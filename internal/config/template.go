package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/handiism/bookshelf-downloader/internal/errs"
)

// placeholderPattern matches _name_ tokens. Templates must not contain other
// underscore-delimited words.
var placeholderPattern = regexp.MustCompile(`_([a-z][a-zA-Z0-9]*)_`)

// Expand replaces every _name_ token in template with vars[name].
//
// Expand is pure: it never reads configuration or the environment. Every
// token must have a value; a missing one is reported with
// errs.ErrUnknownPlaceholder rather than left in the URL.
//
// Example:
//
//	Expand("https://example.com/book/_bookId_/_fileFormat_", map[string]string{
//	    "bookId": "42", "fileFormat": "epub",
//	})
//	// "https://example.com/book/42/epub"
func Expand(template string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return token
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s in %q", errs.ErrUnknownPlaceholder, strings.Join(missing, ", "), template)
	}
	return out, nil
}

// Placeholders lists the token names used by template, in order of appearance.
func Placeholders(template string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}

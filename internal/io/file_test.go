package ioutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Lalka", want: "Lalka"},
		{name: "separators", input: "Book: Part 1/2", want: "Book_ Part 1_2"},
		{name: "backslash and pipes", input: `a\b|c`, want: "a_b_c"},
		{name: "trailing dots", input: "Volume...", want: "Volume"},
		{name: "whitespace runs", input: "Name   with \t spaces", want: "Name with spaces"},
		{name: "scraped line breaks", input: "Solaris\r\n    Wydanie II", want: "Solaris Wydanie II"},
		{name: "leading and trailing space", input: "  padded  ", want: "padded"},
		{name: "control characters", input: "a\x00b\x1fc\x7f", want: "a_b_c_"},
		{name: "dot", input: ".", want: "untitled"},
		{name: "dot dot", input: "..", want: "untitled"},
		{name: "empty", input: "", want: "untitled"},
		{name: "unicode kept", input: "Zażółć gęślą jaźń", want: "Zażółć gęślą jaźń"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.input))
		})
	}
}

func TestSanitizeFileName_Idempotent(t *testing.T) {
	inputs := []string{
		"Book: Part 1/2",
		"  . trailing . . ",
		"a" + strings.Repeat("ż", MaxNameLength) + ". ",
		strings.Repeat("x", MaxNameLength-1) + " .y",
		"../../etc/passwd",
		"\x00\x01",
		"Title - Author",
	}

	for _, in := range inputs {
		once := SanitizeFileName(in)
		assert.Equal(t, once, SanitizeFileName(once), "input %q", in)
		assert.NotContains(t, once, "/")
		assert.NotContains(t, once, `\`)
		assert.NotEqual(t, ".", once)
		assert.NotEqual(t, "..", once)
		assert.LessOrEqual(t, utf8.RuneCountInString(once), MaxNameLength)
	}
}

func TestNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.pdf")
	full := filepath.Join(dir, "full.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.NoError(t, os.WriteFile(full, []byte("content"), 0o644))

	present, _, err := NonEmptyFile(filepath.Join(dir, "missing.pdf"))
	require.NoError(t, err)
	assert.False(t, present)

	present, _, err = NonEmptyFile(empty)
	require.NoError(t, err)
	assert.False(t, present)

	present, size, err := NonEmptyFile(full)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, int64(7), size)

	_, _, err = NonEmptyFile(dir)
	assert.Error(t, err)
}

func TestAtomicFile_CommitAndAbort(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "book.epub")

	f, err := CreateAtomic(dest)
	require.NoError(t, err)
	_, err = f.Write([]byte("partial"))
	require.NoError(t, err)
	f.Abort()

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be removed")

	require.NoError(t, WriteFileAtomic(dest, []byte("complete")))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "complete", string(data))
}

// Package books resolves book text for summarization slices.
package books

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Library serves book text from a directory of plain-text files. The book ID
// is the file name without extension; .txt and .md are tried in that order.
type Library struct {
	dir string
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Slice returns the book's text over the half-open rune range [lo, hi),
// clamped to the book's bounds.
func (l *Library) Slice(ctx context.Context, bookID string,
	lo, hi int) (string, error) {

	text, err := l.read(bookID)
	if err != nil {
		return "", err
	}

	runes := []rune(text)
	if lo < 0 {
		lo = 0
	}
	if hi > len(runes) {
		hi = len(runes)
	}
	if lo >= hi {
		return "", nil
	}

	return string(runes[lo:hi]), nil
}

// read loads the book's full text.
func (l *Library) read(bookID string) (string, error) {
	// Book IDs come from conversation keys; keep them from escaping the
	// library directory.
	if strings.ContainsAny(bookID, `/\`) || bookID == "" {
		return "", fmt.Errorf("invalid book id %q", bookID)
	}

	for _, ext := range []string{".txt", ".md"} {
		path := filepath.Join(l.dir, bookID+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read book %s: %w", bookID, err)
		}
	}

	return "", fmt.Errorf("book %q not found in %s", bookID, l.dir)
}

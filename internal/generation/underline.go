package generation

import (
	"strings"
	"unicode"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// UnderlinePrefix tags a reply line that asks the reader UI to highlight a
// passage of the upcoming text.
const UnderlinePrefix = "UNDERLINE:"

// Range is a half-open character-offset range [Start, End) into an excerpt.
type Range struct {
	Start int
	End   int
}

// ExtractUnderline removes underline directive lines from the reply text and
// returns the remaining text plus the first directive's payload, if any. At
// most one directive is honored; extra ones are dropped with it.
func ExtractUnderline(text string) (string, fn.Option[string]) {
	directive := fn.None[string]()

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, UnderlinePrefix) {
			kept = append(kept, line)
			continue
		}

		payload := strings.TrimSpace(
			strings.TrimPrefix(trimmed, UnderlinePrefix),
		)
		if payload != "" && directive.IsNone() {
			directive = fn.Some(payload)
		}
	}

	return strings.Join(kept, "\n"), directive
}

// ResolveUnderline locates the directive text inside the read-ahead excerpt
// using a case- and whitespace-insensitive longest-suffix containment match:
// the full directive is searched first, then progressively shorter suffixes
// of it, and the first hit wins. The returned range is in the excerpt's rune
// offsets. None means resolution failed; callers drop that silently.
func ResolveUnderline(directive, excerpt string) fn.Option[Range] {
	exChars, exOffsets := foldForMatch(excerpt)
	dirChars, _ := foldForMatch(directive)

	if len(exChars) == 0 || len(dirChars) == 0 {
		return fn.None[Range]()
	}

	haystack := string(exChars)
	for start := 0; start < len(dirChars); start++ {
		needle := string(dirChars[start:])
		idx := strings.Index(haystack, needle)
		if idx < 0 {
			continue
		}

		// Index is in bytes of the folded string; convert back to a
		// folded rune index before mapping to excerpt offsets.
		runeIdx := len([]rune(haystack[:idx]))
		matchLen := len(dirChars) - start

		return fn.Some(Range{
			Start: exOffsets[runeIdx],
			End:   exOffsets[runeIdx+matchLen-1] + 1,
		})
	}

	return fn.None[Range]()
}

// foldForMatch lowercases the text and drops all whitespace, returning the
// folded runes plus a map from folded index back to the original rune
// offset.
func foldForMatch(text string) ([]rune, []int) {
	var (
		chars   []rune
		offsets []int
	)
	for i, r := range []rune(text) {
		if unicode.IsSpace(r) {
			continue
		}
		chars = append(chars, unicode.ToLower(r))
		offsets = append(offsets, i)
	}
	return chars, offsets
}

// Package cards holds the summary card record set and its pure algebra:
// normalization, aggregation, and the lossless merge that collapses several
// cards into one. Persistence of the resulting slices is delegated to the
// storage layer.
package cards

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Card is one produced summary covering the half-open range [Start, End)
// over either message-index space (chat summaries) or character-offset
// space (book summaries).
type Card struct {
	// ID is the unique card identifier.
	ID string

	// Content is the summary text, trimmed and non-empty once
	// normalized.
	Content string

	// Start and End bound the covered range. Start <= End after
	// normalization.
	Start int
	End   int

	// CreatedAt and UpdatedAt are set on insert and edit respectively.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Normalize applies the store's invariants to every card: start/end are
// swapped if inverted, content is trimmed, empty-content cards are dropped,
// and missing timestamps default to now. The input is not mutated.
func Normalize(in []Card, now time.Time) []Card {
	out := make([]Card, 0, len(in))
	for _, c := range in {
		c.Content = strings.TrimSpace(c.Content)
		if c.Content == "" {
			continue
		}

		if c.Start > c.End {
			c.Start, c.End = c.End, c.Start
		}

		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = c.CreatedAt
		}

		out = append(out, c)
	}

	return out
}

// Sorted returns the cards ordered by (start, end, createdAt) ascending,
// the order every consumer reads them in.
func Sorted(in []Card) []Card {
	out := make([]Card, len(in))
	copy(out, in)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

// Aggregate concatenates the sorted cards' contents into the aggregate
// prefix summary, joined by newline.
func Aggregate(in []Card) string {
	var parts []string
	for _, c := range Sorted(in) {
		content := strings.TrimSpace(c.Content)
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n")
}

// Merge collapses the cards named by ids into a single card covering
// [min(start), max(end)] whose content is the selected contents in sorted
// order joined by a blank line. It requires at least two distinct resolvable
// ids and non-empty merged content; otherwise it returns (nil, false) and
// the caller keeps the original set. Non-selected cards pass through
// unchanged; the merged card replaces the selected ones at the end of the
// returned slice. Merge is a pure function of its inputs.
func Merge(in []Card, ids []string, now time.Time) ([]Card, bool) {
	selected := make(map[string]struct{})
	for _, id := range ids {
		selected[id] = struct{}{}
	}

	var picked, rest []Card
	for _, c := range in {
		if _, ok := selected[c.ID]; ok {
			picked = append(picked, c)
		} else {
			rest = append(rest, c)
		}
	}

	if len(picked) < 2 {
		return nil, false
	}

	start, end := picked[0].Start, picked[0].End
	var contents []string
	for _, c := range Sorted(picked) {
		if c.Start < start {
			start = c.Start
		}
		if c.End > end {
			end = c.End
		}
		if content := strings.TrimSpace(c.Content); content != "" {
			contents = append(contents, content)
		}
	}

	merged := Card{
		ID:        uuid.New().String(),
		Content:   strings.TrimSpace(strings.Join(contents, "\n\n")),
		Start:     start,
		End:       end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if merged.Content == "" {
		return nil, false
	}

	return append(rest, merged), true
}

// Edit replaces the named card's fields and re-runs normalization before the
// result is considered committed. Unknown ids leave the set unchanged.
func Edit(in []Card, id, content string, start, end int,
	now time.Time) []Card {

	out := make([]Card, len(in))
	copy(out, in)
	for i := range out {
		if out[i].ID != id {
			continue
		}
		out[i].Content = content
		out[i].Start = start
		out[i].End = end
		out[i].UpdatedAt = now
		break
	}

	return Normalize(out, now)
}

// Delete removes the named card and re-runs normalization.
func Delete(in []Card, id string, now time.Time) []Card {
	out := make([]Card, 0, len(in))
	for _, c := range in {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return Normalize(out, now)
}

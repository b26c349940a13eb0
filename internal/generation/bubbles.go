package generation

import (
	"regexp"
	"strings"
)

// BubbleDelimiter is the explicit separator a model may emit between chat
// bubbles. It takes precedence over every other splitting strategy.
const BubbleDelimiter = "|||"

// enumPrefix matches the leading enumeration a model tends to prepend when
// asked for multiple lines ("1. ", "2) ", "- ", and friends).
var enumPrefix = regexp.MustCompile(`^\s*(?:\d+\s*[.)、:：]|[-*•])\s*`)

// sentenceEnd matches sentence-final punctuation, including CJK forms.
var sentenceEnd = regexp.MustCompile(`[^.!?。！？…]+[.!?。！？…]*`)

// NormalizeBubbleLines parses raw model output into between minCount and
// maxCount non-empty trimmed bubbles. Splitting strategies are applied in
// order until the minimum is satisfied: explicit delimiters, one line per
// bubble with enumeration stripped, punctuation resplitting of the whole
// text, fixed-size chunking, and finally padding by repeating the first
// bubble. Output over the maximum is truncated silently. An empty input
// yields nil.
func NormalizeBubbleLines(text string, minCount, maxCount int) []string {
	if minCount < 1 {
		minCount = 1
	}
	if maxCount < minCount {
		maxCount = minCount
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	bubbles := splitDelimited(text)
	if len(bubbles) < minCount {
		bubbles = splitLines(text)
	}
	if len(bubbles) < minCount {
		bubbles = splitSentences(text)
	}
	if len(bubbles) < minCount {
		bubbles = splitChunks(text, minCount)
	}

	// Pad short output by repeating the first bubble.
	for len(bubbles) > 0 && len(bubbles) < minCount {
		bubbles = append(bubbles, bubbles[0])
	}

	if len(bubbles) > maxCount {
		bubbles = bubbles[:maxCount]
	}

	return bubbles
}

// splitDelimited splits on the explicit bubble delimiter. Returns nil when
// the text carries no delimiter at all.
func splitDelimited(text string) []string {
	if !strings.Contains(text, BubbleDelimiter) {
		return nil
	}
	return compact(strings.Split(text, BubbleDelimiter))
}

// splitLines treats each line as one bubble, stripping leading enumeration.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = enumPrefix.ReplaceAllString(line, "")
	}
	return compact(lines)
}

// splitSentences resplits the whole text on sentence-final punctuation.
func splitSentences(text string) []string {
	flat := strings.Join(strings.Fields(text), " ")
	return compact(sentenceEnd.FindAllString(flat, -1))
}

// splitChunks cuts the text into count roughly equal rune chunks as a last
// resort.
func splitChunks(text string, count int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if count > len(runes) {
		count = len(runes)
	}

	size := (len(runes) + count - 1) / count
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}

	return compact(out)
}

// compact trims each entry and drops empties.
func compact(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

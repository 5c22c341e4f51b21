// Package textwrap breaks text into lines that fit a pixel width.
package textwrap

import "strings"

// MeasureFunc returns the rendered width of s in pixels.
type MeasureFunc func(s string) int

// Wrap greedily packs the space-delimited words of text into lines whose
// measured width stays within maxWidth. A word wider than maxWidth on its own
// is never split and ends up alone on its line.
func Wrap(text string, measure MeasureFunc, maxWidth int) []string {
	words := strings.Fields(text)
	lines := make([]string, 0, len(words))

	line := ""
	for _, word := range words {
		candidate := line + word + " "
		if line == "" || measure(candidate) <= maxWidth {
			line = candidate
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
		line = word + " "
	}
	if line != "" {
		lines = append(lines, strings.TrimSpace(line))
	}

	return lines
}

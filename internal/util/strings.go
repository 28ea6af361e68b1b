// Package util provides small text helpers shared by the command line output
// and the pipeline.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Ellipsis marks truncated text.
const Ellipsis = "…"

// OneLine collapses every run of whitespace, newlines included, into a
// single space.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most maxRunes runes, ending truncated text with
// Ellipsis. A maxRunes below 1 returns the empty string.
func Truncate(s string, maxRunes int) string {
	if maxRunes < 1 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes-1]) + Ellipsis
}

// TruncateWidth shortens s to maxWidth terminal columns. Escape sequences
// and wide characters are accounted for, so styled text stays intact.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, Ellipsis)
}

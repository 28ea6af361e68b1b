package util

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestOneLine(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"multi\nline\ttext", "multi line text"},
		{"a   b", "a b"},
	}
	for _, tt := range tests {
		if got := OneLine(tt.input); got != tt.expected {
			t.Errorf("OneLine(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxRunes int
		expected string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello w…"},
		{"one rune keeps only the ellipsis", "hello", 1, "…"},
		{"zero returns empty", "hello", 0, ""},
		{"negative returns empty", "hello", -1, ""},
		{"runes are not split", "héllo wörld", 4, "hél…"},
		{"empty input", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.maxRunes); got != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.expected)
			}
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := TruncateWidth("hello", 10); got != "hello" {
		t.Errorf("TruncateWidth short = %q", got)
	}
	if got := TruncateWidth("hello", 0); got != "" {
		t.Errorf("TruncateWidth zero = %q", got)
	}

	got := TruncateWidth("hello world", 6)
	if w := lipgloss.Width(got); w > 6 {
		t.Errorf("TruncateWidth width = %d, want <= 6 (%q)", w, got)
	}

	styled := lipgloss.NewStyle().Bold(true).Render("styled text here")
	got = TruncateWidth(styled, 8)
	if w := lipgloss.Width(got); w > 8 {
		t.Errorf("TruncateWidth styled width = %d, want <= 8", w)
	}
}

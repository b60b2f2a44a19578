package cmd

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncate(t *testing.T) {
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	tests := []struct {
		name     string
		input    string
		maxWidth int
		want     string // Empty means only the width is checked
	}{
		{name: "short uri unchanged", input: "../a.mjs", maxWidth: 20, want: "../a.mjs"},
		{name: "long uri cut", input: "../widgets/clock.mjs?nonce=abc", maxWidth: 12, want: "../widget..."},
		{name: "tiny width", input: "../a.mjs", maxWidth: 3, want: "..."},
		{name: "negative width", input: "../a.mjs", maxWidth: -1, want: "..."},
		{name: "wide characters", input: "日本語テスト", maxWidth: 7},
		{name: "styled input", input: red.Render("initialization rejected"), maxWidth: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxWidth)
			if tt.want != "" && got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxWidth, got, tt.want)
			}
			if tt.maxWidth > 3 && lipgloss.Width(got) > tt.maxWidth {
				t.Errorf("truncate(%q, %d) width = %d", tt.input, tt.maxWidth, lipgloss.Width(got))
			}
		})
	}
}

func TestPad(t *testing.T) {
	if got := pad("ab", 5); got != "ab   " {
		t.Errorf("pad(ab, 5) = %q", got)
	}
	if got := pad("abcdef", 3); got != "abcdef" {
		t.Errorf("pad should not cut, got %q", got)
	}
	styled := pad(headerStyle.Render("KEY"), 6)
	if lipgloss.Width(styled) != 6 || !strings.Contains(styled, "KEY") {
		t.Errorf("pad on styled text = %q (width %d)", styled, lipgloss.Width(styled))
	}
}

func TestStyleOutcome(t *testing.T) {
	for _, outcome := range []string{outcomeInitialized, outcomeFailed, outcomeAbandoned, "unknown"} {
		if got := styleOutcome(outcome); !strings.Contains(got, outcome) {
			t.Errorf("styleOutcome(%q) = %q, lost its label", outcome, got)
		}
	}
}

// Package tui renders the live processing view shown while a pipeline run
// is in flight.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TermTheme holds all color values for a TUI theme.
type TermTheme struct {
	Name string

	// Brand
	Accent    lipgloss.Color
	AccentDim lipgloss.Color

	// Semantic
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	// Text
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Dim       lipgloss.Color

	// Surfaces
	Border lipgloss.Color
}

// DarkTheme is the default dark terminal theme.
var DarkTheme = TermTheme{
	Name:      "dark",
	Accent:    lipgloss.Color("#2dd4bf"),
	AccentDim: lipgloss.Color("#0f766e"),
	Success:   lipgloss.Color("#22c55e"),
	Warning:   lipgloss.Color("#eab308"),
	Error:     lipgloss.Color("#ef4444"),
	Primary:   lipgloss.Color("#e0e0e8"),
	Secondary: lipgloss.Color("#888888"),
	Dim:       lipgloss.Color("#5a5a70"),
	Border:    lipgloss.Color("#2a2a3a"),
}

// LightTheme is the light terminal theme.
var LightTheme = TermTheme{
	Name:      "light",
	Accent:    lipgloss.Color("#0f766e"),
	AccentDim: lipgloss.Color("#134e4a"),
	Success:   lipgloss.Color("#15803d"),
	Warning:   lipgloss.Color("#a16207"),
	Error:     lipgloss.Color("#b91c1c"),
	Primary:   lipgloss.Color("#0f172a"),
	Secondary: lipgloss.Color("#374151"),
	Dim:       lipgloss.Color("#4b5563"),
	Border:    lipgloss.Color("#d1d5db"),
}

// DetectTheme returns the appropriate theme based on flag, env, or detection.
func DetectTheme(flagVal string) TermTheme {
	switch strings.ToLower(flagVal) {
	case "dark":
		return DarkTheme
	case "light":
		return LightTheme
	}

	if env := os.Getenv("LIDARCH_THEME"); env != "" {
		switch strings.ToLower(env) {
		case "dark":
			return DarkTheme
		case "light":
			return LightTheme
		}
	}

	// COLORFGBG heuristic (format: "fg;bg")
	if colorfgbg := os.Getenv("COLORFGBG"); colorfgbg != "" {
		parts := strings.Split(colorfgbg, ";")
		if len(parts) >= 2 {
			bg := parts[len(parts)-1]
			if bg == "15" || bg == "7" {
				return LightTheme
			}
		}
	}

	return DarkTheme
}

// StyleSet contains pre-computed lipgloss styles derived from a theme.
type StyleSet struct {
	Theme TermTheme

	Title        lipgloss.Style
	Subtitle     lipgloss.Style
	AccentTxt    lipgloss.Style
	DimTxt       lipgloss.Style
	SuccessTxt   lipgloss.Style
	WarningTxt   lipgloss.Style
	ErrorTxt     lipgloss.Style
	PrimaryTxt   lipgloss.Style
	SecondaryTxt lipgloss.Style

	BorderedBox lipgloss.Style

	KbdKey  lipgloss.Style
	KbdDesc lipgloss.Style
}

// NewStyleSet creates a StyleSet from a theme.
func NewStyleSet(theme TermTheme) *StyleSet {
	return &StyleSet{
		Theme: theme,

		Title:        lipgloss.NewStyle().Foreground(theme.Accent).Bold(true),
		Subtitle:     lipgloss.NewStyle().Foreground(theme.Secondary),
		AccentTxt:    lipgloss.NewStyle().Foreground(theme.Accent),
		DimTxt:       lipgloss.NewStyle().Foreground(theme.Dim),
		SuccessTxt:   lipgloss.NewStyle().Foreground(theme.Success),
		WarningTxt:   lipgloss.NewStyle().Foreground(theme.Warning),
		ErrorTxt:     lipgloss.NewStyle().Foreground(theme.Error),
		PrimaryTxt:   lipgloss.NewStyle().Foreground(theme.Primary),
		SecondaryTxt: lipgloss.NewStyle().Foreground(theme.Secondary),

		BorderedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		KbdKey: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Background(theme.Dim).
			Padding(0, 1),
		KbdDesc: lipgloss.NewStyle().
			Foreground(theme.Dim),
	}
}

// Package ui provides terminal styling for nf CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/novelflow/internal/types"
)

// Ayu theme color palette
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

const (
	TreeChild  = "⎿ "
	TreeLast   = "└─ "
	TreeIndent = "  "
)

const SeparatorLight = "──────────────────────────────────────────"

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a section header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

func RenderPassIcon() string { return PassStyle.Render(IconPass) }
func RenderWarnIcon() string { return WarnStyle.Render(IconWarn) }
func RenderFailIcon() string { return FailStyle.Render(IconFail) }
func RenderSkipIcon() string { return MutedStyle.Render(IconSkip) }
func RenderInfoIcon() string { return AccentStyle.Render(IconInfo) }

// RenderStatus colors a workflow status by how far along the lifecycle it is.
// Terminal statuses are green, editorial ones yellow, early ones muted.
func RenderStatus(s types.Status) string {
	switch s {
	case types.StatusCompleted, types.StatusPublished:
		return PassStyle.Render(string(s))
	case types.StatusReviewing, types.StatusEditing:
		return WarnStyle.Render(string(s))
	case types.StatusWriting:
		return AccentStyle.Render(string(s))
	default:
		return MutedStyle.Render(string(s))
	}
}

// RenderSeverity colors an issue severity.
func RenderSeverity(s types.Severity) string {
	switch s {
	case types.SeverityHigh:
		return FailStyle.Render(string(s))
	case types.SeverityMedium:
		return WarnStyle.Render(string(s))
	default:
		return MutedStyle.Render(string(s))
	}
}

// RenderTransition renders "from → to" with both ends colored.
func RenderTransition(from, to types.Status) string {
	return fmt.Sprintf("%s → %s", RenderStatus(from), RenderStatus(to))
}

// RenderCheck renders an allowed/refused verdict icon.
func RenderCheck(allowed bool) string {
	if allowed {
		return RenderPassIcon()
	}
	return RenderFailIcon()
}

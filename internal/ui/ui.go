// Package ui provides the terminal rendering helpers used by command
// output.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))  // blue
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")) // gray
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

// RenderPass styles text for successful outcomes.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderFail styles text for failures.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderWarn styles text for warnings.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderAccent styles text for emphasis.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderMuted styles secondary text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderBold styles headings.
func RenderBold(s string) string { return boldStyle.Render(s) }

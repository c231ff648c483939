// Package cli renders the harness's terminal output: the batch summary
// printed at the end of a run. It has no dependency on application logic —
// RunBatch's BatchSummary is a plain struct, so this package only formats it.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/evalharness/evalharness/internal/application"
)

var (
	colorCyan   = lipgloss.Color("#00D7FF")
	colorGray   = lipgloss.Color("#6C6C6C")
	colorGreen  = lipgloss.Color("#00FF87")
	colorYellow = lipgloss.Color("#FFD75F")
	colorRed    = lipgloss.Color("#FF5F5F")
)

// RenderSummary formats a BatchSummary as the boxed terminal report printed
// after a batch finishes.
func RenderSummary(model string, s application.BatchSummary) string {
	titleStyle := lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	okStyle := lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	failStyle := lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(fmt.Sprintf("evalharness — %s", model)))
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("total:"), s.Total)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("full success:"), okStyle.Render(fmt.Sprintf("%d", s.FullSuccess)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("partial:"), warnStyle.Render(fmt.Sprintf("%d", s.Partial)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("failure:"), failStyle.Render(fmt.Sprintf("%d", s.Failure)))
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("skipped (resumed):"), s.Skipped)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("throttle drops:"), s.ThrottleDrop)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("errors:"), s.Errors)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorCyan).
		Padding(0, 1)
	return box.Render(strings.TrimRight(b.String(), "\n"))
}

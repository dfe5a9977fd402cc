package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/atomik-io/pipeline/internal/stage"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Report renders a run result as a human-readable status table.
func Report(result *RunResult) string {
	var b strings.Builder

	header := fmt.Sprintf("Pipeline %s", result.RunID[:8])
	if result.Success {
		header += "  " + successStyle.Render("PASSED")
	} else {
		header += "  " + failedStyle.Render("FAILED")
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s tokens in %s",
		humanize.Comma(int64(result.TotalTokens)), result.Duration.Round(time.Millisecond))))
	b.WriteString("\n\n")

	names := make([]string, 0, len(result.Manifests))
	width := len("stage")
	for name := range result.Manifests {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Strings(names)

	b.WriteString(fmt.Sprintf("%-*s  %-8s  %10s  %8s\n", width, "stage", "status", "tokens", "time"))
	for _, name := range names {
		m := result.Manifests[name]
		b.WriteString(fmt.Sprintf("%-*s  %s  %10s  %8s\n",
			width, name,
			statusCell(m.Status),
			humanize.Comma(int64(m.TokensConsumed)),
			m.Duration.Round(time.Millisecond).String(),
		))
	}

	if len(result.CriticalPath) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("critical path: " + strings.Join(result.CriticalPath, " -> ")))
		b.WriteString("\n")
	}

	eff := result.Efficiency
	if eff.Limit > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("budget: %s used, %s remaining",
			humanize.Comma(int64(eff.TotalConsumed)), humanize.Comma(int64(eff.Remaining)))))
		b.WriteString("\n")
	}
	if eff.StagesRecorded > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("local execution: %.0f%% of stages", eff.LocalStagePct)))
		b.WriteString("\n")
	}

	return b.String()
}

func statusCell(s stage.Status) string {
	padded := fmt.Sprintf("%-8s", s)
	switch s {
	case stage.StatusSuccess:
		return successStyle.Render(padded)
	case stage.StatusFailed:
		return failedStyle.Render(padded)
	case stage.StatusSkipped:
		return skippedStyle.Render(padded)
	default:
		return padded
	}
}

// Package report provides Markdown report generation.
package report

import (
	"fmt"
	"io"
)

// MarkdownGenerator generates Markdown reports.
type MarkdownGenerator struct {
	IncludeDetails bool
}

// Generate generates a Markdown report.
func (g *MarkdownGenerator) Generate(report *Report, w io.Writer) error {
	fmt.Fprintf(w, "# %s\n\n", report.Title)
	if report.Description != "" {
		fmt.Fprintf(w, "%s\n\n", report.Description)
	}
	fmt.Fprintf(w, "Source: `%s`  \n", report.SourceLabel)
	fmt.Fprintf(w, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(w, "## Summary\n\n")
	fmt.Fprintf(w, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(w, "| Processed | %d |\n", report.Statistics.DocumentsProcessed)
	fmt.Fprintf(w, "| Skipped | %d |\n", report.Statistics.DocumentsSkipped)
	fmt.Fprintf(w, "| Failed | %d |\n", report.Statistics.DocumentsFailed)
	fmt.Fprintf(w, "| Fingerprints emitted | %d |\n", report.Statistics.FingerprintsEmitted)
	fmt.Fprintf(w, "| Duration | %s |\n", report.Statistics.Duration)
	fmt.Fprintf(w, "| Docs/sec | %.1f |\n\n", report.Statistics.DocsPerSecond)

	fmt.Fprintf(w, "## Failures Found\n\n")

	if len(report.Failures) == 0 {
		fmt.Fprintf(w, "No failures detected.\n")
		return nil
	}

	for kind, count := range report.KindCounts {
		if count > 0 {
			fmt.Fprintf(w, "- %s **%s**: %d\n", failureEmoji(kind), kind, count)
		}
	}
	fmt.Fprintf(w, "\n")

	for _, f := range report.Failures {
		fmt.Fprintf(w, "### %s document %d\n\n", failureEmoji(f.Kind), f.DocumentID)
		fmt.Fprintf(w, "- **Kind:** %s\n", f.Kind)
		if f.OrderID != 0 {
			fmt.Fprintf(w, "- **Order:** %d\n", f.OrderID)
		}
		if g.IncludeDetails && f.Message != "" {
			fmt.Fprintf(w, "- **Message:** `%s`\n", truncate(f.Message, 200))
		}
		fmt.Fprintf(w, "- **At:** %s\n\n", f.Timestamp.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// Extension returns the file extension.
func (g *MarkdownGenerator) Extension() string {
	return "md"
}

func failureEmoji(kind FailureKind) string {
	switch kind {
	case FailureDecode:
		return "\U0001F4C4"
	case FailureStoreWrite:
		return "\U0001F5C4"
	case FailureCache:
		return "\U0001F5C3"
	case FailureContextTimeout:
		return "⏱"
	default:
		return "❓"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

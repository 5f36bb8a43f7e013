// Package ui provides statistics display components.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds index-rebuild progress statistics.
type Stats struct {
	mu sync.RWMutex

	// Document statistics
	DocumentsProcessed int64
	DocumentsSkipped   int64
	DocumentsFailed    int64

	// Timing
	StartTime        time.Time
	LastDocumentTime time.Time

	// Fingerprint volume
	FingerprintsEmitted int64

	// Failures, by a caller-supplied bucket name (e.g. "decode", "store")
	FailuresByKind map[string]int64

	// Progress
	CurrentProgress  float64
	TotalDocuments   int64
	CompletedDocuments int64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		StartTime:      time.Now(),
		FailuresByKind: make(map[string]int64),
	}
}

// RecordDocument records the outcome of indexing one document.
func (s *Stats) RecordDocument(outcome string, fpCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastDocumentTime = time.Now()

	switch outcome {
	case "processed":
		s.DocumentsProcessed++
		s.FingerprintsEmitted += int64(fpCount)
	case "skipped":
		s.DocumentsSkipped++
	case "failed":
		s.DocumentsFailed++
	}
}

// RecordFailure records a failure under a named bucket (e.g. "decode",
// "store", "cache").
func (s *Stats) RecordFailure(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailuresByKind[kind]++
}

// UpdateProgress updates the progress against a known document total.
func (s *Stats) UpdateProgress(completed, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CompletedDocuments = completed
	s.TotalDocuments = total

	if total > 0 {
		s.CurrentProgress = float64(completed) / float64(total)
	}
}

// GetDocsPerSecond returns the current document processing rate.
func (s *Stats) GetDocsPerSecond() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed < 1 {
		return 0
	}
	return float64(s.DocumentsProcessed) / elapsed
}

// GetElapsedTime returns the elapsed time since start.
func (s *Stats) GetElapsedTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.StartTime)
}

// GetSuccessRate returns the fraction of touched documents that were
// successfully processed (not failed), as a percentage.
func (s *Stats) GetSuccessRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	touched := s.DocumentsProcessed + s.DocumentsFailed
	if touched == 0 {
		return 0
	}
	return float64(s.DocumentsProcessed) / float64(touched) * 100
}

// GetETA returns the estimated time remaining to process all documents.
func (s *Stats) GetETA() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.CompletedDocuments == 0 || s.TotalDocuments == 0 {
		return 0
	}

	elapsed := time.Since(s.StartTime)
	remaining := s.TotalDocuments - s.CompletedDocuments
	rate := float64(s.CompletedDocuments) / elapsed.Seconds()

	if rate <= 0 {
		return 0
	}

	return time.Duration(float64(remaining)/rate) * time.Second
}

// Snapshot returns a copy of current stats.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failures := make(map[string]int64, len(s.FailuresByKind))
	for k, v := range s.FailuresByKind {
		failures[k] = v
	}

	return StatsSnapshot{
		DocumentsProcessed:  s.DocumentsProcessed,
		DocumentsSkipped:    s.DocumentsSkipped,
		DocumentsFailed:     s.DocumentsFailed,
		FingerprintsEmitted: s.FingerprintsEmitted,
		FailuresByKind:      failures,
		CurrentProgress:     s.CurrentProgress,
		TotalDocuments:      s.TotalDocuments,
		CompletedDocuments:  s.CompletedDocuments,
		ElapsedTime:         time.Since(s.StartTime),
		DocsPerSecond:       s.GetDocsPerSecond(),
		SuccessRate:         s.GetSuccessRate(),
		ETA:                 s.GetETA(),
	}
}

// StatsSnapshot is an immutable snapshot of stats.
type StatsSnapshot struct {
	DocumentsProcessed  int64
	DocumentsSkipped    int64
	DocumentsFailed     int64
	FingerprintsEmitted int64
	FailuresByKind      map[string]int64
	CurrentProgress     float64
	TotalDocuments      int64
	CompletedDocuments  int64
	ElapsedTime         time.Duration
	DocsPerSecond       float64
	SuccessRate         float64
	ETA                 time.Duration
}

// StatsView renders the statistics panel.
type StatsView struct {
	width  int
	height int
}

// NewStatsView creates a new stats view.
func NewStatsView(width, height int) *StatsView {
	return &StatsView{
		width:  width,
		height: height,
	}
}

// SetSize updates the view size.
func (v *StatsView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// Render renders the stats view.
func (v *StatsView) Render(snap StatsSnapshot) string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("Rebuild"))
	b.WriteString("\n\n")

	b.WriteString(RenderLabel("Processed"))
	b.WriteString(" ")
	b.WriteString(SuccessStyle.Render(formatNumber(snap.DocumentsProcessed)))
	b.WriteString(" | ")
	b.WriteString(RenderLabel("Failed"))
	b.WriteString(" ")
	b.WriteString(ErrorStyle.Render(formatNumber(snap.DocumentsFailed)))
	b.WriteString(" | ")
	b.WriteString(RenderLabel("Skipped"))
	b.WriteString(" ")
	b.WriteString(formatNumber(snap.DocumentsSkipped))
	b.WriteString("\n")

	b.WriteString(RenderLabelValue("Success Rate", fmt.Sprintf("%.1f%%", snap.SuccessRate)))
	b.WriteString("\n\n")

	b.WriteString(HeaderStyle.Render("Throughput"))
	b.WriteString("\n\n")

	b.WriteString(RenderLabelValue("Docs/sec", fmt.Sprintf("%.1f", snap.DocsPerSecond)))
	b.WriteString("\n")
	b.WriteString(RenderLabelValue("Fingerprints", formatNumber(snap.FingerprintsEmitted)))
	b.WriteString("\n")
	b.WriteString(RenderLabelValue("Elapsed", formatDuration(snap.ElapsedTime)))
	b.WriteString("\n")
	if snap.TotalDocuments > 0 {
		b.WriteString(RenderLabelValue("ETA", formatDuration(snap.ETA)))
		b.WriteString("\n")
	}

	if len(snap.FailuresByKind) > 0 {
		b.WriteString("\n")
		b.WriteString(HeaderStyle.Render("Failures"))
		b.WriteString("\n\n")
		for kind, count := range snap.FailuresByKind {
			b.WriteString(failureKindStyle(kind).Render(fmt.Sprintf("%s: %d", kind, count)))
			b.WriteString("\n")
		}
	}

	return StatsPanelStyle.Width(v.width).Render(b.String())
}

// Helper functions

// failureKindStyle picks a color for a failure bucket name, matching the
// kind labels report.FailureKind produces ("decode", "store_write", ...).
func failureKindStyle(kind string) lipgloss.Style {
	switch kind {
	case "decode":
		return FailureDecodeStyle
	case "store_write", "cache":
		return FailureStoreStyle
	default:
		return FailureOtherStyle
	}
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// Package report generates rebuild-run reports: a summary of one
// index-builder pass over a document source, in JSON, HTML, or Markdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FailureKind classifies why a single document failed to index.
type FailureKind string

const (
	FailureDecode         FailureKind = "decode"
	FailureStoreWrite     FailureKind = "store_write"
	FailureCache          FailureKind = "cache"
	FailureContextTimeout FailureKind = "context_timeout"
	FailureOther          FailureKind = "other"
)

// FailureRecord is one document that failed during a rebuild run.
type FailureRecord struct {
	DocumentID int64       `json:"document_id"`
	OrderID    int64       `json:"order_id,omitempty"`
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Statistics holds rebuild-run statistics.
type Statistics struct {
	DocumentsProcessed  int64         `json:"documents_processed"`
	DocumentsSkipped    int64         `json:"documents_skipped"`
	DocumentsFailed     int64         `json:"documents_failed"`
	FingerprintsEmitted int64         `json:"fingerprints_emitted"`
	Duration            time.Duration `json:"duration"`
	DocsPerSecond       float64       `json:"docs_per_second"`
}

// MarshalJSON implements custom JSON marshaling for Statistics.
func (s Statistics) MarshalJSON() ([]byte, error) {
	type Alias Statistics
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(s),
		Duration: s.Duration.String(),
	})
}

// Report is a rebuild-run report.
type Report struct {
	// Metadata
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`

	// SourceLabel describes the document source this run rebuilt from
	// (e.g. a store DSN).
	SourceLabel string `json:"source_label"`

	Statistics Statistics `json:"statistics"`

	Failures []FailureRecord `json:"failures"`

	// KindCounts summarizes failures by kind.
	KindCounts map[FailureKind]int `json:"kind_counts"`
}

// NewReport creates a new report.
func NewReport(title, sourceLabel string) *Report {
	return &Report{
		Title:       title,
		Version:     "1.0",
		GeneratedAt: time.Now(),
		SourceLabel: sourceLabel,
		Failures:    make([]FailureRecord, 0),
		KindCounts:  make(map[FailureKind]int),
	}
}

// AddFailure adds a failure record to the report.
func (r *Report) AddFailure(f FailureRecord) {
	r.Failures = append(r.Failures, f)
	r.KindCounts[f.Kind]++
}

// SetStatistics sets the statistics.
func (r *Report) SetStatistics(stats Statistics) {
	stats.DocumentsFailed = int64(len(r.Failures))
	r.Statistics = stats
}

// FilterByKind returns failures of the given kind.
func (r *Report) FilterByKind(kind FailureKind) []FailureRecord {
	var filtered []FailureRecord
	for _, f := range r.Failures {
		if f.Kind == kind {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// Generator is the interface for report generators.
type Generator interface {
	Generate(report *Report, w io.Writer) error
	Extension() string
}

// Manager manages report generation.
type Manager struct {
	generators map[string]Generator
	outputDir  string
}

// NewManager creates a new report manager.
func NewManager(outputDir string) *Manager {
	m := &Manager{
		generators: make(map[string]Generator),
		outputDir:  outputDir,
	}

	m.RegisterGenerator("json", &JSONGenerator{Indent: true})
	m.RegisterGenerator("html", NewHTMLGenerator())
	m.RegisterGenerator("markdown", &MarkdownGenerator{})
	m.RegisterGenerator("md", &MarkdownGenerator{})

	return m
}

// RegisterGenerator registers a generator.
func (m *Manager) RegisterGenerator(format string, gen Generator) {
	m.generators[format] = gen
}

// GetGenerator returns a generator by format.
func (m *Manager) GetGenerator(format string) (Generator, bool) {
	gen, ok := m.generators[format]
	return gen, ok
}

// Generate generates a report in the specified format.
func (m *Manager) Generate(report *Report, format string) (string, error) {
	gen, ok := m.generators[format]
	if !ok {
		return "", fmt.Errorf("unknown report format: %s", format)
	}

	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("rebuild_%s.%s", timestamp, gen.Extension())
	filepath := filepath.Join(m.outputDir, filename)

	f, err := os.Create(filepath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := gen.Generate(report, f); err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	return filepath, nil
}

// GenerateAll generates reports in all registered formats.
func (m *Manager) GenerateAll(report *Report) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)

	for format, gen := range m.generators {
		ext := gen.Extension()
		if seen[ext] {
			continue
		}
		seen[ext] = true

		path, err := m.Generate(report, format)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// WriteToWriter generates a report and writes to the given writer.
func (m *Manager) WriteToWriter(report *Report, format string, w io.Writer) error {
	gen, ok := m.generators[format]
	if !ok {
		return fmt.Errorf("unknown report format: %s", format)
	}

	return gen.Generate(report, w)
}

package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewReport(t *testing.T) {
	r := NewReport("Test Report", "sqlite:codematch.db")

	if r == nil {
		t.Fatal("NewReport returned nil")
	}
	if r.Title != "Test Report" {
		t.Errorf("Expected title 'Test Report', got '%s'", r.Title)
	}
	if r.SourceLabel != "sqlite:codematch.db" {
		t.Errorf("Expected source label 'sqlite:codematch.db', got '%s'", r.SourceLabel)
	}
	if r.Version != "1.0" {
		t.Errorf("Expected version '1.0', got '%s'", r.Version)
	}
}

func TestReport_AddFailure(t *testing.T) {
	r := NewReport("Test", "sqlite:codematch.db")

	r.AddFailure(FailureRecord{
		DocumentID: 1,
		Kind:       FailureStoreWrite,
		Message:    "write timeout",
		Timestamp:  time.Now(),
	})

	if len(r.Failures) != 1 {
		t.Errorf("Expected 1 failure, got %d", len(r.Failures))
	}
	if r.KindCounts[FailureStoreWrite] != 1 {
		t.Errorf("Expected 1 store_write count, got %d", r.KindCounts[FailureStoreWrite])
	}
}

func TestReport_FilterByKind(t *testing.T) {
	r := NewReport("Test", "sqlite:codematch.db")

	r.AddFailure(FailureRecord{DocumentID: 1, Kind: FailureDecode})
	r.AddFailure(FailureRecord{DocumentID: 2, Kind: FailureStoreWrite})
	r.AddFailure(FailureRecord{DocumentID: 3, Kind: FailureDecode})

	decodeFailures := r.FilterByKind(FailureDecode)
	if len(decodeFailures) != 2 {
		t.Errorf("Expected 2 decode failures, got %d", len(decodeFailures))
	}

	storeFailures := r.FilterByKind(FailureStoreWrite)
	if len(storeFailures) != 1 {
		t.Errorf("Expected 1 store_write failure, got %d", len(storeFailures))
	}
}

func TestJSONGenerator(t *testing.T) {
	r := NewReport("Test Report", "sqlite:codematch.db")
	r.SetStatistics(Statistics{
		DocumentsProcessed: 1000,
		DocumentsSkipped:   50,
		Duration:           time.Minute,
		DocsPerSecond:      16.67,
	})
	r.AddFailure(FailureRecord{DocumentID: 7, Kind: FailureStoreWrite, Message: "disk full"})

	gen := &JSONGenerator{Indent: true}

	var buf bytes.Buffer
	if err := gen.Generate(r, &buf); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if parsed["title"] != "Test Report" {
		t.Errorf("Expected title 'Test Report' in JSON")
	}
}

func TestJSONGenerator_Extension(t *testing.T) {
	gen := &JSONGenerator{}
	if gen.Extension() != "json" {
		t.Errorf("Expected extension 'json', got '%s'", gen.Extension())
	}
}

func TestMarkdownGenerator(t *testing.T) {
	r := NewReport("Test Report", "sqlite:codematch.db")
	r.SetStatistics(Statistics{
		DocumentsProcessed: 1000,
		Duration:           time.Minute,
		DocsPerSecond:      16.67,
	})
	r.AddFailure(FailureRecord{
		DocumentID: 7,
		Kind:       FailureStoreWrite,
		Message:    "disk full",
		Timestamp:  time.Now(),
	})

	gen := &MarkdownGenerator{IncludeDetails: true}

	var buf bytes.Buffer
	if err := gen.Generate(r, &buf); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "# Test Report") {
		t.Error("Expected title in Markdown output")
	}
	if !strings.Contains(output, "## Summary") {
		t.Error("Expected summary section in Markdown output")
	}
	if !strings.Contains(output, "## Failures Found") {
		t.Error("Expected failures section in Markdown output")
	}
	if !strings.Contains(output, "store_write") {
		t.Error("Expected failure kind in Markdown output")
	}
}

func TestMarkdownGenerator_NoFailures(t *testing.T) {
	r := NewReport("Clean Report", "sqlite:codematch.db")

	gen := &MarkdownGenerator{}

	var buf bytes.Buffer
	if err := gen.Generate(r, &buf); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.Contains(buf.String(), "No failures detected") {
		t.Error("Expected 'No failures detected' message")
	}
}

func TestHTMLGenerator(t *testing.T) {
	r := NewReport("Test Report", "sqlite:codematch.db")
	r.SetStatistics(Statistics{
		DocumentsProcessed: 1000,
		Duration:           time.Minute,
		DocsPerSecond:      16.67,
	})
	r.AddFailure(FailureRecord{
		DocumentID: 7,
		Kind:       FailureStoreWrite,
		Message:    "disk full",
		Timestamp:  time.Now(),
	})

	gen := NewHTMLGenerator()

	var buf bytes.Buffer
	if err := gen.Generate(r, &buf); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "<!DOCTYPE html>") {
		t.Error("Expected DOCTYPE in HTML output")
	}
	if !strings.Contains(output, "<title>Test Report") {
		t.Error("Expected title in HTML output")
	}
	if !strings.Contains(output, "Statistics") {
		t.Error("Expected statistics section in HTML output")
	}
	if !strings.Contains(output, "Failures") {
		t.Error("Expected failures section in HTML output")
	}
}

func TestHTMLGenerator_Extension(t *testing.T) {
	gen := NewHTMLGenerator()
	if gen.Extension() != "html" {
		t.Errorf("Expected extension 'html', got '%s'", gen.Extension())
	}
}

func TestManager(t *testing.T) {
	tmpDir := t.TempDir()
	m := NewManager(tmpDir)

	if _, ok := m.GetGenerator("json"); !ok {
		t.Error("Expected json generator to be registered")
	}
	if _, ok := m.GetGenerator("html"); !ok {
		t.Error("Expected html generator to be registered")
	}
	if _, ok := m.GetGenerator("markdown"); !ok {
		t.Error("Expected markdown generator to be registered")
	}
}

func TestManager_Generate(t *testing.T) {
	tmpDir := t.TempDir()
	m := NewManager(tmpDir)

	r := NewReport("Test", "sqlite:codematch.db")
	r.AddFailure(FailureRecord{DocumentID: 1, Kind: FailureCache})

	path, err := m.Generate(r, "json")
	if err != nil {
		t.Fatalf("Generate JSON failed: %v", err)
	}
	if !strings.HasSuffix(path, ".json") {
		t.Errorf("Expected .json extension, got %s", path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Report file was not created: %s", path)
	}
}

func TestManager_Generate_UnknownFormat(t *testing.T) {
	tmpDir := t.TempDir()
	m := NewManager(tmpDir)

	r := NewReport("Test", "sqlite:codematch.db")

	if _, err := m.Generate(r, "unknown"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestManager_GenerateAll(t *testing.T) {
	tmpDir := t.TempDir()
	m := NewManager(tmpDir)

	r := NewReport("Test", "sqlite:codematch.db")

	paths, err := m.GenerateAll(r)
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}
	if len(paths) < 3 {
		t.Errorf("Expected at least 3 files, got %d", len(paths))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			t.Errorf("Report file was not created: %s", p)
		}
	}
}

func TestManager_WriteToWriter(t *testing.T) {
	m := NewManager("")

	r := NewReport("Test", "sqlite:codematch.db")

	var buf bytes.Buffer
	if err := m.WriteToWriter(r, "json", &buf); err != nil {
		t.Fatalf("WriteToWriter failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("Expected non-empty output")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"this is a long string", 10, "this is a ..."},
		{"exact", 5, "exact"},
	}

	for _, tt := range tests {
		if result := truncate(tt.input, tt.maxLen); result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func BenchmarkJSONGenerator(b *testing.B) {
	r := createTestReport(100)
	gen := &JSONGenerator{Indent: false}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		gen.Generate(r, &buf)
	}
}

func BenchmarkMarkdownGenerator(b *testing.B) {
	r := createTestReport(100)
	gen := &MarkdownGenerator{}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		gen.Generate(r, &buf)
	}
}

func BenchmarkHTMLGenerator(b *testing.B) {
	r := createTestReport(100)
	gen := NewHTMLGenerator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		gen.Generate(r, &buf)
	}
}

func createTestReport(numFailures int) *Report {
	r := NewReport("Benchmark Report", "sqlite:codematch.db")
	r.SetStatistics(Statistics{
		DocumentsProcessed: 10000,
		Duration:           10 * time.Minute,
		DocsPerSecond:      16.67,
	})

	kinds := []FailureKind{FailureDecode, FailureStoreWrite, FailureCache, FailureContextTimeout}

	for i := 0; i < numFailures; i++ {
		r.AddFailure(FailureRecord{
			DocumentID: int64(i),
			Kind:       kinds[i%len(kinds)],
			Message:    "benchmark failure",
			Timestamp:  time.Now(),
		})
	}

	return r
}

func TestIntegration_FullWorkflow(t *testing.T) {
	tmpDir := t.TempDir()

	r := NewReport("Integration Test", "sqlite:codematch.db")
	r.Description = "Full rebuild workflow integration test"

	r.SetStatistics(Statistics{
		DocumentsProcessed:  5000,
		DocumentsSkipped:    200,
		FingerprintsEmitted: 1_200_000,
		Duration:            5 * time.Minute,
		DocsPerSecond:       16.67,
	})

	r.AddFailure(FailureRecord{
		DocumentID: 12,
		OrderID:    3,
		Kind:       FailureDecode,
		Message:    "invalid UTF-8 in document body",
		Timestamp:  time.Now(),
	})
	r.AddFailure(FailureRecord{
		DocumentID: 44,
		OrderID:    9,
		Kind:       FailureStoreWrite,
		Message:    "sqlite busy: database is locked",
		Timestamp:  time.Now(),
	})

	m := NewManager(tmpDir)
	paths, err := m.GenerateAll(r)
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			t.Errorf("File not created: %s", p)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("File is empty: %s", p)
		}
		ext := filepath.Ext(p)
		if ext != ".json" && ext != ".html" && ext != ".md" {
			t.Errorf("Unexpected file extension: %s", ext)
		}
	}
}

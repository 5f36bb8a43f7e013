package query

import (
	"context"
	"strings"
	"testing"

	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/winnow"
	"github.com/codematch/codematch/pkg/types"
)

type stubOrders map[int64]string

func (s stubOrders) ProjectName(_ context.Context, orderID int64) (string, bool, error) {
	name, ok := s[orderID]
	return name, ok, nil
}

func indexDocument(t *testing.T, store index.Store, documentID, orderID int64, code string) {
	t.Helper()
	fps := winnow.Winnow(code)
	postings := make([]types.WinnowPosting, len(fps))
	for i, f := range fps {
		postings[i] = types.WinnowPosting{
			DocumentID: documentID,
			OrderID:    orderID,
			Fingerprint: f.FP,
			Pos:         f.Pos,
			StartLine:   f.StartLine,
			EndLine:     f.EndLine,
		}
	}
	if err := store.PutWinnow(context.Background(), documentID, orderID, postings); err != nil {
		t.Fatalf("PutWinnow: %v", err)
	}
}

func sampleProgram(seed string) string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("func handler")
		b.WriteString(seed)
		b.WriteString("(w http.ResponseWriter, r *http.Request) {\n")
		b.WriteString("    value := computeSomething(r, i)\n")
		b.WriteString("    if value > threshold {\n")
		b.WriteString("        log.Printf(\"over threshold: %d\", value)\n")
		b.WriteString("    }\n")
		b.WriteString("    writeResponse(w, value)\n")
		b.WriteString("}\n\n")
	}
	return b.String()
}

func TestRunWinnow_ExactDuplicate(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{7: "alpha"}
	code := sampleProgram("A")
	indexDocument(t, store, 1, 7, code)

	report, err := RunWinnow(context.Background(), store, orders, code, nil, 0)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if report.DuplicateRate < 0.95 {
		t.Fatalf("expected duplicate rate >= 0.95 for an exact duplicate, got %f", report.DuplicateRate)
	}
	if len(report.Details) == 0 {
		t.Fatalf("expected at least one detail row")
	}
	if report.Details[0].MatchOrderID != 7 || report.Details[0].MatchProject != "alpha" {
		t.Fatalf("unexpected match metadata: %+v", report.Details[0])
	}
}

func TestRunWinnow_RenamedIdentifiers(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{7: "alpha"}
	original := sampleProgram("A")
	indexDocument(t, store, 1, 7, original)

	renamed := strings.ReplaceAll(original, "value", "outcome")
	renamed = strings.ReplaceAll(renamed, "handler", "process")

	report, err := RunWinnow(context.Background(), store, orders, renamed, nil, 0)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if report.DuplicateRate < 0.80 {
		t.Fatalf("expected duplicate rate >= 0.80 after identifier renaming, got %f", report.DuplicateRate)
	}
}

func TestRunWinnow_UnrelatedCode(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{7: "alpha"}
	indexDocument(t, store, 1, 7, sampleProgram("A"))

	unrelated := `package main

import "fmt"

func main() {
	total := 0
	for i := 0; i < 10; i++ {
		total += i
	}
	fmt.Println(total)
}
`
	report, err := RunWinnow(context.Background(), store, orders, unrelated, nil, 0)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if report.DuplicateRate != 0 {
		t.Fatalf("expected 0 duplicate rate for unrelated code, got %f", report.DuplicateRate)
	}
	if len(report.Details) != 0 {
		t.Fatalf("expected no detail rows, got %d", len(report.Details))
	}
}

func TestRunWinnow_PartialOverlap(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{7: "alpha"}
	original := sampleProgram("A")
	indexDocument(t, store, 1, 7, original)

	lines := strings.Split(original, "\n")
	partial := strings.Join(lines[:len(lines)/3], "\n") + "\n\nfunc unrelatedTail() {\n\treturn\n}\n"

	report, err := RunWinnow(context.Background(), store, orders, partial, nil, 0)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if report.DuplicateRate <= 0 {
		t.Fatalf("expected a nonzero duplicate rate for partial overlap, got %f", report.DuplicateRate)
	}
	if len(report.Details) > 0 && len(report.Details[0].Evidence) > 3 {
		t.Fatalf("expected a small number of merged evidence intervals, got %d", len(report.Details[0].Evidence))
	}
}

func TestRunWinnow_ExcludesOrder(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{7: "alpha"}
	code := sampleProgram("A")
	indexDocument(t, store, 1, 7, code)

	report, err := RunWinnow(context.Background(), store, orders, code, []int64{7}, 0)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if len(report.Details) != 0 {
		t.Fatalf("expected no matches once the owning order is excluded, got %+v", report.Details)
	}
	if report.DuplicateRate != 0 {
		t.Fatalf("expected 0 duplicate rate once excluded, got %f", report.DuplicateRate)
	}
}

func TestRunWinnow_EmptyInput(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{}

	report, err := RunWinnow(context.Background(), store, orders, "", nil, 0)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if report.TotalLines != 0 || len(report.Details) != 0 {
		t.Fatalf("expected an empty report for empty input, got %+v", report)
	}
}

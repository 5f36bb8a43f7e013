package query

import (
	"context"
	"strings"
	"testing"

	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/simhash"
	"github.com/codematch/codematch/pkg/types"
)

func indexSimHashDocument(t *testing.T, store index.Store, documentID, orderID int64, code string) {
	t.Helper()
	chunks := simhash.SplitIntoChunks(code, simhash.DefaultWindow, simhash.DefaultStep)
	fps := make([]types.SimHashFingerprint, 0, len(chunks))
	for _, c := range chunks {
		fp := simhash.Compute(c.Content)
		tlsh, _ := simhash.SecondaryFingerprint(c.Content)
		fps = append(fps, types.SimHashFingerprint{
			DocumentID: documentID,
			OrderID:    orderID,
			Fingerprint: uint64(fp),
			Parts:       fp.Bands(),
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			TLSH:        tlsh,
		})
	}
	if err := store.PutSimHash(context.Background(), documentID, orderID, fps); err != nil {
		t.Fatalf("PutSimHash: %v", err)
	}
}

func longFunction(seed string) string {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("func worker")
		b.WriteString(seed)
		b.WriteString("(ctx context.Context, job Job) error {\n")
		b.WriteString("    result, err := process(ctx, job)\n")
		b.WriteString("    if err != nil {\n")
		b.WriteString("        return fmt.Errorf(\"process failed: %w\", err)\n")
		b.WriteString("    }\n")
		b.WriteString("    return store(ctx, result)\n")
		b.WriteString("}\n\n")
	}
	return b.String()
}

func TestRunSimHash_ExactDuplicate(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{3: "beta"}
	code := longFunction("X")
	indexSimHashDocument(t, store, 1, 3, code)

	report, err := RunSimHash(context.Background(), store, orders, code, nil)
	if err != nil {
		t.Fatalf("RunSimHash: %v", err)
	}
	if report.DuplicateRate < 0.9 {
		t.Fatalf("expected high duplicate rate for exact duplicate, got %f", report.DuplicateRate)
	}
	if len(report.Details) == 0 {
		t.Fatalf("expected at least one detail row")
	}
	for _, d := range report.Details {
		if d.SimilarityScore < 95 {
			t.Fatalf("expected near-100 similarity for an exact duplicate chunk, got %f", d.SimilarityScore)
		}
	}
}

func TestRunSimHash_UnrelatedCode(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{3: "beta"}
	indexSimHashDocument(t, store, 1, 3, longFunction("X"))

	unrelated := `package main

import "fmt"

func main() {
	fmt.Println("hello")
}
`
	report, err := RunSimHash(context.Background(), store, orders, unrelated, nil)
	if err != nil {
		t.Fatalf("RunSimHash: %v", err)
	}
	if len(report.Details) != 0 {
		t.Fatalf("expected no matches for unrelated code, got %+v", report.Details)
	}
}

func TestRunSimHash_ExcludesOrder(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{3: "beta"}
	code := longFunction("X")
	indexSimHashDocument(t, store, 1, 3, code)

	report, err := RunSimHash(context.Background(), store, orders, code, []int64{3})
	if err != nil {
		t.Fatalf("RunSimHash: %v", err)
	}
	if len(report.Details) != 0 {
		t.Fatalf("expected no matches once the owning order is excluded, got %+v", report.Details)
	}
}

func TestRunSimHash_EmptyInput(t *testing.T) {
	store := index.NewMemoryStore()
	orders := stubOrders{}

	report, err := RunSimHash(context.Background(), store, orders, "", nil)
	if err != nil {
		t.Fatalf("RunSimHash: %v", err)
	}
	if report.TotalLines != 0 || len(report.Details) != 0 {
		t.Fatalf("expected an empty report for empty input, got %+v", report)
	}
}

// Package integration exercises the full rebuild-then-query path across
// the builder, index store, and both query pipelines.
package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/codematch/codematch/internal/builder"
	"github.com/codematch/codematch/internal/cache"
	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/query"
	"github.com/codematch/codematch/pkg/types"
)

// sliceSource feeds a fixed list of documents through builder.Run, matching
// the cursor-ordered DocumentIterator contract.
type sliceSource struct {
	docs []types.Document
	pos  int
}

func (s *sliceSource) Next(ctx context.Context) (types.Document, bool, error) {
	if s.pos >= len(s.docs) {
		return types.Document{}, false, nil
	}
	d := s.docs[s.pos]
	s.pos++
	return d, true, nil
}

// fakeOrderLookup resolves every order id it was constructed with to a
// synthetic project name, standing in for the external order database.
type fakeOrderLookup struct {
	orderIDs map[int64]bool
}

func newFakeOrderLookup(orderIDs ...int64) *fakeOrderLookup {
	set := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		set[id] = true
	}
	return &fakeOrderLookup{orderIDs: set}
}

func (f *fakeOrderLookup) ProjectName(_ context.Context, orderID int64) (string, bool, error) {
	if !f.orderIDs[orderID] {
		return "", false, nil
	}
	return fmt.Sprintf("project-%d", orderID), true, nil
}

func newIndex(t *testing.T, docs ...types.Document) index.Store {
	t.Helper()
	store := index.NewMemoryStore()
	b := builder.New(store, cache.NewDocumentCache(cache.DefaultConfig()))
	src := &sliceSource{docs: docs}
	result, err := b.Run(context.Background(), src, builder.Options{Resume: false})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(result.Failed) != 0 {
		t.Fatalf("unexpected rebuild failures: %v", result.Failed)
	}
	return store
}

const sampleBody = `package sample

func Add(a, b int) int {
	total := a + b
	for i := 0; i < 3; i++ {
		total = total + i
	}
	return total
}

func Sub(a, b int) int {
	diff := a - b
	for i := 0; i < 3; i++ {
		diff = diff - i
	}
	return diff
}
`

func renameIdentifiers(body string) string {
	r := strings.NewReplacer(
		"Add", "ComputeX",
		"Sub", "ComputeY",
		"total", "accVal",
		"diff", "deltaVal",
		"a, b", "p, q",
	)
	return r.Replace(body)
}

const unrelatedBody = `package weather

type Forecast struct {
	City string
	TempC float64
}

func Describe(f Forecast) string {
	if f.TempC > 30 {
		return f.City + " is hot"
	}
	return f.City + " is mild"
}
`

func TestEndToEnd_ExactDuplicate(t *testing.T) {
	store := newIndex(t, types.Document{ID: 1, OrderID: 100, Path: "a.go", Content: sampleBody})
	orders := newFakeOrderLookup(100)

	report, err := query.RunWinnow(context.Background(), store, orders, sampleBody, nil, 80)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if report.DuplicateRate < 0.95 {
		t.Fatalf("expected duplicate_rate >= 0.95, got %v", report.DuplicateRate)
	}
	if len(report.Details) != 1 || report.Details[0].MatchOrderID != 100 {
		t.Fatalf("expected one detail for order 100, got %+v", report.Details)
	}
	if report.Details[0].Coverage < 0.95 {
		t.Fatalf("expected coverage >= 0.95, got %v", report.Details[0].Coverage)
	}
	if report.Details[0].HitFingerprints < query.MinHit {
		t.Fatalf("expected hit_fingerprints >= %d, got %d", query.MinHit, report.Details[0].HitFingerprints)
	}
}

func TestEndToEnd_RenamedIdentifiersOnly(t *testing.T) {
	store := newIndex(t, types.Document{ID: 1, OrderID: 100, Path: "a.go", Content: sampleBody})
	orders := newFakeOrderLookup(100)

	renamed := renameIdentifiers(sampleBody)
	report, err := query.RunWinnow(context.Background(), store, orders, renamed, nil, 80)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if len(report.Details) != 1 {
		t.Fatalf("expected the renamed copy to still match, got %+v", report.Details)
	}
	if report.Details[0].Coverage < 0.80 {
		t.Fatalf("expected coverage >= 0.80 after renaming, got %v", report.Details[0].Coverage)
	}
}

func TestEndToEnd_UnrelatedCode(t *testing.T) {
	store := newIndex(t, types.Document{ID: 1, OrderID: 100, Path: "a.go", Content: sampleBody})
	orders := newFakeOrderLookup(100)

	report, err := query.RunWinnow(context.Background(), store, orders, unrelatedBody, nil, 80)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if len(report.Details) != 0 {
		t.Fatalf("expected no matches for unrelated code, got %+v", report.Details)
	}
	if report.DuplicateRate != 0 {
		t.Fatalf("expected duplicate_rate 0, got %v", report.DuplicateRate)
	}
}

func TestEndToEnd_PartialOverlap(t *testing.T) {
	store := newIndex(t, types.Document{ID: 1, OrderID: 100, Path: "a.go", Content: sampleBody})
	orders := newFakeOrderLookup(100)

	composite := sampleBody + "\n" + unrelatedBody + unrelatedBody
	report, err := query.RunWinnow(context.Background(), store, orders, composite, nil, 80)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	if len(report.Details) != 1 {
		t.Fatalf("expected exactly one detail row, got %+v", report.Details)
	}
	if len(report.Details[0].Evidence) > 3 {
		t.Fatalf("expected input lines merged into <= 3 intervals, got %d", len(report.Details[0].Evidence))
	}
}

func TestEndToEnd_SimHashChunkPathSanity(t *testing.T) {
	variant := strings.Replace(sampleBody, "total := a + b", "total := b + a", 1)
	variant = strings.Replace(variant, "diff := a - b", "diff := 0 - b + a", 1)

	store := newIndex(t, types.Document{ID: 1, OrderID: 100, Path: "a.go", Content: sampleBody})
	orders := newFakeOrderLookup(100)

	report, err := query.RunSimHash(context.Background(), store, orders, variant, nil)
	if err != nil {
		t.Fatalf("RunSimHash: %v", err)
	}
	if len(report.Details) == 0 {
		t.Fatal("expected a reported SimHash match for a near-identical body")
	}
}

func TestEndToEnd_Exclusion(t *testing.T) {
	store := newIndex(t,
		types.Document{ID: 1, OrderID: 100, Path: "a.go", Content: sampleBody},
		types.Document{ID: 2, OrderID: 200, Path: "b.go", Content: sampleBody},
	)
	orders := newFakeOrderLookup(100, 200)

	report, err := query.RunWinnow(context.Background(), store, orders, sampleBody, []int64{100}, 80)
	if err != nil {
		t.Fatalf("RunWinnow: %v", err)
	}
	for _, d := range report.Details {
		if d.MatchOrderID == 100 {
			t.Fatalf("excluded order 100 still present in details: %+v", d)
		}
	}
	if len(report.Details) != 1 || report.Details[0].MatchOrderID != 200 {
		t.Fatalf("expected the remaining match to be order 200, got %+v", report.Details)
	}
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/codematch/codematch/internal/builder"
	"github.com/codematch/codematch/internal/cache"
	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/query"
	"github.com/codematch/codematch/pkg/types"
)

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

type fakeOrderLookup struct{}

func (fakeOrderLookup) ProjectName(_ context.Context, orderID int64) (string, bool, error) {
	return "sample-project", true, nil
}

const checkSampleBody = "package sample\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n"

func newTestServer(t *testing.T, seed string) *Server {
	t.Helper()
	store := index.NewMemoryStore()
	if seed != "" {
		b := builder.New(store, cache.NewDocumentCache(cache.DefaultConfig()))
		src := &sliceSource{docs: []types.Document{{ID: 1, OrderID: 100, Path: "a.go", Content: seed}}}
		if _, err := b.Run(context.Background(), src, builder.Options{}); err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}
	return NewServer(store, fakeOrderLookup{}, 0)
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write upload body: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestHandleWinnowCheck_ExactDuplicate(t *testing.T) {
	srv := newTestServer(t, checkSampleBody)

	body, contentType := multipartUpload(t, "query.go", checkSampleBody)
	req := httptest.NewRequest("POST", "/api/duplicate-check-v2", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["filename"] != "query.go" {
		t.Errorf("expected filename query.go, got %v", out["filename"])
	}
	if _, ok := out["duplicate_rate"]; !ok {
		t.Error("expected duplicate_rate field in response")
	}
}

func TestHandleSimHashCheck_NoMatch(t *testing.T) {
	srv := newTestServer(t, "")

	body, contentType := multipartUpload(t, "query.go", checkSampleBody)
	req := httptest.NewRequest("POST", "/api/duplicate-check", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["duplicate_rate"] != "0.00%" {
		t.Errorf("expected duplicate_rate 0.00%%, got %v", out["duplicate_rate"])
	}
}

func TestHandleWinnowCheck_InvalidUTF8(t *testing.T) {
	srv := newTestServer(t, "")

	invalid := []byte{0xff, 0xfe, 0xfd}
	body, contentType := multipartUpload(t, "query.go", string(invalid))
	req := httptest.NewRequest("POST", "/api/duplicate-check-v2", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 on decode failure, got %d", resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["error"] != decodeErrorMessage {
		t.Errorf("expected decode error message, got %v", out["error"])
	}
}

func TestParseExcludeOrderIDs(t *testing.T) {
	cases := []struct {
		raw  string
		want []int64
	}{
		{"", nil},
		{"1,2,3", []int64{1, 2, 3}},
		{" 1 , 2 ", []int64{1, 2}},
		{"1,abc,3", []int64{1, 3}},
	}

	for _, c := range cases {
		got := parseExcludeOrderIDs(c.raw)
		if len(got) != len(c.want) {
			t.Errorf("parseExcludeOrderIDs(%q) = %v, want %v", c.raw, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("parseExcludeOrderIDs(%q)[%d] = %d, want %d", c.raw, i, got[i], c.want[i])
			}
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(0); got != "0.00%" {
		t.Errorf("formatPercent(0) = %q, want 0.00%%", got)
	}
	if got := formatPercent(0.9534); got != "95.34%" {
		t.Errorf("formatPercent(0.9534) = %q, want 95.34%%", got)
	}
}

func TestQueryError_CarriesKind(t *testing.T) {
	err := &query.Error{Kind: query.KindIndexUnavailable}
	if err.Kind != query.KindIndexUnavailable {
		t.Fatal("expected query.Error to carry KindIndexUnavailable")
	}
}

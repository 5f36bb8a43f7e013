package winnow

import (
	"testing"

	"github.com/codematch/codematch/internal/tokenizer"
)

func TestWinnowEmptyBelowK(t *testing.T) {
	tokens := tokenizer.Normalize("x = 1")
	if got := WinnowTokens(tokens, DefaultK, DefaultWindow); got != nil {
		t.Fatalf("expected nil for short token stream, got %v", got)
	}
}

func TestWinnowDeterministic(t *testing.T) {
	code := `
function compute(a, b, c, d, e) {
	var total = a + b + c + d + e;
	if (total > 100) {
		return total - 100;
	}
	return total;
}
`
	a := Winnow(code)
	b := Winnow(code)
	if len(a) == 0 {
		t.Fatal("expected at least one fingerprint")
	}
	if len(a) != len(b) {
		t.Fatalf("winnowing is not deterministic: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fingerprint %d differs across runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestWinnowEmitsOnChange(t *testing.T) {
	code := `
function one(a, b, c, d, e, f, g, h) {
	return a + b + c + d + e + f + g + h;
}
function two(a, b, c, d, e, f, g, h) {
	return a + b + c + d + e + f + g + h;
}
`
	fps := Winnow(code)
	seen := make(map[int]struct{})
	for i := 1; i < len(fps); i++ {
		if fps[i].Pos == fps[i-1].Pos && fps[i].FP == fps[i-1].FP {
			t.Fatalf("consecutive fingerprints should differ in pos or value: %+v then %+v", fps[i-1], fps[i])
		}
		seen[fps[i].Pos] = struct{}{}
	}
}

func TestShardRange(t *testing.T) {
	cases := []int64{0, 1, -1, 1 << 40, -(1 << 40)}
	for _, fp := range cases {
		s := Shard(fp)
		if s < 0 || s >= ShardCount {
			t.Fatalf("shard(%d) = %d out of range", fp, s)
		}
	}
}

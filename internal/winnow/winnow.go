// Package winnow implements Schleimer-Wilkerson-Aiken winnowing over a
// normalized token stream, emitting k-gram fingerprints chosen by a
// sliding-window minimum so near-duplicate code produces a sparse,
// reproducible set of matching fingerprints.
package winnow

import (
	"encoding/binary"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/codematch/codematch/internal/tokenizer"
)

// Canonical deployment parameters. The original system's call sites
// disagreed (k=20/window=5 as the library default, k=35/window=10 at the
// endpoints actually serving traffic); this module fixes the latter as the
// one canonical pair used everywhere in this repository.
const (
	DefaultK      = 35
	DefaultWindow = 10
)

// Fingerprint is one emitted winnowing fingerprint: a signed 64-bit hash
// value, the token position it was found at, and the source line range the
// underlying k-gram spans.
type Fingerprint struct {
	FP        int64
	Pos       int
	StartLine int
	EndLine   int
}

// ShardCount is the number of posting shards fingerprints are partitioned
// into.
const ShardCount = 64

// Shard returns the posting shard a fingerprint belongs to: the low 6 bits
// of the fingerprint reinterpreted as an unsigned 64-bit integer.
func Shard(fp int64) int {
	return int(uint64(fp) & 0x3F)
}

// Winnow tokenizes code and returns the winnowing fingerprints for it using
// the canonical k/window parameters.
func Winnow(code string) []Fingerprint {
	tokens := tokenizer.Normalize(code)
	return WinnowTokens(tokens, DefaultK, DefaultWindow)
}

// WinnowTokens runs the winnowing algorithm over an already-tokenized
// stream with an explicit k-gram size and window.
func WinnowTokens(tokens []tokenizer.Token, k, window int) []Fingerprint {
	if len(tokens) < k {
		return nil
	}

	numHashes := len(tokens) - k + 1
	hashes := make([]int64, numHashes)
	for i := 0; i < numHashes; i++ {
		hashes[i] = kgramHash(tokens, i, k)
	}

	var fps []Fingerprint
	lastIdx := -1
	var lastVal int64
	haveLast := false

	for i := 0; i+window <= len(hashes); i++ {
		minIdx, minVal := i, hashes[i]
		for j := i + 1; j < i+window; j++ {
			if hashes[j] < minVal {
				minVal = hashes[j]
				minIdx = j
			}
		}

		if minIdx != lastIdx || !haveLast || minVal != lastVal {
			endIdx := minIdx + k - 1
			if endIdx > len(tokens)-1 {
				endIdx = len(tokens) - 1
			}
			fps = append(fps, Fingerprint{
				FP:        minVal,
				Pos:       minIdx,
				StartLine: tokens[minIdx].Line,
				EndLine:   tokens[endIdx].Line,
			})
			lastIdx = minIdx
			lastVal = minVal
			haveLast = true
		}
	}

	return fps
}

// kgramHash hashes the k tokens starting at start with BLAKE2b-64 and
// reinterprets the digest as a signed int64 via 2's-complement, matching
// the numeric convention used throughout the posting store.
func kgramHash(tokens []tokenizer.Token, start, k int) int64 {
	words := make([]string, k)
	for i := 0; i < k; i++ {
		words[i] = tokens[start+i].Text
	}
	joined := strings.Join(words, "\x1f")

	digest, err := blake2b.New(8, nil)
	if err != nil {
		panic(err) // 8-byte digest is always a supported size for blake2b
	}
	digest.Write([]byte(joined))
	h := digest.Sum(nil)

	u := binary.BigEndian.Uint64(h)
	return int64(u)
}

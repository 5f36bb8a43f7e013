// Package simhash computes locality-sensitive 64-bit fingerprints over
// normalized code chunks and partitions them into bands for recall.
package simhash

import (
	"crypto/md5"
	"encoding/binary"
	"math/bits"
	"regexp"
	"strings"
)

// Bits is the width of a fingerprint.
const Bits = 64

// NGramSize is the number of consecutive tokens folded into one feature.
const NGramSize = 3

// Fingerprint is a 64-bit SimHash value.
type Fingerprint uint64

// Distance returns the Hamming distance between two fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ other))
}

// Similarity returns a 0-100 similarity score derived from Hamming distance.
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	d := f.Distance(other)
	return (1.0 - float64(d)/float64(Bits)) * 100.0
}

// IsSimilar reports whether the two fingerprints are within threshold bits
// of each other.
func (f Fingerprint) IsSimilar(other Fingerprint, threshold int) bool {
	return f.Distance(other) <= threshold
}

// Bands splits the fingerprint into four 16-bit bands, most significant
// first, for disjunctive band-index recall. A Hamming distance of 3 or
// less between two fingerprints guarantees at least one matching band by
// the pigeonhole principle.
func (f Fingerprint) Bands() [4]uint16 {
	var parts [4]uint16
	for i := 0; i < 4; i++ {
		shift := uint(48 - i*16)
		parts[i] = uint16((uint64(f) >> shift) & 0xFFFF)
	}
	return parts
}

var (
	lineCommentPattern  = regexp.MustCompile(`//[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	wordPattern         = regexp.MustCompile(`[a-z0-9]+`)
)

// cleanTokens strips comments and lowercases content before pulling out
// alphanumeric runs, independent of the package tokenizer's identifier/
// literal collapsing: SimHash runs its own coarse feature extraction over
// raw surface text so it stays deliberately more permissive than the
// winnowing pipeline's token stream.
func cleanTokens(code string) []string {
	code = lineCommentPattern.ReplaceAllString(code, "")
	code = blockCommentPattern.ReplaceAllString(code, "")
	code = strings.ToLower(code)
	return wordPattern.FindAllString(code, -1)
}

// Compute derives the SimHash fingerprint of code content by hashing
// overlapping NGramSize token windows with MD5 and accumulating a per-bit
// sign vote across all windows.
func Compute(code string) Fingerprint {
	tokens := cleanTokens(code)
	if len(tokens) == 0 {
		return 0
	}
	features := ngramFeatures(tokens, NGramSize)
	if len(features) == 0 {
		return 0
	}
	return computeFromFeatures(features)
}

func ngramFeatures(tokens []string, n int) []string {
	if len(tokens) < n {
		return []string{strings.Join(tokens, " ")}
	}
	features := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		features = append(features, strings.Join(tokens[i:i+n], " "))
	}
	return features
}

func computeFromFeatures(features []string) Fingerprint {
	var vector [Bits]int
	for _, feature := range features {
		h := hashFeature(feature)
		for i := 0; i < Bits; i++ {
			if h&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < Bits; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return Fingerprint(fp)
}

// hashFeature hashes a feature string to 64 bits via the low 8 bytes of
// its MD5 digest, matching the scheme used across the pack's original
// duplicate-detection prototype.
func hashFeature(s string) uint64 {
	sum := md5.Sum([]byte(s))
	return binary.BigEndian.Uint64(sum[8:16])
}

package simhash

import (
	"errors"

	tlshlib "github.com/glaslos/tlsh"
)

// minTLSHInput is TLSH's own minimum meaningful input size; chunks shorter
// than this never get a secondary signal and fall back to id/document-order
// tie-breaking.
const minTLSHInput = 50

// SecondaryFingerprint computes an optional TLSH fuzzy hash for a chunk,
// used only to order candidates that tie at the same Hamming distance for
// the primary SimHash signal. It never participates in recall.
func SecondaryFingerprint(content string) (string, error) {
	if len(content) < minTLSHInput {
		return "", errors.New("chunk too small for a secondary fingerprint")
	}
	h, err := tlshlib.HashBytes([]byte(content))
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// SecondaryDistance compares two TLSH strings and reports their distance.
// The boolean false (with a distance of 0) means no comparison was possible
// (one side is empty or does not parse), in which case callers should fall
// back to their next tie-break key.
func SecondaryDistance(a, b string) (int, bool) {
	if a == "" || b == "" {
		return 0, false
	}
	ha, err := tlshlib.ParseStringToTlsh(a)
	if err != nil {
		return 0, false
	}
	hb, err := tlshlib.ParseStringToTlsh(b)
	if err != nil {
		return 0, false
	}
	return ha.Diff(hb), true
}

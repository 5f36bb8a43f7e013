package simhash

import "strings"

// Chunk is one sliding-window slice of source lines considered as a unit
// for SimHash fingerprinting.
type Chunk struct {
	StartLine int
	EndLine   int
	Content   string
}

// DefaultWindow and DefaultStep are the chunking parameters used by the
// query pipeline: a 15-line window advanced 10 lines at a time, so that
// consecutive chunks overlap by 5 lines: any block of at most 6 lines
// (window - step + 1) lies wholly inside at least one chunk, while a longer
// block can straddle a chunk boundary.
const (
	DefaultWindow = 15
	DefaultStep   = 10
	// MinChunkLength discards chunks too short to carry a meaningful
	// fingerprint (e.g. a lone closing brace).
	MinChunkLength = 50
)

// SplitIntoChunks slides a window of `window` lines over code, advancing
// `step` lines at a time, discarding any chunk whose trimmed content is
// shorter than MinChunkLength.
func SplitIntoChunks(code string, window, step int) []Chunk {
	lines := strings.Split(code, "\n")
	total := len(lines)

	var chunks []Chunk
	for i := 0; i < total; i += step {
		end := i + window
		if end > total {
			end = total
		}
		if i >= end {
			break
		}

		content := strings.Join(lines[i:end], "\n")
		if len(strings.TrimSpace(content)) >= MinChunkLength {
			chunks = append(chunks, Chunk{
				StartLine: i + 1,
				EndLine:   end,
				Content:   content,
			})
		}

		if end == total {
			break
		}
	}

	return chunks
}

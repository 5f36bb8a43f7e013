package query

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/codematch/codematch/internal/coverage"
	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/simhash"
	"github.com/codematch/codematch/internal/workerpool"
	"github.com/codematch/codematch/pkg/types"
)

// maxSimHashDetails bounds the detail rows returned by the SimHash
// pipeline, per the external interface's cap of 50.
const maxSimHashDetails = 50

// simHashDistanceThreshold is the maximum Hamming distance a band-recalled
// candidate may have and still count as a match.
const simHashDistanceThreshold = 3

// RunSimHash chunks code, fingerprints each chunk, recalls band-disjunct
// candidates from store, and reports the best sub-threshold match per
// chunk along with an aggregate duplicate rate over the lines covered by
// at least one match.
func RunSimHash(ctx context.Context, store index.Store, orders OrderLookup, code string, excludeOrderIDs []int64) (types.SimHashReport, error) {
	start := time.Now()

	totalLines := countLines(code)
	chunks := simhash.SplitIntoChunks(code, simhash.DefaultWindow, simhash.DefaultStep)
	fingerprints := computeChunkFingerprints(ctx, chunks)

	lines := coverage.NewLineSet()
	var details []types.SimHashDetail

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return types.SimHashReport{}, err
		}

		fp := fingerprints[i].fp
		bands := fp.Bands()

		candidates, err := recallBands(ctx, store, bands, excludeOrderIDs)
		if err != nil {
			return types.SimHashReport{}, newError(KindIndexUnavailable, fmt.Errorf("simhash band recall: %w", err))
		}
		if len(candidates) == 0 {
			continue
		}

		best, dist, found := bestSimHashMatch(fp, candidates, fingerprints[i].tlsh)
		if !found {
			continue
		}

		project, ok, err := orders.ProjectName(ctx, best.OrderID)
		if err != nil {
			return types.SimHashReport{}, newError(KindIndexUnavailable, fmt.Errorf("resolve order project: %w", err))
		}
		if !ok {
			// NotFound: the document vanished between recall and now.
			continue
		}

		similarity := math.Round((1.0-float64(dist)/float64(simhash.Bits))*100*10) / 10
		details = append(details, types.SimHashDetail{
			InputLines:      formatLines(chunk.StartLine, chunk.EndLine),
			MatchLines:      formatLines(best.StartLine, best.EndLine),
			MatchOrderID:    best.OrderID,
			MatchProject:    project,
			SimilarityScore: similarity,
		})
		lines.MarkRange(chunk.StartLine, chunk.EndLine)
	}

	if len(details) > maxSimHashDetails {
		details = details[:maxSimHashDetails]
	}

	return types.SimHashReport{
		TotalLines:     totalLines,
		DuplicateRate:  coverage.DuplicateRate(lines.Intervals(), totalLines),
		Details:        details,
		ProcessSeconds: time.Since(start).Seconds(),
	}, nil
}

// chunkFingerprint is one chunk's precomputed SimHash and TLSH signal.
type chunkFingerprint struct {
	fp   simhash.Fingerprint
	tlsh string
}

// chunkResult carries a chunkFingerprint back from the CPU pool tagged with
// its originating chunk index, since Dynamic's fire-and-forget Results
// channel delivers completions out of submission order.
type chunkResult struct {
	index int
	chunkFingerprint
}

// computeChunkFingerprints dispatches the CPU-bound SimHash/TLSH computation
// for every chunk onto a Dynamic pool, since chunking a large upload can
// produce hundreds of independent chunks. Chunks that don't fit the pool's
// bounded queue are computed inline rather than dropped.
func computeChunkFingerprints(ctx context.Context, chunks []simhash.Chunk) []chunkFingerprint {
	results := make([]chunkFingerprint, len(chunks))
	if len(chunks) == 0 {
		return results
	}

	fingerprint := func(content string) chunkFingerprint {
		fp := simhash.Compute(content)
		tlsh, _ := simhash.SecondaryFingerprint(content)
		return chunkFingerprint{fp: fp, tlsh: tlsh}
	}

	pool := workerpool.NewDynamic(ctx, workerpool.DefaultDynamicConfig(), func(_ context.Context, task workerpool.CPUTask) workerpool.CPUResult {
		idx := task.Payload.(int)
		return workerpool.CPUResult{
			TaskID: task.ID,
			Output: chunkResult{index: idx, chunkFingerprint: fingerprint(chunks[idx].Content)},
		}
	})
	defer pool.Stop()

	submitted := 0
	for i := range chunks {
		if pool.Submit(workerpool.CPUTask{ID: fmt.Sprintf("%d", i), Payload: i}) {
			submitted++
			continue
		}
		results[i] = fingerprint(chunks[i].Content)
	}

	for i := 0; i < submitted; i++ {
		select {
		case res := <-pool.Results():
			out := res.Output.(chunkResult)
			results[out.index] = out.chunkFingerprint
		case <-ctx.Done():
			// The caller's per-chunk ctx.Err() check will bail on its next
			// iteration; any still-missing entries are never read.
			return results
		}
	}
	return results
}

func recallBands(ctx context.Context, store index.Store, bands [4]uint16, exclude []int64) ([]types.SimHashFingerprint, error) {
	seen := make(map[string]struct{})
	var out []types.SimHashFingerprint
	for i, v := range bands {
		recalled, err := store.RecallBand(ctx, i, v, exclude)
		if err != nil {
			return nil, err
		}
		for _, fp := range recalled {
			key := fmt.Sprintf("%d:%d:%d", fp.DocumentID, fp.Fingerprint, fp.StartLine)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, fp)
		}
	}
	return out, nil
}

// bestSimHashMatch finds the minimum-Hamming-distance candidate within
// simHashDistanceThreshold, tie-breaking first by TLSH secondary distance
// (if both sides have one) and then by ascending document id.
func bestSimHashMatch(fp simhash.Fingerprint, candidates []types.SimHashFingerprint, chunkTLSH string) (types.SimHashFingerprint, int, bool) {
	var best types.SimHashFingerprint
	bestDist := simHashDistanceThreshold + 1
	found := false

	for _, cand := range candidates {
		d := fp.Distance(simhash.Fingerprint(cand.Fingerprint))
		if d > simHashDistanceThreshold {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = cand, d, true
			continue
		}
		if d == bestDist && shouldReplace(chunkTLSH, best, cand) {
			best = cand
		}
	}
	return best, bestDist, found
}

func shouldReplace(chunkTLSH string, current, candidate types.SimHashFingerprint) bool {
	dCur, okCur := simhash.SecondaryDistance(chunkTLSH, current.TLSH)
	dCand, okCand := simhash.SecondaryDistance(chunkTLSH, candidate.TLSH)
	if okCur && okCand && dCand != dCur {
		return dCand < dCur
	}
	return candidate.DocumentID < current.DocumentID
}

func countLines(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(code, "\n") + 1
}

func formatLines(start, end int) string {
	return fmt.Sprintf("%d - %d", start, end)
}

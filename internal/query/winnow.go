package query

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/codematch/codematch/internal/coverage"
	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/tokenizer"
	"github.com/codematch/codematch/internal/winnow"
	"github.com/codematch/codematch/internal/workerpool"
	"github.com/codematch/codematch/pkg/types"
)

// Winnowing query pipeline parameters, fixed per spec.md section 4.6.
const (
	MaxQueryFPS  = 1200
	RecallBatch  = 300
	TopN         = 80
	MinHit       = 6
	MinCoverage  = 0.06
	maxWinnowDetails  = 20
	maxEvidencePairs  = 10
)

// RunWinnow winnows the input, recalls candidate documents by fingerprint
// hit count, reranks the top candidates by offset alignment, and reports
// merged-interval evidence and an aggregate duplicate rate.
// topN of 0 or less selects the default TopN.
func RunWinnow(ctx context.Context, store index.Store, orders OrderLookup, code string, excludeOrderIDs []int64, topN int) (types.WinnowReport, error) {
	if topN <= 0 {
		topN = TopN
	}
	totalLines := countLines(code)

	tokens := tokenizer.Normalize(code)
	fps := winnow.WinnowTokens(tokens, winnow.DefaultK, winnow.DefaultWindow)
	if len(fps) == 0 {
		return types.WinnowReport{TotalLines: totalLines}, nil
	}

	fps = subsample(fps, MaxQueryFPS)

	inByFP := make(map[int64][]winnow.Fingerprint)
	fpsByShard := make(map[int]map[int64]struct{})
	for _, f := range fps {
		inByFP[f.FP] = append(inByFP[f.FP], f)
		shard := winnow.Shard(f.FP)
		if fpsByShard[shard] == nil {
			fpsByShard[shard] = make(map[int64]struct{})
		}
		fpsByShard[shard][f.FP] = struct{}{}
	}

	if err := ctx.Err(); err != nil {
		return types.WinnowReport{}, err
	}

	var batches []shardRecallBatch
	for shard, fpSet := range fpsByShard {
		shardFPs := make([]int64, 0, len(fpSet))
		for fp := range fpSet {
			shardFPs = append(shardFPs, fp)
		}
		sort.Slice(shardFPs, func(i, j int) bool { return shardFPs[i] < shardFPs[j] })

		for start := 0; start < len(shardFPs); start += RecallBatch {
			end := start + RecallBatch
			if end > len(shardFPs) {
				end = len(shardFPs)
			}
			batches = append(batches, shardRecallBatch{shard: shard, fps: shardFPs[start:end]})
		}
	}

	postingsByDoc, hitCounts, err := recallShardsConcurrently(ctx, store, batches, excludeOrderIDs)
	if err != nil {
		return types.WinnowReport{}, newError(KindIndexUnavailable, fmt.Errorf("winnow shard recall: %w", err))
	}

	if len(hitCounts) == 0 {
		return types.WinnowReport{TotalLines: totalLines}, nil
	}

	candidates := rankCandidates(hitCounts, topN)

	overall := coverage.NewLineSet()
	var details []types.WinnowDetail

	for _, docID := range candidates {
		postings := postingsByDoc[docID]
		if len(postings) < MinHit {
			continue
		}

		bestOffset, bestCount, ok := offsetAlignment(postings, inByFP)
		if !ok || bestCount < MinHit {
			continue
		}

		inputIntervals, matchIntervals := alignedIntervals(postings, inByFP, bestOffset)
		mergedInput := coverage.MergeIntervals(inputIntervals)
		mergedMatch := coverage.MergeIntervals(matchIntervals)

		candCoverage := coverage.DuplicateRate(mergedInput, totalLines)
		if candCoverage < MinCoverage {
			continue
		}

		project, found, err := orders.ProjectName(ctx, postings[0].OrderID)
		if err != nil {
			return types.WinnowReport{}, newError(KindIndexUnavailable, fmt.Errorf("resolve order project: %w", err))
		}
		if !found {
			continue
		}

		details = append(details, types.WinnowDetail{
			MatchOrderID:    postings[0].OrderID,
			MatchProject:    project,
			HitFingerprints: bestCount,
			Coverage:        candCoverage,
			Evidence:        zipEvidence(mergedInput, mergedMatch),
		})

		for _, iv := range mergedInput {
			overall.MarkRange(iv.Start, iv.End)
		}
	}

	if len(details) > maxWinnowDetails {
		details = details[:maxWinnowDetails]
	}

	return types.WinnowReport{
		TotalLines:    totalLines,
		DuplicateRate: coverage.DuplicateRate(overall.Intervals(), totalLines),
		Details:       details,
	}, nil
}

// shardRecallBatch is one RECALL_BATCH-sized slice of fingerprints to look
// up within a single shard.
type shardRecallBatch struct {
	shard int
	fps   []int64
}

// recallShardsConcurrently fans batches out onto a bounded IO pool so the
// shard/fetch recall calls that dominate RunWinnow's latency run
// concurrently instead of one at a time, returning the first error seen
// across all batches (if any).
func recallShardsConcurrently(ctx context.Context, store index.Store, batches []shardRecallBatch, excludeOrderIDs []int64) (map[int64][]types.WinnowPosting, map[int64]int, error) {
	postingsByDoc := make(map[int64][]types.WinnowPosting)
	hitCounts := make(map[int64]int)
	if len(batches) == 0 {
		return postingsByDoc, hitCounts, nil
	}

	pool, err := workerpool.NewIOPool(workerpool.DefaultIOPoolOptions())
	if err != nil {
		return nil, nil, err
	}
	defer pool.Shutdown()

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	recordErr := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, batch := range batches {
		batch := batch
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			postings, err := store.RecallShard(ctx, batch.shard, batch.fps, excludeOrderIDs)
			if err != nil {
				recordErr(err)
				return
			}
			mu.Lock()
			for _, p := range postings {
				postingsByDoc[p.DocumentID] = append(postingsByDoc[p.DocumentID], p)
				hitCounts[p.DocumentID]++
			}
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			recordErr(submitErr)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, nil, firstErr
	}
	return postingsByDoc, hitCounts, nil
}

// subsample stride-subsamples fps down to at most maxCount records,
// matching the input-side fingerprint cap.
func subsample(fps []winnow.Fingerprint, maxCount int) []winnow.Fingerprint {
	if len(fps) <= maxCount {
		return fps
	}
	step := len(fps) / maxCount
	if step < 1 {
		step = 1
	}
	var out []winnow.Fingerprint
	for i := 0; i < len(fps); i += step {
		out = append(out, fps[i])
		if len(out) == maxCount {
			break
		}
	}
	return out
}

// rankCandidates orders documents by hit count descending, document id
// ascending as tie-breaker, and returns at most topN of them.
func rankCandidates(hitCounts map[int64]int, topN int) []int64 {
	docs := make([]int64, 0, len(hitCounts))
	for doc := range hitCounts {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if hitCounts[docs[i]] != hitCounts[docs[j]] {
			return hitCounts[docs[i]] > hitCounts[docs[j]]
		}
		return docs[i] < docs[j]
	})
	if len(docs) > topN {
		docs = docs[:topN]
	}
	return docs
}

// offsetAlignment computes the modal posting-to-input position offset for
// a candidate's postings, with the smallest offset winning ties.
func offsetAlignment(postings []types.WinnowPosting, inByFP map[int64][]winnow.Fingerprint) (offset, count int, ok bool) {
	histogram := make(map[int]int)
	for _, p := range postings {
		for _, inf := range inByFP[p.Fingerprint] {
			histogram[p.Pos-inf.Pos]++
		}
	}
	if len(histogram) == 0 {
		return 0, 0, false
	}

	offsets := make([]int, 0, len(histogram))
	for off := range histogram {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)

	bestOffset, bestCount := offsets[0], histogram[offsets[0]]
	for _, off := range offsets[1:] {
		if histogram[off] > bestCount {
			bestOffset, bestCount = off, histogram[off]
		}
	}
	return bestOffset, bestCount, true
}

// alignedIntervals collects the input/match line-range pairs whose offset
// equals bestOffset.
func alignedIntervals(postings []types.WinnowPosting, inByFP map[int64][]winnow.Fingerprint, bestOffset int) (input, match []types.Interval) {
	for _, p := range postings {
		for _, inf := range inByFP[p.Fingerprint] {
			if p.Pos-inf.Pos != bestOffset {
				continue
			}
			input = append(input, types.Interval{Start: inf.StartLine, End: inf.EndLine})
			match = append(match, types.Interval{Start: p.StartLine, End: p.EndLine})
		}
	}
	return input, match
}

// zipEvidence pairs merged input/match intervals positionally, capped at
// maxEvidencePairs.
func zipEvidence(input, match []types.Interval) []types.EvidencePair {
	n := len(input)
	if len(match) < n {
		n = len(match)
	}
	if n > maxEvidencePairs {
		n = maxEvidencePairs
	}
	out := make([]types.EvidencePair, n)
	for i := 0; i < n; i++ {
		out[i] = types.EvidencePair{
			InputLines: formatLines(input[i].Start, input[i].End),
			MatchLines: formatLines(match[i].Start, match[i].End),
		}
	}
	return out
}

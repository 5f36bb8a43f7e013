// Package builder rebuilds the SimHash and winnowing indices from stored
// document bodies: idempotent per document, resumable by document id
// cursor, atomic per-document replacement.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/codematch/codematch/internal/cache"
	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/simhash"
	"github.com/codematch/codematch/internal/tokenizer"
	"github.com/codematch/codematch/internal/winnow"
	"github.com/codematch/codematch/internal/workerpool"
	"github.com/codematch/codematch/pkg/types"
)

// MaxFPsPerDoc bounds the winnowing fingerprints kept per document; above
// this count, uniform downsampling with step floor(n/cap) applies.
const MaxFPsPerDoc = 5000

// DocumentIterator streams documents ordered by ascending id, matching the
// builder's cursor-based rebuild contract.
type DocumentIterator interface {
	// Next returns the next document, or ok=false once exhausted.
	Next(ctx context.Context) (doc types.Document, ok bool, err error)
}

// Options configures one rebuild run.
type Options struct {
	// UpTo is an inclusive document id ceiling; zero means unbounded.
	UpTo int64
	// Resume skips documents already represented in the target index.
	Resume bool
}

// FailureRecord captures one document's rebuild failure without aborting
// the run; the cursor still advances past it.
type FailureRecord struct {
	DocumentID int64
	Err        error
}

// Result summarizes one rebuild run.
type Result struct {
	Processed int
	Skipped   int
	Failed    []FailureRecord
}

// Builder rebuilds both indices from a document source.
type Builder struct {
	store index.Store
	docs  *cache.DocumentCache
	io    *workerpool.IOPool
	bp    *workerpool.Backpressure
}

// New creates a Builder writing into store, with an optional document body
// cache (nil disables caching). Per-document store writes fan out onto a
// bounded IO pool; Backpressure throttles how fast Run submits the next
// document once that pool's occupancy crosses its high watermark.
func New(store index.Store, docs *cache.DocumentCache) *Builder {
	io, err := workerpool.NewIOPool(workerpool.DefaultIOPoolOptions())
	if err != nil {
		// DefaultIOPoolOptions is a fixed, valid configuration; ants only
		// rejects a non-positive size, which never happens here.
		io = nil
	}
	return &Builder{
		store: store,
		docs:  docs,
		io:    io,
		bp:    workerpool.NewBackpressure(workerpool.DefaultBackpressureConfig()),
	}
}

// Close releases the builder's IO pool. Safe to call on a zero-value-free
// Builder returned by New; a no-op if the pool failed to start.
func (b *Builder) Close() {
	if b.io != nil {
		b.io.Shutdown()
	}
}

// Run rebuilds the index for every document it streams from docs, honoring
// opts.UpTo and opts.Resume, and returns a summary without aborting on a
// single document's failure.
func (b *Builder) Run(ctx context.Context, docs DocumentIterator, opts Options) (Result, error) {
	var result Result

	resumeCursor := int64(-1)
	if opts.Resume {
		if max, ok, err := b.store.MaxIndexedDocumentID(ctx); err != nil {
			return result, fmt.Errorf("read resume cursor: %w", err)
		} else if ok {
			resumeCursor = max
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		doc, ok, err := docs.Next(ctx)
		if err != nil {
			return result, fmt.Errorf("stream documents: %w", err)
		}
		if !ok {
			break
		}
		if opts.UpTo > 0 && doc.ID > opts.UpTo {
			break
		}

		if opts.Resume {
			alreadyWinnowed := doc.ID <= resumeCursor
			alreadySimHashed, err := b.store.HasDocument(ctx, doc.ID)
			if err != nil {
				result.Failed = append(result.Failed, FailureRecord{DocumentID: doc.ID, Err: err})
				continue
			}
			if alreadyWinnowed && alreadySimHashed {
				result.Skipped++
				continue
			}
		}

		if err := b.indexDocument(ctx, doc); err != nil {
			log.Printf("rebuild: document %d failed: %v", doc.ID, err)
			result.Failed = append(result.Failed, FailureRecord{DocumentID: doc.ID, Err: err})
			continue
		}
		result.Processed++
	}

	return result, nil
}

// fingerprintPayload is the cached shape of one content body's derived
// fingerprints, serialized under DocumentCache so a body repeated across
// orders (a common corpus pattern) is fingerprinted only once.
type fingerprintPayload struct {
	SimHash []types.SimHashFingerprint
	Winnow  []types.WinnowPosting
}

// indexDocument derives SimHash and winnowing records from one document's
// body and atomically replaces both in the store.
func (b *Builder) indexDocument(ctx context.Context, doc types.Document) error {
	content := doc.Content

	simFPs, postings := b.cachedFingerprints(content)
	if simFPs == nil && postings == nil {
		simFPs = buildSimHashRecords(doc.ID, doc.OrderID, content)
		postings = buildWinnowPostings(doc.ID, doc.OrderID, content)
		b.storeCachedFingerprints(content, simFPs, postings)
	} else {
		retagSimHash(simFPs, doc.ID, doc.OrderID)
		retagWinnow(postings, doc.ID, doc.OrderID)
	}

	tokenCount := len(tokenizer.Normalize(content))
	stat := types.DocStat{
		DocumentID: doc.ID,
		FPCount:    len(simFPs) + len(postings),
		TokenCount: tokenCount,
	}

	if b.io == nil {
		return b.putSequential(ctx, doc, simFPs, postings, stat)
	}
	return b.putConcurrent(ctx, doc, simFPs, postings, stat)
}

func (b *Builder) putSequential(ctx context.Context, doc types.Document, simFPs []types.SimHashFingerprint, postings []types.WinnowPosting, stat types.DocStat) error {
	if err := b.store.PutSimHash(ctx, doc.ID, doc.OrderID, simFPs); err != nil {
		return fmt.Errorf("put simhash: %w", err)
	}
	if err := b.store.PutWinnow(ctx, doc.ID, doc.OrderID, postings); err != nil {
		return fmt.Errorf("put winnow: %w", err)
	}
	if err := b.store.PutDocStat(ctx, stat); err != nil {
		return fmt.Errorf("put doc stat: %w", err)
	}
	return nil
}

// putConcurrent fans the three per-document writes out onto the builder's
// IO pool so they run concurrently instead of back-to-back, throttling
// submission of the next document once the pool's occupancy crosses the
// backpressure controller's high watermark.
func (b *Builder) putConcurrent(ctx context.Context, doc types.Document, simFPs []types.SimHashFingerprint, postings []types.WinnowPosting, stat types.DocStat) error {
	if stats := b.io.Stats(); stats.Capacity > 0 {
		b.bp.CheckPressure(stats.Running, stats.Capacity)
	}

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	recordErr := func(prefix string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", prefix, err)
		}
	}
	submit := func(prefix string, task func() error) {
		wg.Add(1)
		if err := b.io.Submit(func() {
			defer wg.Done()
			recordErr(prefix, task())
		}); err != nil {
			wg.Done()
			recordErr(prefix, err)
		}
	}

	submit("put simhash", func() error { return b.store.PutSimHash(ctx, doc.ID, doc.OrderID, simFPs) })
	submit("put winnow", func() error { return b.store.PutWinnow(ctx, doc.ID, doc.OrderID, postings) })
	submit("put doc stat", func() error { return b.store.PutDocStat(ctx, stat) })

	wg.Wait()
	b.bp.RecordProcessed()
	return firstErr
}

// cachedFingerprints looks up previously derived fingerprints for an
// identical content body, returning (nil, nil) on a miss or when caching
// is disabled.
func (b *Builder) cachedFingerprints(content string) ([]types.SimHashFingerprint, []types.WinnowPosting) {
	if b.docs == nil {
		return nil, nil
	}
	blob, ok := b.docs.Get(content)
	if !ok {
		return nil, nil
	}
	var payload fingerprintPayload
	if err := json.Unmarshal(blob, &payload); err != nil {
		return nil, nil
	}
	return payload.SimHash, payload.Winnow
}

func (b *Builder) storeCachedFingerprints(content string, simFPs []types.SimHashFingerprint, postings []types.WinnowPosting) {
	if b.docs == nil {
		return
	}
	blob, err := json.Marshal(fingerprintPayload{SimHash: simFPs, Winnow: postings})
	if err != nil {
		return
	}
	b.docs.Set(content, blob)
}

// retagSimHash rewrites the document/order identifiers on a cached
// fingerprint set reused for a different document with identical content.
func retagSimHash(records []types.SimHashFingerprint, documentID, orderID int64) {
	for i := range records {
		records[i].DocumentID = documentID
		records[i].OrderID = orderID
	}
}

// retagWinnow rewrites the document/order identifiers on a cached posting
// set reused for a different document with identical content.
func retagWinnow(postings []types.WinnowPosting, documentID, orderID int64) {
	for i := range postings {
		postings[i].DocumentID = documentID
		postings[i].OrderID = orderID
	}
}

func buildSimHashRecords(documentID, orderID int64, content string) []types.SimHashFingerprint {
	chunks := simhash.SplitIntoChunks(content, simhash.DefaultWindow, simhash.DefaultStep)
	records := make([]types.SimHashFingerprint, 0, len(chunks))
	for _, c := range chunks {
		fp := simhash.Compute(c.Content)
		tlsh, _ := simhash.SecondaryFingerprint(c.Content)
		records = append(records, types.SimHashFingerprint{
			DocumentID: documentID,
			OrderID:    orderID,
			Fingerprint: uint64(fp),
			Parts:       fp.Bands(),
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			TLSH:        tlsh,
		})
	}
	return records
}

func buildWinnowPostings(documentID, orderID int64, content string) []types.WinnowPosting {
	fps := winnow.Winnow(content)
	fps = downsample(fps, MaxFPsPerDoc)

	postings := make([]types.WinnowPosting, len(fps))
	for i, f := range fps {
		postings[i] = types.WinnowPosting{
			DocumentID: documentID,
			OrderID:    orderID,
			Fingerprint: f.FP,
			Pos:         f.Pos,
			StartLine:   f.StartLine,
			EndLine:     f.EndLine,
		}
	}
	return postings
}

// downsample uniformly thins fps to at most cap records using a stride of
// floor(n/cap), then truncates to cap: striding alone can still leave one
// extra record over the budget for n just above a multiple of cap.
func downsample(fps []winnow.Fingerprint, cap int) []winnow.Fingerprint {
	if len(fps) <= cap {
		return fps
	}
	step := len(fps) / cap
	if step < 1 {
		step = 1
	}
	out := make([]winnow.Fingerprint, 0, cap)
	for i := 0; i < len(fps) && len(out) < cap; i += step {
		out = append(out, fps[i])
	}
	return out
}

// DeleteDocument removes one document's records from both indices.
func (b *Builder) DeleteDocument(ctx context.Context, documentID int64) error {
	return b.store.DeleteDocument(ctx, documentID)
}

// DeleteOrder removes every document under an order from both indices.
func (b *Builder) DeleteOrder(ctx context.Context, orderID int64) error {
	return b.store.DeleteOrder(ctx, orderID)
}

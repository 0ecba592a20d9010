package embed

import (
	"context"
	"fmt"
	"sync"
	"time"

	engineerr "github.com/semcore/engine/internal/errors"
)

// DefaultTokenBudget is the per-request token budget used to pack texts
// into batches before calling a provider.
const DefaultTokenBudget = 120_000

// DefaultWorkers is the back-end embedding pool size (W_vec) used when a
// Dispatcher isn't given an explicit worker count.
const DefaultWorkers = 8

// DefaultFlushInterval bounds how long DispatchStream lets a partial batch
// sit idle before sending it anyway, so a slow trickle of upstream items
// never stalls the embedding pool waiting for a batch to fill.
const DefaultFlushInterval = 200 * time.Millisecond

// DispatchItem is one unit of work submitted to a Dispatcher: arbitrary
// caller-supplied text plus an opaque ID the caller uses to correlate the
// result. The dispatcher never inspects ID.
type DispatchItem struct {
	ID   string
	Text string
}

// DispatchResult pairs a DispatchItem's ID with its embedding, or an error
// if the item could not be embedded after the single per-item retry.
type DispatchResult struct {
	ID        string
	Embedding []float32
	Err       error
}

// Dispatcher packs items into token-bounded batches, calls an Embedder
// under a circuit breaker, and retries individually-failed items once
// before giving up on them: a partial batch failure means the failed
// chunks are retried individually once; still-failing chunks are logged
// and skipped, never propagated as dirty state.
type Dispatcher struct {
	embedder      Embedder
	tokenBudget   int
	workers       int
	flushInterval time.Duration
	breaker       *engineerr.CircuitBreaker
	retryConfig   engineerr.RetryConfig
	counter       *TokenCounter
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTokenBudget overrides DefaultTokenBudget.
func WithTokenBudget(budget int) DispatcherOption {
	return func(d *Dispatcher) {
		if budget > 0 {
			d.tokenBudget = budget
		}
	}
}

// WithWorkers overrides DefaultWorkers, the back-end embedding pool size
// (W_vec) that Dispatch and DispatchStream fan batches out across.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithFlushInterval overrides DefaultFlushInterval, DispatchStream's
// idle-batch flush timeout.
func WithFlushInterval(d_ time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if d_ > 0 {
			d.flushInterval = d_
		}
	}
}

// WithCircuitBreaker overrides the default circuit breaker.
func WithCircuitBreaker(cb *engineerr.CircuitBreaker) DispatcherOption {
	return func(d *Dispatcher) { d.breaker = cb }
}

// WithRetryConfig overrides the default per-batch retry policy.
func WithRetryConfig(cfg engineerr.RetryConfig) DispatcherOption {
	return func(d *Dispatcher) { d.retryConfig = cfg }
}

// NewDispatcher wraps embedder with batching, backoff, and circuit-breaking.
func NewDispatcher(embedder Embedder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		embedder:      embedder,
		tokenBudget:   DefaultTokenBudget,
		workers:       DefaultWorkers,
		flushInterval: DefaultFlushInterval,
		breaker:       engineerr.NewCircuitBreaker("embedding-dispatcher"),
		retryConfig:   engineerr.DefaultRetryConfig(),
		counter:       NewTokenCounter(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch embeds items, returning one DispatchResult per item in input
// order. It never returns early on a single item's failure; callers inspect
// each result's Err. A context cancellation aborts in-flight work and fills
// the remaining results with CancelledError rather than returning a
// partial batch (no vector half-written).
//
// Batches are handed out to a back-end pool of d.workers goroutines, so
// independent batches embed concurrently instead of one at a time; the
// circuit breaker and retry policy are shared across the pool.
func (d *Dispatcher) Dispatch(ctx context.Context, items []DispatchItem) []DispatchResult {
	results := make([]DispatchResult, len(items))
	batches := d.packBatches(items)

	workers := d.workers
	if workers > len(batches) {
		workers = len(batches)
	}
	if workers < 1 {
		workers = 1
	}

	batchCh := make(chan indexedBatch)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchCh {
				select {
				case <-ctx.Done():
					d.fillCancelled(results, batch)
					continue
				default:
				}
				d.dispatchBatch(ctx, batch, results)
			}
		}()
	}

	for _, batch := range batches {
		batchCh <- batch
	}
	close(batchCh)
	wg.Wait()

	return results
}

// DispatchStream runs the same batching/circuit-breaking/retry logic as
// Dispatch, but over a live channel instead of a pre-collected slice: a
// back-end pool of d.workers goroutines reads directly from in, each
// packing its own token-bounded batch and flushing it either once the
// budget is reached or once d.flushInterval passes with no new item,
// whichever comes first. This is the consumer side of a producer/consumer
// pipeline where in is fed by an upstream pool (e.g. file reading and
// chunking) that can't guarantee a steady item rate — without the
// timeout flush, a batch sitting just under budget would wait forever for
// one more item that might never come.
//
// Results arrive on the returned channel in completion order, not input
// order; callers correlate by DispatchResult.ID. The channel closes once
// in is drained and every in-flight batch has reported its results.
func (d *Dispatcher) DispatchStream(ctx context.Context, in <-chan DispatchItem) <-chan DispatchResult {
	workers := d.workers
	if workers < 1 {
		workers = 1
	}
	out := make(chan DispatchResult, workers*4)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go d.streamWorker(ctx, in, out, &wg)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// streamWorker packs items it reads from in into one batch at a time,
// flushing on budget or idle timeout, until in closes.
func (d *Dispatcher) streamWorker(ctx context.Context, in <-chan DispatchItem, out chan<- DispatchResult, wg *sync.WaitGroup) {
	defer wg.Done()

	var batch indexedBatch
	tokens := 0

	timer := time.NewTimer(d.flushInterval)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	flush := func() {
		if len(batch.items) == 0 {
			return
		}
		d.dispatchBatchStream(ctx, batch, out)
		batch = indexedBatch{}
		tokens = 0
	}

	for {
		select {
		case <-ctx.Done():
			if timerActive && !timer.Stop() {
				<-timer.C
			}
			flush()
			return

		case item, ok := <-in:
			if !ok {
				if timerActive && !timer.Stop() {
					<-timer.C
				}
				flush()
				return
			}
			n := d.counter.Count(d.embedder.ModelName(), item.Text)
			if tokens > 0 && tokens+n > d.tokenBudget {
				flush()
			}
			batch.items = append(batch.items, item)
			tokens += n
			if !timerActive {
				timer.Reset(d.flushInterval)
				timerActive = true
			}

		case <-timer.C:
			timerActive = false
			flush()
		}
	}
}

type indexedBatch struct {
	items   []DispatchItem
	indices []int
}

// packBatches groups items into batches whose summed token count stays
// under tokenBudget, preserving input order within and across batches.
func (d *Dispatcher) packBatches(items []DispatchItem) []indexedBatch {
	var batches []indexedBatch
	var cur indexedBatch
	tokens := 0

	flush := func() {
		if len(cur.items) > 0 {
			batches = append(batches, cur)
			cur = indexedBatch{}
			tokens = 0
		}
	}

	for i, it := range items {
		n := d.counter.Count(d.embedder.ModelName(), it.Text)
		if tokens > 0 && tokens+n > d.tokenBudget {
			flush()
		}
		cur.items = append(cur.items, it)
		cur.indices = append(cur.indices, i)
		tokens += n
	}
	flush()
	return batches
}

func (d *Dispatcher) fillCancelled(results []DispatchResult, batch indexedBatch) {
	for k, idx := range batch.indices {
		results[idx] = DispatchResult{
			ID:  batch.items[k].ID,
			Err: engineerr.CancelledError("embedding dispatch cancelled"),
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, batch indexedBatch, results []DispatchResult) {
	texts := make([]string, len(batch.items))
	for i, it := range batch.items {
		texts[i] = it.Text
	}

	vectors, err := engineerr.CircuitExecuteWithResult(d.breaker,
		func() ([][]float32, error) {
			return engineerr.RetryWithResult(ctx, d.retryConfig, func() ([][]float32, error) {
				return d.embedder.EmbedBatch(ctx, texts)
			})
		},
		func() ([][]float32, error) {
			return nil, engineerr.TransientBackendOpenError()
		},
	)
	if err == nil {
		for k, idx := range batch.indices {
			results[idx] = DispatchResult{ID: batch.items[k].ID, Embedding: vectors[k]}
		}
		return
	}

	// A permanent failure (bad credentials, missing model, malformed
	// request) will not succeed on a second attempt against the same
	// backend: fan the same error out to every item instead of retrying,
	// so the orchestrator sees it immediately and aborts the session
	// rather than burning per-item retries on a dead backend.
	if engineerr.IsPermanent(err) {
		for k, idx := range batch.indices {
			results[idx] = DispatchResult{ID: batch.items[k].ID, Err: err}
		}
		return
	}

	// Batch failed transiently as a whole. Retry each item individually
	// once; anything still failing is logged by the caller and marked
	// skipped, never propagated as a fatal error for the whole run.
	d.retryIndividually(ctx, batch, results, err)
}

// dispatchBatchStream is dispatchBatch's counterpart for DispatchStream: it
// writes each item's DispatchResult to out as soon as it's known, rather
// than into a shared indexed slice.
func (d *Dispatcher) dispatchBatchStream(ctx context.Context, batch indexedBatch, out chan<- DispatchResult) {
	texts := make([]string, len(batch.items))
	for i, it := range batch.items {
		texts[i] = it.Text
	}

	vectors, err := engineerr.CircuitExecuteWithResult(d.breaker,
		func() ([][]float32, error) {
			return engineerr.RetryWithResult(ctx, d.retryConfig, func() ([][]float32, error) {
				return d.embedder.EmbedBatch(ctx, texts)
			})
		},
		func() ([][]float32, error) {
			return nil, engineerr.TransientBackendOpenError()
		},
	)
	if err == nil {
		for k, it := range batch.items {
			out <- DispatchResult{ID: it.ID, Embedding: vectors[k]}
		}
		return
	}

	if engineerr.IsPermanent(err) {
		for _, it := range batch.items {
			out <- DispatchResult{ID: it.ID, Err: err}
		}
		return
	}

	var wg sync.WaitGroup
	for _, it := range batch.items {
		wg.Add(1)
		go func(item DispatchItem) {
			defer wg.Done()
			vec, rerr := d.embedder.Embed(ctx, item.Text)
			if rerr != nil {
				out <- DispatchResult{ID: item.ID, Err: fmt.Errorf("retry after batch failure (%v): %w", err, rerr)}
				return
			}
			out <- DispatchResult{ID: item.ID, Embedding: vec}
		}(it)
	}
	wg.Wait()
}

func (d *Dispatcher) retryIndividually(ctx context.Context, batch indexedBatch, results []DispatchResult, batchErr error) {
	var wg sync.WaitGroup
	for k, idx := range batch.indices {
		wg.Add(1)
		go func(k, idx int) {
			defer wg.Done()
			item := batch.items[k]
			vec, err := d.embedder.Embed(ctx, item.Text)
			if err != nil {
				results[idx] = DispatchResult{
					ID:  item.ID,
					Err: fmt.Errorf("retry after batch failure (%v): %w", batchErr, err),
				}
				return
			}
			results[idx] = DispatchResult{ID: item.ID, Embedding: vec}
		}(k, idx)
	}
	wg.Wait()
}

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/metrics"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

const (
	minWorkers = 1
	maxWorkers = 10

	// queue buffer; listing blocks when fetching falls this far behind
	queueDepth = 4096
)

// BodyFetcher fetches one full conversation body. Satisfied by
// *transport.Client.
type BodyFetcher interface {
	FetchConversation(ctx context.Context, id string) (*transport.ConversationBody, error)
}

// ArtifactWriter persists a fetched conversation. Satisfied by
// *archive.Writer.
type ArtifactWriter interface {
	WriteConversation(body *transport.ConversationBody) error
}

// FetchPool drains a queue of pending conversations with a fixed number of
// workers. Items are enqueued as listing discovers them; workers fetch the
// body, write its artifacts, and report an Outcome. Workers exit once the
// queue is closed and empty, and the outcome channel closes after the last
// worker returns.
type FetchPool struct {
	workers int
	fetcher BodyFetcher
	writer  ArtifactWriter

	queue    chan Item
	outcomes chan Outcome
	wg       sync.WaitGroup
}

func NewFetchPool(workers int, fetcher BodyFetcher, writer ArtifactWriter) *FetchPool {
	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	return &FetchPool{
		workers:  workers,
		fetcher:  fetcher,
		writer:   writer,
		queue:    make(chan Item, queueDepth),
		outcomes: make(chan Outcome, queueDepth),
	}
}

func (p *FetchPool) Start(ctx context.Context) {
	logger.Log.Debug("starting fetch pool", zap.Int("workers", p.workers))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	go func() {
		p.wg.Wait()
		close(p.outcomes)
	}()
}

// Submit enqueues a pending item. It blocks when the queue is full unless
// the run is being cancelled.
func (p *FetchPool) Submit(ctx context.Context, it Item) error {
	select {
	case p.queue <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the queue closed: no further Submit calls are allowed, and
// workers exit once the remaining items drain.
func (p *FetchPool) Close() {
	close(p.queue)
}

func (p *FetchPool) Outcomes() <-chan Outcome {
	return p.outcomes
}

func (p *FetchPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case it, ok := <-p.queue:
			if !ok {
				return
			}
			p.outcomes <- p.process(ctx, it)
		case <-ctx.Done():
			return
		}
	}
}

func (p *FetchPool) process(ctx context.Context, it Item) Outcome {
	metrics.FetchesInFlight.Inc()
	defer metrics.FetchesInFlight.Dec()

	start := time.Now()
	body, err := p.fetcher.FetchConversation(ctx, it.Conv.ID)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return Outcome{Item: it, Status: store.StatusError, Err: err}
	}

	if err := p.writer.WriteConversation(body); err != nil {
		return Outcome{Item: it, Status: store.StatusError, Err: fmt.Errorf("persistence: %w", err)}
	}

	return Outcome{
		Item:   it,
		Status: store.StatusUpdated,
		Body:   body,
	}
}

package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

// PageSource lists one page of conversation headers. Satisfied by
// *transport.Client.
type PageSource interface {
	ListPage(ctx context.Context, offset, limit int) (*transport.Page, error)
}

// Lister fetches inventory pages, degrading the page size through a
// fallback ladder when the remote rejects the requested limit.
type Lister struct {
	src    PageSource
	limit  int
	ladder []int
}

func NewLister(src PageSource, pageLimit int, fallbacks []int) *Lister {
	return &Lister{src: src, limit: pageLimit, ladder: fallbacks}
}

// ListedPage is a fetched page plus the listing position it covers.
type ListedPage struct {
	Offset         int
	EffectiveLimit int
	Items          []transport.Conversation
	Total          int
	HasMore        bool
	HasMoreSet     bool
	MinUpdateTime  float64
}

// NextOffset is where the page after this one starts.
func (p *ListedPage) NextOffset() int {
	return p.Offset + len(p.Items)
}

// Continues reports whether another page should follow this one. An
// explicit more-data signal wins; otherwise a short page means exhaustion.
func (p *ListedPage) Continues() bool {
	if len(p.Items) == 0 {
		return false
	}
	if p.HasMoreSet {
		return p.HasMore
	}
	return len(p.Items) >= p.EffectiveLimit
}

// FetchPage fetches the page at offset, retrying the same offset with each
// smaller fallback size before failing. Auth failures are not retried: a
// rejected token will not start working at a smaller page size.
func (l *Lister) FetchPage(ctx context.Context, offset int) (*ListedPage, error) {
	limits := append([]int{l.limit}, l.ladder...)

	var lastErr error
	for _, limit := range limits {
		page, err := l.src.ListPage(ctx, offset, limit)
		if err == nil {
			return &ListedPage{
				Offset:         offset,
				EffectiveLimit: limit,
				Items:          page.Items,
				Total:          page.Total,
				HasMore:        page.HasMore,
				HasMoreSet:     page.HasMoreSet,
				MinUpdateTime:  page.MinUpdateTime(),
			}, nil
		}
		if transport.IsAuth(err) || ctx.Err() != nil {
			return nil, err
		}
		logger.Log.Warn("page fetch failed, degrading page size",
			zap.Int("offset", offset),
			zap.Int("limit", limit),
			zap.Error(err),
		)
		lastErr = err
	}
	return nil, fmt.Errorf("all page sizes exhausted at offset %d: %w", offset, lastErr)
}

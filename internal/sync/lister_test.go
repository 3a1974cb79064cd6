package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

type fakeSource struct {
	pages    map[int]*transport.Page
	failures map[int]error // keyed by limit
	calls    []int         // limits requested, in order
}

func (f *fakeSource) ListPage(ctx context.Context, offset, limit int) (*transport.Page, error) {
	f.calls = append(f.calls, limit)
	if err, ok := f.failures[limit]; ok {
		return nil, err
	}
	if pg, ok := f.pages[offset]; ok {
		return pg, nil
	}
	return &transport.Page{}, nil
}

func conv(id string, updateTime float64) transport.Conversation {
	return transport.Conversation{ID: id, Title: "t-" + id, UpdateTime: transport.UnixTime(updateTime)}
}

func TestLister_FetchPageHappyPath(t *testing.T) {
	src := &fakeSource{pages: map[int]*transport.Page{
		0: {Items: []transport.Conversation{conv("a", 300), conv("b", 200)}, Total: 10},
	}}
	l := NewLister(src, 100, []int{50, 28})

	pg, err := l.FetchPage(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 100, pg.EffectiveLimit)
	assert.Equal(t, 2, pg.NextOffset())
	assert.Equal(t, 200.0, pg.MinUpdateTime)
	assert.Equal(t, []int{100}, src.calls)
}

func TestLister_FallsBackThroughSmallerSizes(t *testing.T) {
	rejected := &transport.Error{Op: "list conversations", Kind: transport.KindStatus, Status: 400}
	src := &fakeSource{
		pages: map[int]*transport.Page{
			0: {Items: []transport.Conversation{conv("a", 300)}},
		},
		failures: map[int]error{100: rejected, 50: rejected},
	}
	l := NewLister(src, 100, []int{50, 28})

	pg, err := l.FetchPage(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 28, pg.EffectiveLimit)
	assert.Equal(t, []int{100, 50, 28}, src.calls)
}

func TestLister_AllSizesExhausted(t *testing.T) {
	rejected := &transport.Error{Op: "list conversations", Kind: transport.KindStatus, Status: 400}
	src := &fakeSource{
		failures: map[int]error{100: rejected, 50: rejected, 28: rejected},
	}
	l := NewLister(src, 100, []int{50, 28})

	_, err := l.FetchPage(context.Background(), 0)
	require.Error(t, err)

	var te *transport.Error
	assert.True(t, errors.As(err, &te))
}

func TestLister_AuthErrorIsNotRetried(t *testing.T) {
	denied := &transport.Error{Op: "list conversations", Kind: transport.KindStatus, Status: 401}
	src := &fakeSource{failures: map[int]error{100: denied}}
	l := NewLister(src, 100, []int{50, 28})

	_, err := l.FetchPage(context.Background(), 0)
	require.Error(t, err)

	assert.Equal(t, []int{100}, src.calls)
	assert.True(t, transport.IsAuth(err))
}

func TestListedPage_Continues(t *testing.T) {
	tests := []struct {
		name string
		page ListedPage
		want bool
	}{
		{"explicit has_more true", ListedPage{Items: []transport.Conversation{conv("a", 1)}, EffectiveLimit: 1, HasMore: true, HasMoreSet: true}, true},
		{"explicit has_more false", ListedPage{Items: []transport.Conversation{conv("a", 1)}, EffectiveLimit: 1, HasMore: false, HasMoreSet: true}, false},
		{"full page without signal", ListedPage{Items: []transport.Conversation{conv("a", 1), conv("b", 1)}, EffectiveLimit: 2}, true},
		{"short page without signal", ListedPage{Items: []transport.Conversation{conv("a", 1)}, EffectiveLimit: 2}, false},
		{"empty page", ListedPage{EffectiveLimit: 2, HasMore: true, HasMoreSet: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.Continues())
		})
	}
}

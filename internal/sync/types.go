package sync

import (
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

// Item is one listed conversation routed to the fetch pool. PageIndex ties
// every outcome back to the page that contributed it so the cursor can
// advance in listing order.
type Item struct {
	Conv         transport.Conversation
	ObservedTime float64
	PageIndex    int
}

// Outcome is the terminal result of one body fetch.
type Outcome struct {
	Item   Item
	Status store.RunStatus // updated or error
	Body   *transport.ConversationBody
	Err    error
}

// Progress is one progress sink event. Target is a best-effort total that
// only becomes exact once listing finishes.
type Progress struct {
	Processed int     `json:"processed"`
	Target    int     `json:"target"`
	Phase     string  `json:"phase"`
	Percent   float64 `json:"percent"`
}

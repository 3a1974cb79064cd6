package sync

import (
	"time"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
)

// ModeDecision is the outcome of choosing between a full and a partial
// inventory pass, including where listing starts.
type ModeDecision struct {
	FullInventory bool
	StartOffset   int
	Reason        string
}

// ChooseMode decides whether the run needs a full inventory pass. First
// matching rule wins:
//
//  1. nothing is known locally
//  2. deletion of removed conversations is enabled (partial passes never
//     observe removals)
//  3. no full pass has ever completed
//  4. the last full pass is older than fullInterval
//
// Otherwise a partial pass suffices. A full pass resumes at the persisted
// cursor offset when the cursor is younger than cursorMaxAge; a partial
// pass always starts at offset 0.
func ChooseMode(state *store.SyncState, deleteRemoved bool, fullInterval, cursorMaxAge time.Duration, now time.Time) ModeDecision {
	dec := ModeDecision{}

	switch {
	case len(state.Watermarks) == 0:
		dec.FullInventory = true
		dec.Reason = "no local state"
	case deleteRemoved:
		dec.FullInventory = true
		dec.Reason = "deletion of removed conversations enabled"
	case state.LastFullInventoryAt.IsZero():
		dec.FullInventory = true
		dec.Reason = "no completed full inventory"
	case now.Sub(state.LastFullInventoryAt) > fullInterval:
		dec.FullInventory = true
		dec.Reason = "full inventory stale"
	default:
		dec.Reason = "recent full inventory"
		return dec
	}

	if cur := state.Cursor; cur != nil {
		if now.Sub(cur.UpdatedAt) <= cursorMaxAge {
			dec.StartOffset = cur.Offset
		}
	}
	return dec
}

func (d ModeDecision) Mode() string {
	if d.FullInventory {
		return "full"
	}
	return "partial"
}

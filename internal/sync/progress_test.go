package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_TargetGrowsWithListing(t *testing.T) {
	tr := NewTracker(nil)

	tr.PageListed(50, 0)
	assert.Equal(t, 50, tr.Snapshot().Target)

	// A total hint larger than what is listed wins.
	tr.PageListed(50, 500)
	assert.Equal(t, 500, tr.Snapshot().Target)

	// Listing past a stale hint keeps the target monotonic.
	tr2 := NewTracker(nil)
	tr2.PageListed(100, 80)
	assert.Equal(t, 100, tr2.Snapshot().Target)
}

func TestTracker_CapsBelowFullUntilListingDone(t *testing.T) {
	tr := NewTracker(nil)

	tr.PageListed(10, 10)
	for i := 0; i < 10; i++ {
		tr.ItemDone()
	}

	p := tr.Snapshot()
	assert.Equal(t, 10, p.Processed)
	assert.LessOrEqual(t, p.Percent, 99.0, "100%% requires confirmed listing completion")

	tr.ListingFinished()
	assert.Equal(t, 100.0, tr.Snapshot().Percent)
}

func TestTracker_EmitsToSink(t *testing.T) {
	var events []Progress
	tr := NewTracker(func(p Progress) { events = append(events, p) })

	tr.SetPhase("listing")
	tr.PageListed(5, 0)
	tr.ListingFinished()

	assert.NotEmpty(t, events)
	assert.Equal(t, "listing", events[len(events)-1].Phase)
}

package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustline/internal/events"
	"trustline/internal/ledger"
)

type recordingDropper struct {
	dropped []ledger.Subject
}

func (r *recordingDropper) Invalidate(_ context.Context, subject ledger.Subject) error {
	r.dropped = append(r.dropped, subject)
	return nil
}

func TestCacheInvalidatorDropsSubjectOnEvent(t *testing.T) {
	dropper := &recordingDropper{}
	sink := NewCacheInvalidator(dropper)

	err := sink.Publish(context.Background(), events.Event{
		Type:    events.TypeLoanRepaid,
		Subject: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []ledger.Subject{"alice"}, dropper.dropped)
}

func TestCacheInvalidatorSkipsSubjectlessEvents(t *testing.T) {
	dropper := &recordingDropper{}
	sink := NewCacheInvalidator(dropper)

	require.NoError(t, sink.Publish(context.Background(), events.Event{Type: events.TypeLoanOpened}))
	assert.Empty(t, dropper.dropped)
}

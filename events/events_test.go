package events_test

import (
	"context"
	"testing"

	"anarchy.ttfm/paytr/events"
	"github.com/stretchr/testify/assert"
)

func Test_Events(t *testing.T) {
	t.Run("Bytes", func(t *testing.T) {
		assertions := assert.New(t)

		event := events.Event{Sequence: 1, Kind: events.KindDueDateUpdated, DueDate: 1_700_000_000}
		var decoded events.Event
		err := decoded.FromBytes(event.Bytes())
		assertions.Nil(err, "failed to decode event")
		assertions.Equal(event, decoded)
		assertions.NotContains(string(event.Bytes()), "payer", "unset fields should be omitted")
	})

	t.Run("Multi", func(t *testing.T) {
		assertions := assert.New(t)

		var a, b events.Recorder
		publisher := events.Multi{&a, &b, events.Log{}}
		err := publisher.Publish(context.TODO(),
			events.Event{Kind: events.KindPayment},
			events.Event{Kind: events.KindPayout},
		)
		assertions.Nil(err, "failed to publish")
		assertions.Len(a.Filter(events.KindPayment), 1)
		assertions.Len(b.Filter(events.KindPayout), 1)
	})
}

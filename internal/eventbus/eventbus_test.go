package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := New(zap.NewNop())
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(OpportunityDetected, OpportunityDetectedPayload{MarketID: "m1"})

	events := sub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, OpportunityDetected, events[0].Type)
}

func TestBus_MultipleSubscribersEachGetEvent(t *testing.T) {
	b := New(zap.NewNop())
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	b.Publish(OrderAcked, OrderEventPayload{OrderID: "o1"})

	e1 := s1.Events()
	e2 := s2.Events()
	require.Len(t, e1, 1)
	require.Len(t, e2, 1)
}

func TestBus_SlowSubscriberDropsOldestRatherThanBlocking(t *testing.T) {
	b := New(zap.NewNop())
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < defaultRingSize+10; i++ {
		b.Publish(OrderSubmitted, OrderEventPayload{OrderID: "o"})
	}

	events := sub.Events()
	assert.LessOrEqual(t, len(events), defaultRingSize, "ring never grows past capacity")
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(zap.NewNop())
	sub := b.Subscribe()
	sub.Close()

	b.Publish(FeedDisconnected, FeedStatusPayload{Mode: "push"})
	assert.Empty(t, b.subs)
}

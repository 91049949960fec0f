package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("a", func(ev Event) { got = append(got, "first:"+ev.Payload.(string)) })
	b.Subscribe(All, func(ev Event) { got = append(got, "all:"+ev.Topic) })
	b.Subscribe("a", func(ev Event) { got = append(got, "second:"+ev.Payload.(string)) })
	b.Subscribe("b", func(ev Event) { got = append(got, "b") })

	b.Publish("a", "x")
	assert.Equal(t, []string{"first:x", "all:a", "second:x"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	calls := 0
	unsub := b.Subscribe("t", func(Event) { calls++ })
	b.Publish("t", nil)
	unsub()
	unsub()
	b.Publish("t", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Subscribers("t"))
}

func TestBus_EventCarriesTopicAndTime(t *testing.T) {
	b := New()
	var ev Event
	b.Subscribe(TopicJobUpdated, func(e Event) { ev = e })
	b.Publish(TopicJobUpdated, 42)

	require.Equal(t, TopicJobUpdated, ev.Topic)
	assert.Equal(t, 42, ev.Payload)
	assert.False(t, ev.At.IsZero())
}

func TestBus_NilIsSafe(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() { b.Publish("x", nil) })
}

func TestBus_HandlerMaySubscribe(t *testing.T) {
	b := New()
	nested := 0
	b.Subscribe("t", func(Event) {
		b.Subscribe("u", func(Event) { nested++ })
	})
	b.Publish("t", nil)
	b.Publish("u", nil)
	assert.Equal(t, 1, nested)
}

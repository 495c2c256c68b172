package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luli-tech/task-manager/internal/model"
)

func event(id uint64, msg string) model.Notification {
	return model.Notification{ID: id, UserID: 1, Message: msg}
}

func recv(t *testing.T, sub *Subscriber) (model.Notification, bool) {
	t.Helper()
	select {
	case n, ok := <-sub.Events():
		return n, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.Notification{}, false
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	h := New(8)
	sub := h.Subscribe(1)

	h.Publish(1, event(10, "first"))
	h.Publish(1, event(11, "second"))
	h.Publish(1, event(12, "third"))

	for i, want := range []string{"first", "second", "third"} {
		n, ok := recv(t, sub)
		require.True(t, ok, "event %d", i)
		assert.Equal(t, want, n.Message)
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	h := New(8)

	h.Publish(1, event(10, "before"))
	sub := h.Subscribe(1)
	h.Publish(1, event(11, "after"))

	n, ok := recv(t, sub)
	require.True(t, ok)
	assert.Equal(t, "after", n.Message)
	assert.Empty(t, sub.Events())
}

func TestPublishTargetsOnlyOwner(t *testing.T) {
	h := New(8)
	mine := h.Subscribe(1)
	other := h.Subscribe(2)

	h.Publish(1, event(10, "private"))

	n, ok := recv(t, mine)
	require.True(t, ok)
	assert.Equal(t, "private", n.Message)
	assert.Empty(t, other.Events())
}

func TestMultipleStreamsEachReceive(t *testing.T) {
	h := New(8)
	a := h.Subscribe(1)
	b := h.Subscribe(1)
	require.Equal(t, 2, h.SubscriberCount(1))

	h.Publish(1, event(10, "fanout"))

	for _, sub := range []*Subscriber{a, b} {
		n, ok := recv(t, sub)
		require.True(t, ok)
		assert.Equal(t, "fanout", n.Message)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New(8)
	sub := h.Subscribe(1)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	assert.Equal(t, 0, h.SubscriberCount(1))

	// Channel is closed; publishing afterwards reaches nobody.
	_, ok := recv(t, sub)
	assert.False(t, ok)
	h.Publish(1, event(10, "dropped"))
}

func TestOverflowDetachesOnlySlowSubscriber(t *testing.T) {
	h := New(2)
	slow := h.Subscribe(1)
	fast := h.Subscribe(1)

	// The slow subscriber never reads: its buffer of 2 fills, and the
	// third publish detaches it instead of blocking. The fast one is
	// drained after each publish and stays registered.
	var got []string
	for _, msg := range []string{"a", "b", "c"} {
		h.Publish(1, event(10, msg))
		n, ok := recv(t, fast)
		require.True(t, ok)
		got = append(got, n.Message)
	}

	assert.Equal(t, 1, h.SubscriberCount(1))
	assert.Equal(t, []string{"a", "b", "c"}, got)

	// Buffered events are still drainable, then the channel is closed.
	for _, want := range []string{"a", "b"} {
		n, ok := recv(t, slow)
		require.True(t, ok)
		assert.Equal(t, want, n.Message)
	}
	_, ok := recv(t, slow)
	assert.False(t, ok)
}

func TestCloseTearsDownAllSubscribers(t *testing.T) {
	h := New(8)
	a := h.Subscribe(1)
	b := h.Subscribe(2)

	h.Close()
	h.Close() // second close is a no-op

	for _, sub := range []*Subscriber{a, b} {
		_, ok := recv(t, sub)
		assert.False(t, ok)
	}

	// After shutdown, new subscribers get an already-closed channel.
	late := h.Subscribe(3)
	_, ok := recv(t, late)
	assert.False(t, ok)
	assert.Equal(t, 0, h.SubscriberCount(3))
	h.Publish(1, event(10, "ignored"))
}

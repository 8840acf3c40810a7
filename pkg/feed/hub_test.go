package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcast(t *testing.T) {
	h := newHub[int]()
	a := h.Subscribe(4)
	b := h.Subscribe(4)

	h.Broadcast(1)
	h.Broadcast(2)

	assert.Equal(t, 1, <-a.ch)
	assert.Equal(t, 2, <-a.ch)
	assert.Equal(t, 1, <-b.ch)

	h.Unsubscribe(a)
	h.Broadcast(3)
	// Unsubscribed channel is closed and receives nothing further.
	_, open := <-a.ch
	assert.False(t, open)
	assert.Equal(t, 2, <-b.ch)
	assert.Equal(t, 3, <-b.ch)
}

func TestHubSlowSubscriberDropsMessages(t *testing.T) {
	h := newHub[int]()
	slow := h.Subscribe(1)

	h.Broadcast(1)
	h.Broadcast(2) // dropped, buffer full

	require.Equal(t, 1, <-slow.ch)
	select {
	case v := <-slow.ch:
		t.Fatalf("expected no buffered value, got %d", v)
	default:
	}
}

package sse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesEveryClient(t *testing.T) {
	b := NewBroker()
	a := make(chan Event, 1)
	c := make(chan Event, 1)
	b.Register(a)
	b.Register(c)
	assert.Equal(t, 2, b.GetTotalClientCount())

	b.Broadcast(Event{Type: "sync.board", Data: map[string]string{"status": "success"}})

	for _, ch := range []chan Event{a, c} {
		select {
		case got := <-ch:
			assert.Equal(t, "sync.board", got.Type)
			raw, ok := got.Data.(json.RawMessage)
			require.True(t, ok, "data is pre-marshaled for fan-out")
			var payload map[string]string
			require.NoError(t, json.Unmarshal(raw, &payload))
			assert.Equal(t, "success", payload["status"])
		default:
			t.Fatal("client did not receive the event")
		}
	}
}

func TestBroadcastSkipsBlockedClient(t *testing.T) {
	b := NewBroker()
	full := make(chan Event) // unbuffered and never read
	ok := make(chan Event, 1)
	b.Register(full)
	b.Register(ok)

	// Must not block even though one client can't keep up.
	b.Broadcast(Event{Type: "sync.crm", Data: "x"})

	select {
	case got := <-ok:
		assert.Equal(t, "sync.crm", got.Type)
	default:
		t.Fatal("healthy client should still receive the event")
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	b := NewBroker()
	ch := make(chan Event, 1)
	b.Register(ch)
	b.Unregister(ch)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.GetTotalClientCount())

	// Unregistering twice is a no-op, not a double close.
	b.Unregister(ch)
}

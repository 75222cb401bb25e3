package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ToFut/Tredy-sub001/pkg/runtime"
)

// closedConn returns a Conn whose writes are no-ops
func closedConn(id string) *Conn {
	return &Conn{ID: id, closed: true}
}

func TestWorkspaceRegistry(t *testing.T) {
	t.Run("should track connections per workspace", func(t *testing.T) {
		r := NewWorkspaceRegistry()
		a := closedConn("a")
		b := closedConn("b")

		r.Register("ws-1", a)
		r.Register("ws-1", b)
		r.Register("ws-2", closedConn("c"))
		assert.Equal(t, 3, r.Count())

		r.Unregister("ws-1", a)
		assert.Equal(t, 2, r.Count())

		r.Unregister("ws-1", b)
		r.Unregister("ws-2", closedConn("other"))
		assert.Equal(t, 1, r.Count())
	})

	t.Run("should tolerate unregistering unknown workspaces", func(t *testing.T) {
		r := NewWorkspaceRegistry()
		r.Unregister("nope", closedConn("x"))
		assert.Equal(t, 0, r.Count())
	})

	t.Run("should deliver only to the named workspace", func(t *testing.T) {
		r := NewWorkspaceRegistry()
		r.Register("ws-1", closedConn("a"))

		// Closed connections swallow writes; this must not panic or block
		r.Deliver("ws-1", runtime.Event{Type: runtime.EventStatusResponse, Content: "ping"})
		r.Deliver("ws-unknown", runtime.Event{Type: runtime.EventStatusResponse, Content: "ping"})
	})
}

func TestParseInbound(t *testing.T) {
	t.Run("should extract feedback envelopes", func(t *testing.T) {
		msgType, content := parseInbound([]byte(`{"type":"awaitingFeedback","feedback":"looks good"}`))
		assert.Equal(t, "awaitingFeedback", msgType)
		assert.Equal(t, "looks good", content)
	})

	t.Run("should extract chat envelopes", func(t *testing.T) {
		msgType, content := parseInbound([]byte(`{"type":"chat","message":"stop"}`))
		assert.Equal(t, "chat", msgType)
		assert.Equal(t, "stop", content)
	})

	t.Run("should accept bare string frames", func(t *testing.T) {
		_, content := parseInbound([]byte(`"exit"`))
		assert.Equal(t, "exit", content)
	})

	t.Run("should fall back to the raw frame", func(t *testing.T) {
		_, content := parseInbound([]byte(`/reset`))
		assert.Equal(t, "/reset", content)
	})
}

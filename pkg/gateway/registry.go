package gateway

import (
	"sync"

	"github.com/ToFut/Tredy-sub001/internal/observability"
	"github.com/ToFut/Tredy-sub001/pkg/runtime"
)

// WorkspaceRegistry tracks live connections by workspace for
// out-of-band event delivery. It is an injected service so tests and
// other subsystems can hold isolated instances.
type WorkspaceRegistry struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]bool
}

// NewWorkspaceRegistry creates an empty registry
func NewWorkspaceRegistry() *WorkspaceRegistry {
	observability.EnsureRegistered()
	return &WorkspaceRegistry{
		conns: make(map[string]map[*Conn]bool),
	}
}

// Register adds a connection under the workspace
func (r *WorkspaceRegistry) Register(workspaceID string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[workspaceID] == nil {
		r.conns[workspaceID] = make(map[*Conn]bool)
	}
	r.conns[workspaceID][conn] = true
	observability.SetConnectedClients(r.countLocked())
}

// Unregister removes a connection; empty workspace buckets are dropped
func (r *WorkspaceRegistry) Unregister(workspaceID string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bucket := r.conns[workspaceID]; bucket != nil {
		delete(bucket, conn)
		if len(bucket) == 0 {
			delete(r.conns, workspaceID)
		}
	}
	observability.SetConnectedClients(r.countLocked())
}

// Deliver pushes an event to every connection of the workspace.
// Delivery is fire-and-forget; write failures are the connection's
// problem, not the sender's.
func (r *WorkspaceRegistry) Deliver(workspaceID string, event runtime.Event) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns[workspaceID]))
	for conn := range r.conns[workspaceID] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.Emit(event)
	}
}

// Count returns the total number of registered connections
func (r *WorkspaceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked()
}

func (r *WorkspaceRegistry) countLocked() int {
	total := 0
	for _, bucket := range r.conns {
		total += len(bucket)
	}
	return total
}

package realtime

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Conn is a live subscriber connection.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// Open reports whether the connection can still accept messages.
	Open() bool
	// Send writes one text message, honouring the context deadline.
	Send(ctx context.Context, msg []byte) error
	// Close terminates the connection. It is safe to call more than once.
	Close() error
}

// Registry maps organization IDs to their live connections.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string][]Conn
	total int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string][]Conn)}
}

// Register adds conn to the bucket of organizationID. Registering the same
// connection twice keeps both entries.
func (r *Registry) Register(conn Conn, organizationID string) {
	r.mu.Lock()
	r.conns[organizationID] = append(r.conns[organizationID], conn)
	r.total++
	total := r.total
	r.mu.Unlock()

	activeConnections.Set(float64(total))
	slog.Debug("subscriber registered",
		"organization_id", organizationID,
		"conn_id", conn.ID(),
		"total", total,
	)
}

// Unregister removes the first entry of conn from the bucket of
// organizationID. It reports whether an entry was removed; removing an
// unknown connection is a no-op.
func (r *Registry) Unregister(conn Conn, organizationID string) bool {
	r.mu.Lock()
	bucket := r.conns[organizationID]
	idx := slices.IndexFunc(bucket, func(c Conn) bool { return c == conn })
	if idx < 0 {
		r.mu.Unlock()
		slog.Debug("subscriber not registered",
			"organization_id", organizationID,
			"conn_id", conn.ID(),
		)
		return false
	}

	bucket = slices.Delete(bucket, idx, idx+1)
	if len(bucket) == 0 {
		delete(r.conns, organizationID)
	} else {
		r.conns[organizationID] = bucket
	}
	r.total--
	total := r.total
	r.mu.Unlock()

	activeConnections.Set(float64(total))
	slog.Debug("subscriber unregistered",
		"organization_id", organizationID,
		"conn_id", conn.ID(),
		"total", total,
	)
	return true
}

// Connections returns a snapshot of the connections of organizationID.
// The returned slice is owned by the caller.
func (r *Registry) Connections(organizationID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.conns[organizationID])
}

// Count returns the number of entries registered for organizationID.
func (r *Registry) Count(organizationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[organizationID])
}

// Total returns the number of entries across all organizations.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// CloseAll closes every registered connection. Entries stay registered
// until their owners unregister them.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]Conn, 0, r.total)
	for _, bucket := range r.conns {
		all = append(all, bucket...)
	}
	r.mu.RUnlock()

	for _, conn := range all {
		if err := conn.Close(); err != nil {
			slog.Debug("failed to close subscriber", "conn_id", conn.ID(), "error", err)
		}
	}
	if len(all) > 0 {
		slog.Info("closed subscriber connections", "count", len(all))
	}
}

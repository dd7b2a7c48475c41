package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() Event {
	return NewIncidentCreated(&domain.Incident{
		ID:          "inc-1",
		Title:       "API down",
		Description: "Requests fail",
		Status:      domain.IncidentStatusInvestigating,
		Impact:      domain.IncidentImpactMajor,
		ServiceID:   "svc-1",
		CreatedAt:   time.Date(2024, 1, 22, 10, 0, 0, 123456000, time.UTC),
	})
}

func newTestDispatcher(registry *Registry) *Dispatcher {
	return NewDispatcher(registry, DispatcherConfig{
		SendTimeout:        100 * time.Millisecond,
		MaxConcurrentSends: 4,
	})
}

func TestDispatcher_NoSubscribersIsNoop(t *testing.T) {
	registry := NewRegistry()
	dispatcher := newTestDispatcher(registry)

	assert.NotPanics(t, func() {
		dispatcher.BroadcastToOrganization(context.Background(), "org-a", testEvent())
	})
	assert.Equal(t, 0, registry.Total())
}

func TestDispatcher_DeliversOnlyToOrganization(t *testing.T) {
	// Arrange
	registry := NewRegistry()
	dispatcher := newTestDispatcher(registry)
	a1, a2, b1 := newFakeConn(), newFakeConn(), newFakeConn()
	registry.Register(a1, "org-a")
	registry.Register(a2, "org-a")
	registry.Register(b1, "org-b")

	// Act
	dispatcher.BroadcastToOrganization(context.Background(), "org-a", testEvent())

	// Assert
	assert.Len(t, a1.messages(), 1)
	assert.Len(t, a2.messages(), 1)
	assert.Empty(t, b1.messages())
	assert.Equal(t, a1.messages()[0], a2.messages()[0], "payload serialized once")
}

func TestDispatcher_PrunesClosedConnections(t *testing.T) {
	// Arrange
	registry := NewRegistry()
	dispatcher := newTestDispatcher(registry)
	open1, open2, closed := newFakeConn(), newFakeConn(), newFakeConn()
	closed.closed.Store(true)
	registry.Register(open1, "org-a")
	registry.Register(closed, "org-a")
	registry.Register(open2, "org-a")

	// Act
	dispatcher.BroadcastToOrganization(context.Background(), "org-a", testEvent())

	// Assert
	assert.Len(t, open1.messages(), 1)
	assert.Len(t, open2.messages(), 1)
	assert.Empty(t, closed.messages())
	assert.Equal(t, 2, registry.Count("org-a"), "closed connection is unregistered")
	assert.ElementsMatch(t, []Conn{open1, open2}, registry.Connections("org-a"))
	assert.EqualValues(t, 0, closed.closeCalls.Load(), "already closed connections are not closed again")
}

func TestDispatcher_RemovesFailedConnections(t *testing.T) {
	// Arrange
	registry := NewRegistry()
	dispatcher := newTestDispatcher(registry)
	healthy, broken := newFakeConn(), newFakeConn()
	broken.sendErr = errSendFailed
	registry.Register(healthy, "org-a")
	registry.Register(broken, "org-a")

	// Act
	dispatcher.BroadcastToOrganization(context.Background(), "org-a", testEvent())

	// Assert
	assert.Len(t, healthy.messages(), 1)
	assert.Equal(t, []Conn{healthy}, registry.Connections("org-a"))
	assert.EqualValues(t, 1, broken.closeCalls.Load())
	assert.EqualValues(t, 0, healthy.closeCalls.Load())
}

func TestDispatcher_SlowSubscriberTimesOut(t *testing.T) {
	// Arrange
	registry := NewRegistry()
	dispatcher := newTestDispatcher(registry)
	fast, slow := newFakeConn(), newFakeConn()
	slow.block = true
	registry.Register(slow, "org-a")
	registry.Register(fast, "org-a")

	// Act
	start := time.Now()
	dispatcher.BroadcastToOrganization(context.Background(), "org-a", testEvent())
	elapsed := time.Since(start)

	// Assert
	assert.Less(t, elapsed, 2*time.Second, "broadcast bounded by the send timeout")
	assert.Len(t, fast.messages(), 1)
	assert.Equal(t, []Conn{fast}, registry.Connections("org-a"))
}

func TestDispatcher_IgnoresRequestCancellation(t *testing.T) {
	registry := NewRegistry()
	dispatcher := newTestDispatcher(registry)
	conn := newFakeConn()
	registry.Register(conn, "org-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dispatcher.BroadcastToOrganization(ctx, "org-a", testEvent())

	assert.Len(t, conn.messages(), 1)
}

func TestDispatcher_ToleratesConnectionAlreadyRemoved(t *testing.T) {
	registry := NewRegistry()
	dispatcher := newTestDispatcher(registry)
	broken := newFakeConn()
	broken.sendErr = errSendFailed
	// The owning handler unregisters while the send is in flight.
	broken.onSend = func() { registry.Unregister(broken, "org-a") }
	registry.Register(broken, "org-a")

	assert.NotPanics(t, func() {
		dispatcher.BroadcastToOrganization(context.Background(), "org-a", testEvent())
	})

	assert.Equal(t, 0, registry.Count("org-a"))
	assert.EqualValues(t, 1, broken.closeCalls.Load())
}

func TestDispatcher_ManySubscribersBoundedConcurrency(t *testing.T) {
	registry := NewRegistry()
	dispatcher := newTestDispatcher(registry)

	conns := make([]*fakeConn, 25)
	for i := range conns {
		conns[i] = newFakeConn()
		if i%5 == 0 {
			conns[i].sendErr = errSendFailed
		}
		registry.Register(conns[i], "org-a")
	}

	dispatcher.BroadcastToOrganization(context.Background(), "org-a", testEvent())

	assert.Equal(t, 20, registry.Count("org-a"))
	for i, c := range conns {
		if i%5 == 0 {
			assert.Empty(t, c.messages())
			continue
		}
		require.Len(t, c.messages(), 1)
		var decoded Event
		require.NoError(t, json.Unmarshal(c.messages()[0], &decoded))
		assert.Equal(t, EventIncidentCreated, decoded.Type)
	}
}

package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"golang.org/x/sync/errgroup"
)

// DispatcherConfig contains broadcast settings.
type DispatcherConfig struct {
	SendTimeout        time.Duration
	MaxConcurrentSends int
}

// DefaultDispatcherConfig returns default broadcast settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SendTimeout:        5 * time.Second,
		MaxConcurrentSends: 64,
	}
}

// Dispatcher fans events out to the subscribers of one organization.
type Dispatcher struct {
	registry *Registry
	config   DispatcherConfig
}

// NewDispatcher creates a dispatcher reading connections from registry.
func NewDispatcher(registry *Registry, config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		config:   config,
	}
}

// BroadcastToOrganization serializes event once and sends it to every open
// connection of organizationID. Connections found closed and connections
// whose send fails are unregistered after the pass, and failed ones are
// closed. Failures are logged, never returned.
func (d *Dispatcher) BroadcastToOrganization(ctx context.Context, organizationID string, event Event) {
	logger := ctxlog.FromContext(ctx).With("organization_id", organizationID, "event_type", event.Type)

	conns := d.registry.Connections(organizationID)
	if len(conns) == 0 {
		logger.Debug("no subscribers for broadcast")
		return
	}

	payload, err := Encode(event)
	if err != nil {
		logger.Error("failed to encode event", "error", err)
		return
	}

	broadcastsTotal.WithLabelValues(event.Type).Inc()

	// Delivery must not be cut short by the originating request finishing.
	sendCtx := context.WithoutCancel(ctx)

	var (
		mu     sync.Mutex
		failed []Conn
		stale  []Conn
		sent   int
	)

	var g errgroup.Group
	g.SetLimit(d.config.MaxConcurrentSends)

	for _, conn := range conns {
		if !conn.Open() {
			messagesSent.WithLabelValues(resultSkipped).Inc()
			stale = append(stale, conn)
			continue
		}

		g.Go(func() error {
			err := d.send(sendCtx, conn, payload)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("failed to deliver event", "conn_id", conn.ID(), "error", err)
				failed = append(failed, conn)
				return nil
			}
			sent++
			return nil
		})
	}
	_ = g.Wait()

	for _, conn := range stale {
		d.registry.Unregister(conn, organizationID)
	}
	for _, conn := range failed {
		d.registry.Unregister(conn, organizationID)
		if err := conn.Close(); err != nil {
			logger.Debug("failed to close subscriber", "conn_id", conn.ID(), "error", err)
		}
	}

	logger.Debug("broadcast finished",
		"subscribers", len(conns),
		"delivered", sent,
		"failed", len(failed),
		"skipped", len(stale),
	)
}

func (d *Dispatcher) send(ctx context.Context, conn Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	start := time.Now()
	err := conn.Send(ctx, payload)
	sendDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		messagesSent.WithLabelValues(resultFailed).Inc()
		return err
	}
	messagesSent.WithLabelValues(resultDelivered).Inc()
	return nil
}

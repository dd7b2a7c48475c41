//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// subscribe opens a subscriber connection for orgID and waits until the
// server has registered it.
func subscribe(t *testing.T, orgID string) *websocket.Conn {
	t.Helper()

	before := testApp.Registry().Count(orgID)
	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/api/v1/ws/" + orgID

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return testApp.Registry().Count(orgID) > before
	}, 5*time.Second, 10*time.Millisecond)

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)

	var event wsEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestRealtime_EventsReachSubscribers(t *testing.T) {
	tn := newTenant(t, "Live Co")
	tn.Client.SetT(t)
	service := tn.createService(t, "Gateway", "")

	conn := subscribe(t, tn.Org.ID)

	t.Run("status change", func(t *testing.T) {
		tn.Client.SetT(t)
		tn.changeStatus(t, service.ID, domain.ServiceStatusDegraded, "packet loss")

		event := readEvent(t, conn)
		require.Equal(t, "SERVICE_STATUS_CHANGED", event.Type)

		var data struct {
			ID        string  `json:"id"`
			Name      string  `json:"name"`
			OldStatus string  `json:"old_status"`
			NewStatus string  `json:"new_status"`
			Notes     *string `json:"notes"`
			UpdatedAt string  `json:"updated_at"`
		}
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, service.ID, data.ID)
		assert.Equal(t, "Gateway", data.Name)
		assert.Equal(t, "operational", data.OldStatus)
		assert.Equal(t, "degraded", data.NewStatus)
		require.NotNil(t, data.Notes)
		assert.Equal(t, "packet loss", *data.Notes)
		assert.True(t, strings.HasSuffix(data.UpdatedAt, "+00:00"), data.UpdatedAt)
	})

	var incident domain.Incident
	t.Run("incident created", func(t *testing.T) {
		tn.Client.SetT(t)
		incident = tn.createIncident(t, service.ID, "Gateway timeouts")

		event := readEvent(t, conn)
		require.Equal(t, "INCIDENT_CREATED", event.Type)

		var data struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Status    string `json:"status"`
			Impact    string `json:"impact"`
			ServiceID string `json:"service_id"`
		}
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, incident.ID, data.ID)
		assert.Equal(t, "Gateway timeouts", data.Title)
		assert.Equal(t, "investigating", data.Status)
		assert.Equal(t, "major", data.Impact)
		assert.Equal(t, service.ID, data.ServiceID)
	})

	t.Run("incident updated", func(t *testing.T) {
		tn.Client.SetT(t)
		update := tn.postUpdate(t, incident.ID, domain.IncidentStatusResolved, "Timeouts gone")

		event := readEvent(t, conn)
		require.Equal(t, "INCIDENT_UPDATED", event.Type)

		var data struct {
			ID         string  `json:"id"`
			IncidentID string  `json:"incident_id"`
			Message    string  `json:"message"`
			Status     string  `json:"status"`
			ResolvedAt *string `json:"resolved_at"`
		}
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, update.ID, data.ID)
		assert.Equal(t, incident.ID, data.IncidentID)
		assert.Equal(t, "Timeouts gone", data.Message)
		assert.Equal(t, "resolved", data.Status)
		assert.NotNil(t, data.ResolvedAt)
	})
}

func TestRealtime_EventsStayInsideOrganization(t *testing.T) {
	source := newTenant(t, "Loud Co")
	quiet := newTenant(t, "Quiet Co")

	quietConn := subscribe(t, quiet.Org.ID)
	sourceConn := subscribe(t, source.Org.ID)

	source.Client.SetT(t)
	service := source.createService(t, "Mailer", "")
	source.changeStatus(t, service.ID, domain.ServiceStatusPartialOutage, "")

	event := readEvent(t, sourceConn)
	assert.Equal(t, "SERVICE_STATUS_CHANGED", event.Type)

	require.NoError(t, quietConn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := quietConn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if assert.ErrorAs(t, err, &netErr) {
		assert.True(t, netErr.Timeout())
	}
}

func TestRealtime_UppercaseOrganizationIDReceivesEvents(t *testing.T) {
	tn := newTenant(t, "Shouty Co")
	tn.Client.SetT(t)
	service := tn.createService(t, "Pager", "")

	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/api/v1/ws/" + strings.ToUpper(tn.Org.ID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return testApp.Registry().Count(tn.Org.ID) == 1
	}, 5*time.Second, 10*time.Millisecond)

	tn.changeStatus(t, service.ID, domain.ServiceStatusDegraded, "")

	event := readEvent(t, conn)
	assert.Equal(t, "SERVICE_STATUS_CHANGED", event.Type)
}

func TestRealtime_DisconnectUnregisters(t *testing.T) {
	tn := newTenant(t, "Flaky Co")

	conn := subscribe(t, tn.Org.ID)
	require.Equal(t, 1, testApp.Registry().Count(tn.Org.ID))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	assert.Eventually(t, func() bool {
		return testApp.Registry().Count(tn.Org.ID) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRealtime_SubscribeErrors(t *testing.T) {
	tests := []struct {
		name       string
		orgID      string
		wantStatus int
	}{
		{name: "unknown organization", orgID: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "invalid organization id", orgID: "not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/api/v1/ws/" + tt.orgID

			conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if conn != nil {
				_ = conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}

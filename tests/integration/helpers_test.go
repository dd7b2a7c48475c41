//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/testutil"
	"github.com/stretchr/testify/require"
)

const adminPassword = "admin-password-123"

// tenant is an organization created through the public API together with
// a client logged in as its administrator.
type tenant struct {
	Org    domain.Organization
	Admin  domain.User
	Client *testutil.Client
}

// newTenant signs up a fresh organization and logs in as its admin.
func newTenant(t *testing.T, name string) *tenant {
	t.Helper()

	subdomain := testutil.RandomSubdomain("org")
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/organizations", map[string]string{
		"name":            name,
		"subdomain":       subdomain,
		"admin_email":     testutil.RandomEmail("admin", subdomain+".example.com"),
		"admin_password":  adminPassword,
		"admin_full_name": name + " Admin",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			Organization domain.Organization `json:"organization"`
			Admin        domain.User         `json:"admin"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	client.LoginAs(t, result.Data.Admin.Email, adminPassword)

	return &tenant{
		Org:    result.Data.Organization,
		Admin:  result.Data.Admin,
		Client: client,
	}
}

// createService creates a service in the tenant's organization.
func (tn *tenant) createService(t *testing.T, name string, status domain.ServiceStatus) domain.Service {
	t.Helper()

	payload := map[string]interface{}{
		"name":            name,
		"organization_id": tn.Org.ID,
	}
	if status != "" {
		payload["status"] = status
	}

	resp, err := tn.Client.POST("/api/v1/services", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeData[domain.Service](t, resp)
}

// changeStatus transitions a service and returns the updated record.
func (tn *tenant) changeStatus(t *testing.T, serviceID string, status domain.ServiceStatus, notes string) domain.Service {
	t.Helper()

	resp, err := tn.Client.POST("/api/v1/services/"+serviceID+"/status", map[string]interface{}{
		"status": status,
		"notes":  notes,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return decodeData[domain.Service](t, resp)
}

// createIncident opens an incident authored by the tenant's admin.
func (tn *tenant) createIncident(t *testing.T, serviceID, title string) domain.Incident {
	t.Helper()

	resp, err := tn.Client.POST("/api/v1/incidents", map[string]interface{}{
		"title":       title,
		"description": "Investigating reports of errors",
		"service_id":  serviceID,
		"impact":      "major",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeData[domain.Incident](t, resp)
}

// postUpdate posts an incident update and returns it.
func (tn *tenant) postUpdate(t *testing.T, incidentID string, status domain.IncidentStatus, message string) domain.IncidentUpdate {
	t.Helper()

	resp, err := tn.Client.POST("/api/v1/incidents/"+incidentID+"/updates", map[string]interface{}{
		"message": message,
		"status":  status,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeData[domain.IncidentUpdate](t, resp)
}

// getIncident fetches an incident through the public API.
func (tn *tenant) getIncident(t *testing.T, id string) domain.Incident {
	t.Helper()

	resp, err := tn.Client.GET("/api/v1/incidents/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return decodeData[domain.Incident](t, resp)
}

// decodeData decodes a {"data": ...} envelope.
func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var result struct {
		Data T `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// decodeError returns the message of an {"error": ...} envelope.
func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()

	var result struct {
		Error struct {
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Error.Message
}

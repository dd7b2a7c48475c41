//go:build integration

package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizations_SignupAndLogin(t *testing.T) {
	tn := newTenant(t, "Acme")

	t.Run("admin is superuser of the new organization", func(t *testing.T) {
		tn.Client.SetT(t)
		resp, err := tn.Client.GET("/api/v1/me")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		me := decodeData[domain.User](t, resp)
		assert.Equal(t, tn.Admin.ID, me.ID)
		assert.Equal(t, tn.Org.ID, me.OrganizationID)
		assert.True(t, me.IsSuperuser)
	})

	t.Run("lookup by subdomain ignores case", func(t *testing.T) {
		client := newTestClient(t)
		resp, err := client.GET("/api/v1/organizations/by-subdomain/" + strings.ToUpper(tn.Org.Subdomain))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		org := decodeData[domain.Organization](t, resp)
		assert.Equal(t, tn.Org.ID, org.ID)
	})

	t.Run("duplicate subdomain is rejected", func(t *testing.T) {
		client := newTestClient(t)
		resp, err := client.POST("/api/v1/organizations", map[string]string{
			"name":            "Copycat",
			"subdomain":       tn.Org.Subdomain,
			"admin_email":     testutil.RandomEmail("copy", "cat.example.com"),
			"admin_password":  adminPassword,
			"admin_full_name": "Copy Cat",
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("failed signup leaves no organization behind", func(t *testing.T) {
		client := newTestClient(t)
		subdomain := testutil.RandomSubdomain("orphan")
		resp, err := client.POST("/api/v1/organizations", map[string]string{
			"name":            "Orphan",
			"subdomain":       subdomain,
			"admin_email":     tn.Admin.Email,
			"admin_password":  adminPassword,
			"admin_full_name": "Orphan Admin",
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		_ = resp.Body.Close()

		resp, err = client.GET("/api/v1/organizations/by-subdomain/" + subdomain)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("wrong password", func(t *testing.T) {
		client := newTestClient(t)
		resp, err := client.POST("/api/v1/auth/login", map[string]string{
			"email":    tn.Admin.Email,
			"password": "wrong-password",
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("protected routes require a token", func(t *testing.T) {
		client := newTestClient(t)
		resp, err := client.GET("/api/v1/me")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestOrganizations_TeamMembership(t *testing.T) {
	tn := newTenant(t, "Teams Inc")
	other := newTenant(t, "Other Inc")
	tn.Client.SetT(t)

	resp, err := tn.Client.POST("/api/v1/teams", map[string]string{
		"name":            "SRE",
		"organization_id": tn.Org.ID,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	team := decodeData[domain.Team](t, resp)

	// Admin joins, a user of another organization cannot.
	resp, err = tn.Client.POST("/api/v1/teams/"+team.ID+"/members/"+tn.Admin.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = tn.Client.POST("/api/v1/teams/"+team.ID+"/members/"+other.Admin.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = tn.Client.GET("/api/v1/organizations/" + tn.Org.ID + "/teams")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	teams := decodeData[[]domain.Team](t, resp)
	require.Len(t, teams, 1)
	require.Len(t, teams[0].Members, 1)
	assert.Equal(t, tn.Admin.Email, teams[0].Members[0].Email)
}

func TestUsers_AuthorOfIncidentCannotBeDeleted(t *testing.T) {
	tn := newTenant(t, "Authors")
	tn.Client.SetT(t)

	service := tn.createService(t, "API", "")
	tn.createIncident(t, service.ID, "Elevated error rate")

	resp, err := tn.Client.DELETE("/api/v1/users/" + tn.Admin.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestOrganizations_DeleteCascades(t *testing.T) {
	tn := newTenant(t, "Doomed")
	tn.Client.SetT(t)
	service := tn.createService(t, "API", "")

	resp, err := tn.Client.DELETE("/api/v1/organizations/" + tn.Org.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	client := newTestClient(t)
	resp, err = client.GET("/api/v1/services/" + service.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

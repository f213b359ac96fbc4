package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOrgID(t *testing.T) {
	id := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(OrgHeader, "  "+id.String()+"  ")
	got, ok := OrgID(req)
	require.True(t, ok)
	require.Equal(t, id, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(OrgHeader, "not-a-uuid")
	_, ok = OrgID(req)
	require.False(t, ok)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok = OrgID(req)
	require.False(t, ok)
}

func TestRequireOrgWritesBadRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	_, ok := RequireOrg(rec, req)
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "BAD_REQUEST")
}

package common

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// OrgHeader carries the organisation a request operates on. Tenant isolation
// itself is enforced upstream; the service only scopes queries by it.
const OrgHeader = "X-Org-ID"

// OrgID extracts and validates the organisation id from the request.
func OrgID(r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.Header.Get(OrgHeader))
	if raw == "" {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// RequireOrg writes the canonical error response when the org header is
// missing and reports whether the handler may continue.
func RequireOrg(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := OrgID(r)
	if !ok {
		JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "valid "+OrgHeader+" header is required", nil)
	}
	return id, ok
}

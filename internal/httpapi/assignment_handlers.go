package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"medgrid.org/internal/access"
	"medgrid.org/internal/audit"
)

const importBodyLimit = 8 << 20

type createAssignmentRequest struct {
	UserID     string `json:"userId"`
	RoleID     string `json:"roleId"`
	FacilityID string `json:"hospitalId"`
}

type regenerateCodeRequest struct {
	ResendNotifications bool `json:"resendNotifications"`
}

type importRequest struct {
	CSVContent          string `json:"csvContent"`
	DefaultFacilityID   string `json:"defaultFacilityId"`
	ForcePasswordChange bool   `json:"forcePasswordChange"`
	SendInviteEmails    bool   `json:"sendInviteEmails"`
	Delimiter           string `json:"delimiter"`
}

// ensureService guards endpoints that need the store-backed service; the API
// can come up without a DSN for health-only deployments.
func (a *API) ensureService(w http.ResponseWriter, r *http.Request) bool {
	if a.svc == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access service unavailable")
		return false
	}
	return true
}

func (a *API) handleAssignmentsCollection(w http.ResponseWriter, r *http.Request) {
	if !a.ensureService(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tc, err := a.tenant(r)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	grant, err := a.svc.Assign(r.Context(), tc, req.UserID, req.RoleID, req.FacilityID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.assignment.create", map[string]any{
		"assignment": grant.ID,
		"user":       grant.UserID,
		"role":       grant.RoleID,
		"facility":   grant.FacilityID,
		"code":       grant.Code,
	})
	w.Header().Set("Location", "/v1/assignments/"+grant.ID)
	writeJSON(w, http.StatusCreated, grant)
}

func (a *API) handleAssignmentResource(w http.ResponseWriter, r *http.Request) {
	if !a.ensureService(w, r) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/assignments/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.deactivateAssignment(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "regenerate-code":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.regenerateCode(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) deactivateAssignment(w http.ResponseWriter, r *http.Request, id string) {
	tc, err := a.tenant(r)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	if err := a.svc.Deactivate(r.Context(), tc, id); err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.assignment.deactivate", map[string]any{
		"assignment": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) regenerateCode(w http.ResponseWriter, r *http.Request, id string) {
	// body is optional for this endpoint
	var req regenerateCodeRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errBodyRequired) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tc, err := a.tenant(r)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	grant, err := a.svc.RegenerateCode(r.Context(), tc, id, req.ResendNotifications)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.assignment.regenerate_code", map[string]any{
		"assignment": grant.ID,
		"code":       grant.Code,
	})
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) handleMultiAssign(w http.ResponseWriter, r *http.Request) {
	if !a.ensureService(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req access.MultiAssignInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tc, err := a.tenant(r)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	res, err := a.svc.AssignAcrossFacilities(r.Context(), tc, req)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.assignment.bulk", map[string]any{
		"user":      req.UserID,
		"role":      req.RoleID,
		"requested": res.RequestedAssignments,
		"created":   res.CreatedAssignments,
	})
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	if !a.ensureService(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	// invite emails and forced password change default to on; the body
	// only switches them off explicitly
	req := importRequest{ForcePasswordChange: true, SendInviteEmails: true}
	if err := decodeJSONLimit(w, r, &req, importBodyLimit); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := access.BulkImportInput{
		CSVContent:          req.CSVContent,
		DefaultFacilityID:   req.DefaultFacilityID,
		ForcePasswordChange: req.ForcePasswordChange,
		SendInviteEmails:    req.SendInviteEmails,
	}
	if req.Delimiter != "" {
		if utf8.RuneCountInString(req.Delimiter) != 1 {
			writeError(w, r, http.StatusBadRequest, "delimiter must be a single character")
			return
		}
		in.Delimiter, _ = utf8.DecodeRuneInString(req.Delimiter)
	}
	tc, err := a.tenant(r)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	summary, err := a.svc.ImportAssignments(r.Context(), tc, in)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.assignment.import", map[string]any{
		"batch":     summary.BatchID,
		"processed": summary.Processed,
		"imported":  summary.Imported,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleBackfill(w http.ResponseWriter, r *http.Request) {
	if !a.ensureService(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	tc, err := a.tenant(r)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	if !tc.Global {
		writeError(w, r, http.StatusForbidden, "platform-wide scope required")
		return
	}
	report, err := a.svc.BackfillPermissions(r.Context())
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.permission.backfill", map[string]any{
		"scanned":      report.Scanned,
		"materialized": report.Materialized,
		"failed":       report.Failed,
	})
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if !a.ensureService(w, r) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "dashboard" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.userDashboard(w, r, parts[0])
}

// userDashboard serves the merged access profile. Callers always see their
// own profile; anyone else's requires platform-wide scope.
func (a *API) userDashboard(w http.ResponseWriter, r *http.Request, userID string) {
	tc, err := a.tenant(r)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	if tc.UserID != userID && !tc.Global {
		writeError(w, r, http.StatusForbidden, "cannot view another user's dashboard")
		return
	}
	profile, err := a.svc.DashboardProfile(r.Context(), userID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

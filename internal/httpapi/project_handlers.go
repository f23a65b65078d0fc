package httpapi

import (
	"fmt"
	"net/http"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/authz"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

type projectMemberRequest struct {
	IdentityID string `json:"identity_id"`
}

type transferLeadRequest struct {
	IdentityID string `json:"identity_id"`
}

type projectAccessResponse struct {
	ProjectID     string            `json:"project_id"`
	CompanyID     string            `json:"company_id,omitempty"`
	CompanyRole   authz.CompanyRole `json:"company_role,omitempty"`
	IsMember      bool              `json:"is_project_member"`
	IsLead        bool              `json:"is_project_lead"`
	CanManage     bool              `json:"can_manage_members"`
	CanChangeLead bool              `json:"can_change_lead"`
}

func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !session.Personal() {
		if _, err := a.gate.CheckCompanyMember(r.Context(), session.IdentityID, session.CompanyID); err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	p, err := a.svc.CreateProject(r.Context(), session.IdentityID, session.CompanyID, req.Name)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "project.created", map[string]any{"project_id": p.ID})
	w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleProjectAccess(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	access, err := a.gate.CheckProjectMembership(r.Context(), session.IdentityID, session.CompanyID, r.PathValue("id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	resp := projectAccessResponse{
		ProjectID:     access.Project.ID,
		CompanyID:     access.Project.CompanyID,
		CompanyRole:   access.Facts.CompanyRole,
		IsMember:      access.Facts.IsProjectMember,
		IsLead:        access.Facts.IsProjectLead,
		CanManage:     authz.CanManageProjectMembers(access.Facts),
		CanChangeLead: authz.CanManageProjectLead(access.Facts),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAddProjectMember(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	projectID := r.PathValue("id")
	if _, err := a.gate.CheckManageProjectMembers(r.Context(), session.IdentityID, session.CompanyID, projectID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req projectMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pm, err := a.svc.AddProjectMember(r.Context(), projectID, req.IdentityID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "project.member.added", map[string]any{"project_id": projectID, "identity_id": pm.IdentityID})
	writeJSON(w, http.StatusCreated, pm)
}

func (a *API) handleRemoveProjectMember(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	projectID := r.PathValue("id")
	target := r.PathValue("identityID")
	if _, err := a.gate.CheckManageProjectMembers(r.Context(), session.IdentityID, session.CompanyID, projectID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	if err := a.svc.RemoveProjectMember(r.Context(), projectID, target); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "project.member.removed", map[string]any{"project_id": projectID, "identity_id": target})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTransferLead(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	projectID := r.PathValue("id")
	if _, err := a.gate.CheckProjectLeadOrAdmin(r.Context(), session.IdentityID, session.CompanyID, projectID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req transferLeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.svc.TransferProjectLead(r.Context(), projectID, req.IdentityID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "project.lead.transferred", map[string]any{"project_id": projectID, "identity_id": p.LeadID})
	writeJSON(w, http.StatusOK, p)
}

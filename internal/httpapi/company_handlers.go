package httpapi

import (
	"fmt"
	"net/http"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/authz"
)

type createCompanyRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type updateMemberRequest struct {
	Role string `json:"role"`
}

func (a *API) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	memberships, err := a.svc.ListCompanies(r.Context(), session.IdentityID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if memberships == nil {
		memberships = []auth.CompanyMembership{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": memberships})
}

func (a *API) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req createCompanyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	company, err := a.svc.CreateCompany(r.Context(), session.IdentityID, req.Name, req.Slug)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "company.created", map[string]any{"company_id": company.ID, "slug": company.Slug})
	w.Header().Set("Location", fmt.Sprintf("/v1/companies/%s", company.ID))
	writeJSON(w, http.StatusCreated, company)
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if _, err := a.gate.CheckCompanyMember(r.Context(), session.IdentityID, session.CompanyID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	members, err := a.svc.ListMembers(r.Context(), session.CompanyID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if members == nil {
		members = []auth.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (a *API) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if _, err := a.gate.CheckCompanyAdminOrManager(r.Context(), session.IdentityID, session.CompanyID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := authz.CompanyMember
	if req.Role != "" {
		parsed, ok := authz.ParseCompanyRole(req.Role)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "unknown role")
			return
		}
		role = parsed
	}
	if role == authz.CompanyOwner {
		if _, err := a.gate.CheckCompanyOwner(r.Context(), session.IdentityID, session.CompanyID); err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	m, err := a.svc.InviteMember(r.Context(), session.CompanyID, req.Email, role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "company.member.invited", map[string]any{"identity_id": m.IdentityID, "role": string(m.Role)})
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	target := r.PathValue("identityID")
	var req updateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := authz.ParseCompanyRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	if _, err := a.gate.CheckCompanyAdmin(r.Context(), session.IdentityID, session.CompanyID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	m, err := a.svc.UpdateMemberRoleAs(r.Context(), session.IdentityID, session.CompanyID, target, role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "company.member.role_changed", map[string]any{"identity_id": target, "role": string(m.Role)})
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	target := r.PathValue("identityID")
	if target == session.IdentityID {
		// Leaving a company only needs membership; the last-owner guard
		// still applies inside the mutation.
		_, err = a.gate.CheckCompanyMember(r.Context(), session.IdentityID, session.CompanyID)
	} else {
		_, err = a.gate.CheckCompanyAdmin(r.Context(), session.IdentityID, session.CompanyID)
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// Touching an owner additionally needs OWNER; the service checks it under
	// the company lock.
	if err := a.svc.RemoveMemberAs(r.Context(), session.IdentityID, session.CompanyID, target); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "company.member.removed", map[string]any{"identity_id": target})
	w.WriteHeader(http.StatusNoContent)
}

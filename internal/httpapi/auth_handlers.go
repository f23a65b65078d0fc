package httpapi

import (
	"net/http"
	"strings"
	"time"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/authz"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	CompanyID string `json:"company_id"`
}

type secondFactorRequest struct {
	Email     string `json:"email"`
	Code      string `json:"code"`
	CompanyID string `json:"company_id"`
}

type switchRequest struct {
	CompanyID string `json:"company_id"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type credentialResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Workspace auth.Workspace `json:"workspace"`
}

type workspaceResponse struct {
	Identity  auth.Summary      `json:"identity"`
	CompanyID string            `json:"company_id,omitempty"`
	Role      authz.CompanyRole `json:"role,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ident, err := a.svc.Register(r.Context(), auth.Registration{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "identity.registered", map[string]any{"identity_id": ident.ID})
	writeJSON(w, http.StatusCreated, ident)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Authenticate(r.Context(), auth.Login{
		Email:     req.Email,
		Password:  req.Password,
		CompanyID: req.CompanyID,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "auth.login", map[string]any{
		"identity_id": res.Identity.ID,
		"outcome":     string(res.Outcome),
	})
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleSecondFactor(w http.ResponseWriter, r *http.Request) {
	var req secondFactorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.VerifySecondFactor(r.Context(), auth.SecondFactor{
		Email:     req.Email,
		Code:      req.Code,
		CompanyID: req.CompanyID,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "auth.second_factor", map[string]any{"identity_id": res.Identity.ID})
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleEnrollSecondFactor(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	enrollment, err := a.svc.EnrollSecondFactor(r.Context(), session.IdentityID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "auth.second_factor.enrolled", nil)
	writeJSON(w, http.StatusCreated, enrollment)
}

func (a *API) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	resp := workspaceResponse{ExpiresAt: session.ExpiresAt}
	if session.Personal() {
		ident, err := a.gate.Identity(r.Context(), session.IdentityID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		resp.Identity = ident.Summary()
	} else {
		access, err := a.gate.CheckCompanyMember(r.Context(), session.IdentityID, session.CompanyID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		resp.Identity = access.Identity.Summary()
		resp.CompanyID = session.CompanyID
		resp.Role = access.CompanyRole
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSwitchWorkspace(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req switchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cred, err := a.svc.SwitchWorkspace(r.Context(), session.IdentityID, req.CompanyID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "workspace.switched", map[string]any{"to_company_id": cred.Workspace.CompanyID})
	writeJSON(w, http.StatusOK, credentialResponse{
		Token:     cred.Token,
		ExpiresAt: cred.Session.ExpiresAt,
		Workspace: cred.Workspace,
	})
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if _, err := a.gate.CheckPlatformAdmin(r.Context(), session.IdentityID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := auth.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	ident, err := a.svc.SetIdentityStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "identity.status.changed", map[string]any{
		"identity_id": ident.ID,
		"status":      string(ident.Status),
	})
	writeJSON(w, http.StatusOK, ident)
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"roles":           authz.Catalog(),
		"default_plan_id": authz.DefaultPlanID,
	})
}

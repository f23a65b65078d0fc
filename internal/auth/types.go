package auth

import (
	"time"

	"orbitdesk.io/internal/authz"
)

// Status is the lifecycle state of an identity.
type Status string

const (
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusPendingApproval     Status = "PENDING_APPROVAL"
	StatusActive              Status = "ACTIVE"
	StatusRejected            Status = "REJECTED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusPendingApproval, StatusActive, StatusRejected:
		return true
	}
	return false
}

// Identity is a person, independent of any company.
type Identity struct {
	ID                 string           `json:"id"`
	Email              string           `json:"email"`
	DisplayName        string           `json:"display_name"`
	GlobalRole         authz.GlobalRole `json:"global_role"`
	Status             Status           `json:"status"`
	PasswordHash       string           `json:"-"`
	SecondFactorSecret string           `json:"-"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// HasSecondFactor reports whether a TOTP secret is enrolled.
func (i Identity) HasSecondFactor() bool {
	return i.SecondFactorSecret != ""
}

// Summary is the subset of an identity returned to clients.
type Summary struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	DisplayName string           `json:"display_name"`
	GlobalRole  authz.GlobalRole `json:"global_role"`
}

func (i Identity) Summary() Summary {
	return Summary{ID: i.ID, Email: i.Email, DisplayName: i.DisplayName, GlobalRole: i.GlobalRole}
}

// Preference records the last workspace an identity chose. An empty
// LastActiveCompanyID is an explicit choice of the personal workspace, which is
// different from having no preference record at all.
type Preference struct {
	IdentityID          string
	LastActiveCompanyID string
	UpdatedAt           time.Time
}

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type CompanyMembership struct {
	CompanyID  string            `json:"company_id"`
	IdentityID string            `json:"identity_id"`
	Role       authz.CompanyRole `json:"role"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Member is a company membership joined with the member's identity.
type Member struct {
	CompanyMembership
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Project belongs to one company, or to its creator alone when CompanyID is
// empty.
type Project struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id,omitempty"`
	Name      string    `json:"name"`
	LeadID    string    `json:"project_lead_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Personal reports whether the project is scoped to its creator only.
func (p Project) Personal() bool {
	return p.CompanyID == ""
}

type ProjectMembership struct {
	ProjectID  string            `json:"project_id"`
	IdentityID string            `json:"identity_id"`
	Role       authz.ProjectRole `json:"role"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Session is the verified content of a credential.
type Session struct {
	IdentityID string
	CompanyID  string
	TokenID    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Personal reports whether the session operates in the personal workspace.
func (s Session) Personal() bool {
	return s.CompanyID == ""
}

// WorkspaceSource explains which resolution rule picked the workspace.
type WorkspaceSource string

const (
	SourceRequested     WorkspaceSource = "requested"
	SourcePreference    WorkspaceSource = "preference"
	SourceSingleCompany WorkspaceSource = "single_company"
	SourcePersonal      WorkspaceSource = "personal"
)

// Workspace is the resolved company context; CompanyID is empty for the
// personal workspace.
type Workspace struct {
	CompanyID string            `json:"company_id,omitempty"`
	Role      authz.CompanyRole `json:"role,omitempty"`
	Source    WorkspaceSource   `json:"source"`
}

func (w Workspace) Personal() bool {
	return w.CompanyID == ""
}

// Credential is a freshly issued signed token with its decoded session.
type Credential struct {
	Token     string
	Session   Session
	Workspace Workspace
}

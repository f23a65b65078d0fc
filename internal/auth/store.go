package auth

import (
	"context"

	"orbitdesk.io/internal/authz"
)

// Queries are the reads and writes the engine performs. The same contract is
// served outside a transaction (each call on its own) and inside WithinTx.
type Queries interface {
	CreateIdentity(ctx context.Context, ident *Identity) error
	IdentityByID(ctx context.Context, id string) (Identity, error)
	IdentityByEmail(ctx context.Context, email string) (Identity, error)
	UpdateIdentityStatus(ctx context.Context, id string, status Status) error
	SetSecondFactorSecret(ctx context.Context, id, secret string) error

	// Preference returns ErrNotFound when the identity never saved one.
	Preference(ctx context.Context, identityID string) (Preference, error)
	SavePreference(ctx context.Context, pref Preference) error

	CreateCompany(ctx context.Context, company *Company) error
	// LockCompany loads the company and, inside a transaction, holds a row
	// lock on it until commit so membership mutations serialize per company.
	LockCompany(ctx context.Context, id string) (Company, error)
	CompanyMembership(ctx context.Context, companyID, identityID string) (CompanyMembership, error)
	CompanyMembers(ctx context.Context, companyID string) ([]Member, error)
	MembershipsForIdentity(ctx context.Context, identityID string) ([]CompanyMembership, error)
	CountOwners(ctx context.Context, companyID string) (int, error)
	InsertCompanyMembership(ctx context.Context, m CompanyMembership) error
	UpdateCompanyMembershipRole(ctx context.Context, companyID, identityID string, role authz.CompanyRole) error
	DeleteCompanyMembership(ctx context.Context, companyID, identityID string) error
	// ClearIssueAssignees nulls assignee references to identityID in every
	// project of the company and returns how many were cleared.
	ClearIssueAssignees(ctx context.Context, companyID, identityID string) (int64, error)
	// CountProjectsLedBy counts the company's projects whose lead is
	// identityID.
	CountProjectsLedBy(ctx context.Context, companyID, identityID string) (int, error)
	// DeleteCompanyProjectMemberships drops identityID from every project of
	// the company and returns how many memberships went.
	DeleteCompanyProjectMemberships(ctx context.Context, companyID, identityID string) (int64, error)

	CreateProject(ctx context.Context, project *Project) error
	Project(ctx context.Context, id string) (Project, error)
	// LockProject is the project counterpart of LockCompany.
	LockProject(ctx context.Context, id string) (Project, error)
	ProjectMembership(ctx context.Context, projectID, identityID string) (ProjectMembership, error)
	InsertProjectMembership(ctx context.Context, m ProjectMembership) error
	UpdateProjectMembershipRole(ctx context.Context, projectID, identityID string, role authz.ProjectRole) error
	DeleteProjectMembership(ctx context.Context, projectID, identityID string) error
	SetProjectLead(ctx context.Context, projectID, identityID string) error
}

// Store persists identities and memberships.
type Store interface {
	Queries
	// WithinTx runs fn in one transaction. A non-nil error from fn rolls back
	// every write fn made. fn must only use the Queries it is given.
	WithinTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}

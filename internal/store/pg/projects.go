package pg

import (
	"context"
	"database/sql"
	"errors"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/authz"
)

func (q queries) CreateProject(ctx context.Context, p *auth.Project) error {
	_, err := q.db.ExecContext(ctx, `
		insert into projects (id, company_id, name, lead_id, created_at)
		values ($1, $2, $3, $4, $5)
	`, p.ID, nullIfEmpty(p.CompanyID), p.Name, p.LeadID, p.CreatedAt)
	return mapWriteError(err)
}

func (q queries) Project(ctx context.Context, id string) (auth.Project, error) {
	return q.project(ctx, `select id, company_id, name, lead_id, created_at from projects where id = $1`, id)
}

func (q queries) LockProject(ctx context.Context, id string) (auth.Project, error) {
	return q.project(ctx, `select id, company_id, name, lead_id, created_at from projects where id = $1 for update`, id)
}

func (q queries) project(ctx context.Context, query, id string) (auth.Project, error) {
	var (
		p       auth.Project
		company sql.NullString
	)
	err := q.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &company, &p.Name, &p.LeadID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Project{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Project{}, err
	}
	p.CompanyID = company.String
	return p, nil
}

func (q queries) ProjectMembership(ctx context.Context, projectID, identityID string) (auth.ProjectMembership, error) {
	var m auth.ProjectMembership
	err := q.db.QueryRowContext(ctx, `
		select project_id, identity_id, role, created_at
		from project_memberships
		where project_id = $1 and identity_id = $2
	`, projectID, identityID).Scan(&m.ProjectID, &m.IdentityID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ProjectMembership{}, auth.ErrNotFound
	}
	return m, err
}

func (q queries) InsertProjectMembership(ctx context.Context, m auth.ProjectMembership) error {
	_, err := q.db.ExecContext(ctx, `
		insert into project_memberships (project_id, identity_id, role, created_at)
		values ($1, $2, $3, $4)
	`, m.ProjectID, m.IdentityID, m.Role, m.CreatedAt)
	return mapWriteError(err)
}

func (q queries) UpdateProjectMembershipRole(ctx context.Context, projectID, identityID string, role authz.ProjectRole) error {
	return expectAffected(q.db.ExecContext(ctx, `
		update project_memberships set role = $3
		where project_id = $1 and identity_id = $2
	`, projectID, identityID, role))
}

func (q queries) DeleteProjectMembership(ctx context.Context, projectID, identityID string) error {
	return expectAffected(q.db.ExecContext(ctx,
		`delete from project_memberships where project_id = $1 and identity_id = $2`, projectID, identityID))
}

func (q queries) SetProjectLead(ctx context.Context, projectID, identityID string) error {
	return expectAffected(q.db.ExecContext(ctx,
		`update projects set lead_id = $2 where id = $1`, projectID, identityID))
}

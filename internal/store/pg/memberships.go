package pg

import (
	"context"
	"database/sql"
	"errors"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/authz"
)

func (q queries) CreateCompany(ctx context.Context, company *auth.Company) error {
	_, err := q.db.ExecContext(ctx, `
		insert into companies (id, name, slug, created_at)
		values ($1, $2, $3, $4)
	`, company.ID, company.Name, company.Slug, company.CreatedAt)
	return mapWriteError(err)
}

func (q queries) LockCompany(ctx context.Context, id string) (auth.Company, error) {
	var c auth.Company
	err := q.db.QueryRowContext(ctx, `
		select id, name, slug, created_at
		from companies
		where id = $1
		for update
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Company{}, auth.ErrNotFound
	}
	return c, err
}

func (q queries) CompanyMembership(ctx context.Context, companyID, identityID string) (auth.CompanyMembership, error) {
	var m auth.CompanyMembership
	err := q.db.QueryRowContext(ctx, `
		select company_id, identity_id, role, created_at
		from company_memberships
		where company_id = $1 and identity_id = $2
	`, companyID, identityID).Scan(&m.CompanyID, &m.IdentityID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.CompanyMembership{}, auth.ErrNotFound
	}
	return m, err
}

func (q queries) CompanyMembers(ctx context.Context, companyID string) ([]auth.Member, error) {
	rows, err := q.db.QueryContext(ctx, `
		select m.company_id, m.identity_id, m.role, m.created_at, i.email, i.display_name
		from company_memberships m
		join identities i on i.id = m.identity_id
		where m.company_id = $1
		order by m.created_at, m.identity_id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Member
	for rows.Next() {
		var m auth.Member
		if err := rows.Scan(&m.CompanyID, &m.IdentityID, &m.Role, &m.CreatedAt, &m.Email, &m.DisplayName); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q queries) MembershipsForIdentity(ctx context.Context, identityID string) ([]auth.CompanyMembership, error) {
	rows, err := q.db.QueryContext(ctx, `
		select company_id, identity_id, role, created_at
		from company_memberships
		where identity_id = $1
		order by company_id
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.CompanyMembership
	for rows.Next() {
		var m auth.CompanyMembership
		if err := rows.Scan(&m.CompanyID, &m.IdentityID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q queries) CountOwners(ctx context.Context, companyID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		select count(*) from company_memberships
		where company_id = $1 and role = $2
	`, companyID, authz.CompanyOwner).Scan(&n)
	return n, err
}

func (q queries) InsertCompanyMembership(ctx context.Context, m auth.CompanyMembership) error {
	_, err := q.db.ExecContext(ctx, `
		insert into company_memberships (company_id, identity_id, role, created_at)
		values ($1, $2, $3, $4)
	`, m.CompanyID, m.IdentityID, m.Role, m.CreatedAt)
	return mapWriteError(err)
}

func (q queries) UpdateCompanyMembershipRole(ctx context.Context, companyID, identityID string, role authz.CompanyRole) error {
	return expectAffected(q.db.ExecContext(ctx, `
		update company_memberships set role = $3
		where company_id = $1 and identity_id = $2
	`, companyID, identityID, role))
}

func (q queries) DeleteCompanyMembership(ctx context.Context, companyID, identityID string) error {
	return expectAffected(q.db.ExecContext(ctx,
		`delete from company_memberships where company_id = $1 and identity_id = $2`, companyID, identityID))
}

func (q queries) ClearIssueAssignees(ctx context.Context, companyID, identityID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		update issues set assignee_id = null
		where assignee_id = $2
		  and project_id in (select id from projects where company_id = $1)
	`, companyID, identityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q queries) CountProjectsLedBy(ctx context.Context, companyID, identityID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		select count(*) from projects
		where company_id = $1 and lead_id = $2
	`, companyID, identityID).Scan(&n)
	return n, err
}

func (q queries) DeleteCompanyProjectMemberships(ctx context.Context, companyID, identityID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		delete from project_memberships
		where identity_id = $2
		  and project_id in (select id from projects where company_id = $1)
	`, companyID, identityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

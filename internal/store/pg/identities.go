package pg

import (
	"context"
	"database/sql"
	"errors"

	"orbitdesk.io/internal/auth"
)

const identityColumns = `id, email, display_name, global_role, status, password_hash, coalesce(totp_secret, ''), created_at, updated_at`

func scanIdentity(row *sql.Row) (auth.Identity, error) {
	var ident auth.Identity
	err := row.Scan(&ident.ID, &ident.Email, &ident.DisplayName, &ident.GlobalRole, &ident.Status,
		&ident.PasswordHash, &ident.SecondFactorSecret, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	return ident, err
}

func (q queries) CreateIdentity(ctx context.Context, ident *auth.Identity) error {
	err := q.db.QueryRowContext(ctx, `
		insert into identities (id, email, display_name, global_role, status, password_hash, totp_secret)
		values ($1, lower($2), $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, ident.ID, ident.Email, ident.DisplayName, ident.GlobalRole, ident.Status, ident.PasswordHash,
		nullIfEmpty(ident.SecondFactorSecret)).Scan(&ident.CreatedAt, &ident.UpdatedAt)
	return mapWriteError(err)
}

func (q queries) IdentityByID(ctx context.Context, id string) (auth.Identity, error) {
	return scanIdentity(q.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where id = $1`, id))
}

func (q queries) IdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	return scanIdentity(q.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where email = lower($1)`, email))
}

func (q queries) UpdateIdentityStatus(ctx context.Context, id string, status auth.Status) error {
	return expectAffected(q.db.ExecContext(ctx,
		`update identities set status = $2, updated_at = now() where id = $1`, id, status))
}

func (q queries) SetSecondFactorSecret(ctx context.Context, id, secret string) error {
	return expectAffected(q.db.ExecContext(ctx,
		`update identities set totp_secret = $2, updated_at = now() where id = $1`, id, nullIfEmpty(secret)))
}

func (q queries) Preference(ctx context.Context, identityID string) (auth.Preference, error) {
	var (
		pref    auth.Preference
		company sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		select identity_id, last_active_company_id, updated_at
		from identity_preferences
		where identity_id = $1
	`, identityID).Scan(&pref.IdentityID, &company, &pref.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Preference{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Preference{}, err
	}
	pref.LastActiveCompanyID = company.String
	return pref, nil
}

func (q queries) SavePreference(ctx context.Context, pref auth.Preference) error {
	_, err := q.db.ExecContext(ctx, `
		insert into identity_preferences (identity_id, last_active_company_id, updated_at)
		values ($1, $2, $3)
		on conflict (identity_id) do update
		set last_active_company_id = excluded.last_active_company_id,
		    updated_at = excluded.updated_at
	`, pref.IdentityID, nullIfEmpty(pref.LastActiveCompanyID), pref.UpdatedAt)
	return mapWriteError(err)
}

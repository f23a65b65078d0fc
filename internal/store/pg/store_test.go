package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/authz"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func newService(t *testing.T, store *Store) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(store, auth.WithSigningSecret("test-secret"))
	require.NoError(t, err)
	return svc
}

var created = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func expectLockCompany(mock sqlmock.Sqlmock, id string) {
	mock.ExpectQuery(`select id, name, slug, created_at from companies where id = \$1 for update`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "created_at"}).AddRow(id, "Acme", "acme", created))
}

func expectMembership(mock sqlmock.Sqlmock, companyID, identityID string, role authz.CompanyRole) {
	mock.ExpectQuery(`from company_memberships where company_id = \$1 and identity_id = \$2`).
		WithArgs(companyID, identityID).
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "identity_id", "role", "created_at"}).
			AddRow(companyID, identityID, string(role), created))
}

func TestRemoveMemberClearsAssigneesInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	svc := newService(t, store)

	mock.ExpectBegin()
	expectLockCompany(mock, "co-1")
	expectMembership(mock, "co-1", "id-2", authz.CompanyMember)
	expectLedCount(mock, "co-1", "id-2", 0)
	mock.ExpectExec(`delete from company_memberships where company_id = \$1 and identity_id = \$2`).
		WithArgs("co-1", "id-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`delete from project_memberships where identity_id = \$2 and project_id in \(select id from projects where company_id = \$1\)`).
		WithArgs("co-1", "id-2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`update issues set assignee_id = null where assignee_id = \$2 and project_id in \(select id from projects where company_id = \$1\)`).
		WithArgs("co-1", "id-2").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, svc.RemoveMember(context.Background(), "co-1", "id-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectLedCount(mock sqlmock.Sqlmock, companyID, identityID string, n int) {
	mock.ExpectQuery(`select count\(\*\) from projects where company_id = \$1 and lead_id = \$2`).
		WithArgs(companyID, identityID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func TestRemoveProjectLeadRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	svc := newService(t, store)

	mock.ExpectBegin()
	expectLockCompany(mock, "co-1")
	expectMembership(mock, "co-1", "id-2", authz.CompanyMember)
	expectLedCount(mock, "co-1", "id-2", 1)
	mock.ExpectRollback()

	err := svc.RemoveMember(context.Background(), "co-1", "id-2")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveOwnerAsAdminRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	svc := newService(t, store)

	mock.ExpectBegin()
	expectLockCompany(mock, "co-1")
	expectMembership(mock, "co-1", "id-1", authz.CompanyOwner)
	expectMembership(mock, "co-1", "id-3", authz.CompanyAdmin)
	mock.ExpectRollback()

	err := svc.RemoveMemberAs(context.Background(), "id-3", "co-1", "id-1")
	assert.ErrorIs(t, err, auth.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveLastOwnerRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	svc := newService(t, store)

	mock.ExpectBegin()
	expectLockCompany(mock, "co-1")
	expectMembership(mock, "co-1", "id-1", authz.CompanyOwner)
	mock.ExpectQuery(`select count\(\*\) from company_memberships where company_id = \$1 and role = \$2`).
		WithArgs("co-1", "OWNER").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := svc.RemoveMember(context.Background(), "co-1", "id-1")
	assert.ErrorIs(t, err, auth.ErrLastOwner)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDemoteOwnerWithAnotherOwner(t *testing.T) {
	store, mock := newMockStore(t)
	svc := newService(t, store)

	mock.ExpectBegin()
	expectLockCompany(mock, "co-1")
	expectMembership(mock, "co-1", "id-1", authz.CompanyOwner)
	mock.ExpectQuery(`select count\(\*\) from company_memberships`).
		WithArgs("co-1", "OWNER").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(`update company_memberships set role = \$3 where company_id = \$1 and identity_id = \$2`).
		WithArgs("co-1", "id-1", "ADMIN").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m, err := svc.UpdateMemberRole(context.Background(), "co-1", "id-1", authz.CompanyAdmin)
	require.NoError(t, err)
	assert.Equal(t, authz.CompanyAdmin, m.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteRaceMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	svc := newService(t, store)

	mock.ExpectBegin()
	expectLockCompany(mock, "co-1")
	mock.ExpectQuery(`from identities where email = lower\(\$1\)`).
		WithArgs("bob@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "display_name", "global_role", "status", "password_hash", "totp_secret", "created_at", "updated_at",
		}).AddRow("id-2", "bob@example.com", "Bob", "PLATFORM_USER", "ACTIVE", "hash", "", created, created))
	mock.ExpectQuery(`from company_memberships where company_id = \$1 and identity_id = \$2`).
		WithArgs("co-1", "id-2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`insert into company_memberships`).
		WithArgs("co-1", "id-2", "VIEWER", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	_, err := svc.InviteMember(context.Background(), "co-1", "Bob@example.com", authz.CompanyViewer)
	assert.ErrorIs(t, err, auth.ErrUserAlreadyMember)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferLeadRunsAllStepsInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	svc := newService(t, store)

	mock.ExpectBegin()
	mock.ExpectQuery(`from projects where id = \$1 for update`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "lead_id", "created_at"}).
			AddRow("p-1", "co-1", "Engine", "id-1", created))
	mock.ExpectQuery(`from project_memberships where project_id = \$1 and identity_id = \$2`).
		WithArgs("p-1", "id-2").
		WillReturnRows(sqlmock.NewRows([]string{"project_id", "identity_id", "role", "created_at"}).
			AddRow("p-1", "id-2", "MEMBER", created))
	expectMembership(mock, "co-1", "id-2", authz.CompanyMember)
	mock.ExpectExec(`update project_memberships set role = \$3`).
		WithArgs("p-1", "id-2", "LEAD").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update project_memberships set role = \$3`).
		WithArgs("p-1", "id-1", "MEMBER").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update projects set lead_id = \$2 where id = \$1`).
		WithArgs("p-1", "id-2").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := svc.TransferProjectLead(context.Background(), "p-1", "id-2")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceNullMeansPersonal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`from identity_preferences where identity_id = \$1`).
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"identity_id", "last_active_company_id", "updated_at"}).
			AddRow("id-1", nil, created))
	mock.ExpectQuery(`from identity_preferences where identity_id = \$1`).
		WithArgs("id-2").
		WillReturnError(sql.ErrNoRows)

	pref, err := store.Preference(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Empty(t, pref.LastActiveCompanyID)

	_, err = store.Preference(context.Background(), "id-2")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIdentityConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`insert into identities`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.CreateIdentity(context.Background(), &auth.Identity{ID: "id-1", Email: "a@example.com"})
	assert.ErrorIs(t, err, auth.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update identities set status = \$2`).
		WithArgs("id-1", "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateIdentityStatus(context.Background(), "id-1", auth.StatusActive)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"medgrid.org/internal/access"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func grantRows(grants ...access.Grant) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "user_id", "role_id", "facility_id", "code", "active", "confirmation_verified", "created_by", "created_at"})
	for _, g := range grants {
		rows.AddRow(g.ID, g.UserID, g.RoleID, g.FacilityID, g.Code, g.Active, g.ConfirmationVerified, g.CreatedBy, g.CreatedAt)
	}
	return rows
}

func TestCreateGrant(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("insert into grants").
		WithArgs("g1", "u1", "r1", sqlmock.AnyArg(), "H01-DOCTOR-1", true, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	g := &access.Grant{ID: "g1", UserID: "u1", RoleID: "r1", FacilityID: "f1", Code: "H01-DOCTOR-1", Active: true, CreatedBy: "admin", CreatedAt: now}
	if err := store.Create(context.Background(), g); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !g.CreatedAt.Equal(now) {
		t.Fatalf("created_at not round-tripped: %v", g.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateGrantUniqueViolationIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into grants").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	g := &access.Grant{ID: "g1", UserID: "u1", RoleID: "r1", Code: "GLOBAL-DOCTOR-1", Active: true, CreatedAt: time.Now().UTC()}
	if err := store.Create(context.Background(), g); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateGrantForeignKeyViolationIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into grants").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	g := &access.Grant{ID: "g1", UserID: "missing", RoleID: "r1", Code: "GLOBAL-DOCTOR-1", Active: true, CreatedAt: time.Now().UTC()}
	if err := store.Create(context.Background(), g); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetGrant(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	want := access.Grant{ID: "g1", UserID: "u1", RoleID: "r1", FacilityID: "f1", Code: "H01-DOCTOR-1", Active: true, CreatedAt: now}

	mock.ExpectQuery("select (.+) from grants").
		WithArgs("g1").
		WillReturnRows(grantRows(want))

	got, err := store.Get(context.Background(), "g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "g1" || got.FacilityID != "f1" || !got.Active {
		t.Fatalf("unexpected grant: %+v", got)
	}
}

func TestGetGrantNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from grants").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindActiveAddressesGlobalWithEmptyFacility(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select (.+) from grants").
		WithArgs("u1", "r1", "").
		WillReturnRows(grantRows(access.Grant{ID: "g1", UserID: "u1", RoleID: "r1", Code: "GLOBAL-DOCTOR-1", Active: true, CreatedAt: now}))

	got, err := store.FindActive(context.Background(), "u1", "r1", "")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if !got.Global() {
		t.Fatalf("expected a platform-wide grant, got %+v", got)
	}
}

func TestListActiveForUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select (.+) from grants").
		WithArgs("u1").
		WillReturnRows(grantRows(
			access.Grant{ID: "g1", UserID: "u1", RoleID: "r1", FacilityID: "f1", Code: "H01-DOCTOR-1", Active: true, CreatedAt: now},
			access.Grant{ID: "g2", UserID: "u1", RoleID: "r2", FacilityID: "f2", Code: "H02-NURSE-2", Active: true, CreatedAt: now.Add(time.Minute)},
		))

	grants, err := store.ListActiveForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListActiveForUser: %v", err)
	}
	if len(grants) != 2 || grants[0].ID != "g1" || grants[1].ID != "g2" {
		t.Fatalf("unexpected grants: %+v", grants)
	}
}

func TestDeactivateGrant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update grants set active = false").
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Deactivate(context.Background(), "g1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	mock.ExpectExec("update grants set active = false").
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Deactivate(context.Background(), "g1"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat, got %v", err)
	}
}

func TestUpdateCode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update grants set code").
		WithArgs("g1", "H01-DOCTOR-9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateCode(context.Background(), "g1", "H01-DOCTOR-9"); err != nil {
		t.Fatalf("UpdateCode: %v", err)
	}

	mock.ExpectExec("update grants set code").
		WithArgs("g1", "H01-DOCTOR-9").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	if err := store.UpdateCode(context.Background(), "g1", "H01-DOCTOR-9"); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListActiveWithoutPermissions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("left join grant_permissions").
		WillReturnRows(grantRows(access.Grant{ID: "g1", UserID: "u1", RoleID: "r1", Code: "H01-DOCTOR-1", Active: true, CreatedAt: now}))

	grants, err := store.ListActiveWithoutPermissions(context.Background())
	if err != nil {
		t.Fatalf("ListActiveWithoutPermissions: %v", err)
	}
	if len(grants) != 1 || grants[0].ID != "g1" {
		t.Fatalf("unexpected grants: %+v", grants)
	}
}

func TestListCodes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select code from grants").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("H01-DOCTOR-1").AddRow("GLOBAL-NURSE-2"))

	codes, err := store.ListCodes(context.Background())
	if err != nil {
		t.Fatalf("ListCodes: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("unexpected codes: %v", codes)
	}
}

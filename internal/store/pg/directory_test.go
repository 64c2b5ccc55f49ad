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

func userRows(users ...access.User) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "username", "email", "first_name", "last_name", "phone", "active", "deleted", "created_at"})
	for _, u := range users {
		rows.AddRow(u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.Phone, u.Active, u.Deleted, u.CreatedAt)
	}
	return rows
}

func TestFindUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select (.+) from users").
		WithArgs("u1").
		WillReturnRows(userRows(access.User{ID: "u1", Username: "dr.smith", Email: "smith@example.org", Active: true, CreatedAt: now}))

	u, err := store.FindUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	if u.Username != "dr.smith" || !u.Active {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestFindUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from users").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.FindUser(context.Background(), "missing"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindUserByUsernameMatchesEmailToo(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("username = \\$1 or email = \\$1").
		WithArgs("smith@example.org").
		WillReturnRows(userRows(access.User{ID: "u1", Username: "dr.smith", Email: "smith@example.org", Active: true, CreatedAt: now}))

	u, err := store.FindUserByUsername(context.Background(), "smith@example.org")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if u.ID != "u1" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestCreateUserConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	u := &access.User{ID: "u1", Username: "dr.smith", Active: true, CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(context.Background(), u); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFindRoleByCode(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select id, code, name, created_at").
		WithArgs("ROLE_DOCTOR").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "created_at"}).
			AddRow("r1", "ROLE_DOCTOR", "Doctor", now))

	role, err := store.FindRoleByCode(context.Background(), "ROLE_DOCTOR")
	if err != nil {
		t.Fatalf("FindRoleByCode: %v", err)
	}
	if role.ID != "r1" || role.Code != "ROLE_DOCTOR" {
		t.Fatalf("unexpected role: %+v", role)
	}
}

func TestCreateRoleConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into roles").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	r := &access.Role{ID: "r1", Code: "ROLE_DOCTOR", Name: "Doctor", CreatedAt: time.Now().UTC()}
	if err := store.CreateRole(context.Background(), r); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListFacilities(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select (.+) from facilities").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "code", "name", "active", "created_at"}).
			AddRow("f1", "o1", "H01", "Central Hospital", true, now).
			AddRow("f2", "o1", "H02", "North Clinic", true, now))

	facilities, err := store.ListFacilities(context.Background())
	if err != nil {
		t.Fatalf("ListFacilities: %v", err)
	}
	if len(facilities) != 2 || facilities[0].Code != "H01" {
		t.Fatalf("unexpected facilities: %+v", facilities)
	}
}

func TestListOrganizations(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select (.+) from organizations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("o1", "Demo Network", now))

	orgs, err := store.ListOrganizations(context.Background())
	if err != nil {
		t.Fatalf("ListOrganizations: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != "o1" {
		t.Fatalf("unexpected organizations: %+v", orgs)
	}
}

package roles

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/autoescola/internal/accounts"
	"github.com/diagnosis/autoescola/internal/authapi"
)

type fakeMe struct {
	user *authapi.UserInfo
	err  error
}

func (f *fakeMe) Me(context.Context) (*authapi.UserInfo, error) {
	return f.user, f.err
}

func TestAPILookup(t *testing.T) {
	tests := []struct {
		name    string
		me      *fakeMe
		want    accounts.Role
		wantErr error
	}{
		{"instructor", &fakeMe{user: &authapi.UserInfo{ID: "7", Role: "instrutor"}}, accounts.RoleInstructor, nil},
		{"no role", &fakeMe{user: &authapi.UserInfo{ID: "7"}}, "", ErrNoRole},
		{"unknown role", &fakeMe{user: &authapi.UserInfo{ID: "7", Role: "admin"}}, "", ErrUnknownRole},
		{"different user", &fakeMe{user: &authapi.UserInfo{ID: "8", Role: "aluno"}}, "", ErrUserChanged},
		{"backend down", &fakeMe{err: authapi.ErrTransport}, "", authapi.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAPILookup(tt.me).LookupRole(context.Background(), "7")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Fatalf("expected role %q, got %q", tt.want, got)
			}
		})
	}
}

type fakeRow struct {
	role string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.role
	return nil
}

type fakeQuerier struct {
	row    fakeRow
	gotSQL string
	gotArg any
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.gotSQL = sql
	if len(args) > 0 {
		q.gotArg = args[0]
	}
	return q.row
}

func TestPostgresLookup(t *testing.T) {
	tests := []struct {
		name    string
		row     fakeRow
		want    accounts.Role
		wantErr error
	}{
		{"student", fakeRow{role: "aluno"}, accounts.RoleStudent, nil},
		{"employee", fakeRow{role: "funcionario"}, accounts.RoleEmployee, nil},
		{"missing row", fakeRow{err: pgx.ErrNoRows}, "", ErrNoRole},
		{"unknown role", fakeRow{role: "admin"}, "", ErrUnknownRole},
		{"query failure", fakeRow{err: errBoom}, "", errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{row: tt.row}
			got, err := NewPostgresLookup(q).LookupRole(context.Background(), "42")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Fatalf("expected role %q, got %q", tt.want, got)
			}
			if q.gotArg != "42" || !strings.Contains(q.gotSQL, "user_roles") {
				t.Fatalf("unexpected query %q %v", q.gotSQL, q.gotArg)
			}
		})
	}
}

var errBoom = errors.New("connection reset")

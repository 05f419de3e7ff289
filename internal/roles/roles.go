package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/autoescola/internal/accounts"
	"github.com/diagnosis/autoescola/internal/authapi"
)

var (
	ErrNoRole      = accounts.ErrNoRole
	ErrUnknownRole = accounts.ErrUnknownRole
	ErrUserChanged = errors.New("authenticated user does not match")
)

// RowQuerier is the part of *pgxpool.Pool the lookup needs.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLookup reads roles from the user_roles table.
type PostgresLookup struct {
	db RowQuerier
}

func NewPostgresLookup(db RowQuerier) *PostgresLookup {
	return &PostgresLookup{db: db}
}

func (l *PostgresLookup) LookupRole(ctx context.Context, userID string) (accounts.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var raw string
	err := l.db.QueryRow(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoRole
		}
		return "", fmt.Errorf("query user role: %w", err)
	}
	return parse(raw)
}

// MeFetcher returns the identity behind the current token.
type MeFetcher interface {
	Me(ctx context.Context) (*authapi.UserInfo, error)
}

// APILookup reads the role from the auth backend's /me endpoint.
type APILookup struct {
	client MeFetcher
}

func NewAPILookup(client MeFetcher) *APILookup {
	return &APILookup{client: client}
}

func (l *APILookup) LookupRole(ctx context.Context, userID string) (accounts.Role, error) {
	me, err := l.client.Me(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch current user: %w", err)
	}
	if string(me.ID) != userID {
		return "", ErrUserChanged
	}
	if me.Role == "" {
		return "", ErrNoRole
	}
	return parse(me.Role)
}

func parse(raw string) (accounts.Role, error) {
	role, ok := accounts.ParseRole(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"userprofile/internal/users/models"
	"userprofile/pkg/platform/sentinel"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore persists users in PostgreSQL. The users_external_id_key
// constraint enforces one row per external identity.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectUser = `
	SELECT id, external_id, username, email, first_name, last_name, role,
	       display_name, picture_url, bio, address, phone_number, created_at, updated_at
	FROM users
`

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.findOne(ctx, selectUser+` WHERE external_id = $1`, externalID)
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findOne(ctx, selectUser+` WHERE id = $1`, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Role,
		&u.DisplayName, &u.PictureURL, &u.Bio, &u.Address, &u.PhoneNumber, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) Insert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, external_id, username, email, first_name, last_name, role,
		                   display_name, picture_url, bio, address, phone_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.ExternalID, user.Username, user.Email, user.FirstName, user.LastName, user.Role,
		user.DisplayName, user.PictureURL, user.Bio, user.Address, user.PhoneNumber, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert user %s: %w", user.ExternalID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			email = $2, first_name = $3, last_name = $4, role = $5,
			display_name = $6, picture_url = $7, bio = $8, address = $9,
			phone_number = $10, updated_at = $11
		WHERE id = $1 AND external_id = $12
	`
	res, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, user.Role,
		user.DisplayName, user.PictureURL, user.Bio, user.Address,
		user.PhoneNumber, user.UpdatedAt, user.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
    id uuid PRIMARY KEY,
    external_id text NOT NULL,
    username text NOT NULL,
    email text NOT NULL,
    first_name text NOT NULL DEFAULT '',
    last_name text NOT NULL DEFAULT '',
    role text NOT NULL DEFAULT 'User',
    display_name text NOT NULL DEFAULT '',
    picture_url text NOT NULL DEFAULT '',
    bio text NOT NULL DEFAULT '',
    address text NOT NULL DEFAULT '',
    phone_number text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT users_external_id_key UNIQUE (external_id)
);

ALTER TABLE users ADD COLUMN IF NOT EXISTS bio text NOT NULL DEFAULT '';
ALTER TABLE users ADD COLUMN IF NOT EXISTS address text NOT NULL DEFAULT '';
ALTER TABLE users ADD COLUMN IF NOT EXISTS phone_number text NOT NULL DEFAULT '';
`

// Migrate creates the users table when it does not exist and adds columns
// introduced since.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, usersSchema); err != nil {
		return fmt.Errorf("migrate users schema: %w", err)
	}
	return nil
}

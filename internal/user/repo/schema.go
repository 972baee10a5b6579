package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Schema is the DDL for users, the role catalogue and their join table.
// Every statement is idempotent; prefer migrations in production.
const Schema = `
CREATE SEQUENCE IF NOT EXISTS sequence_users START WITH 1 INCREMENT BY 1;
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  username VARCHAR(250) NOT NULL UNIQUE,
  password VARCHAR(120) NOT NULL,
  first_name VARCHAR(120) NOT NULL,
  last_name VARCHAR(120) NOT NULL,
  email VARCHAR(250) NOT NULL,
  enabled BOOLEAN NOT NULL,
  expired BOOLEAN NOT NULL,
  locked BOOLEAN NOT NULL,
  version BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER SEQUENCE sequence_users OWNED BY users.id;
CREATE TABLE IF NOT EXISTS roles (
  id VARCHAR(32) PRIMARY KEY,
  name VARCHAR(120) NOT NULL UNIQUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS users_roles (
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  role_id VARCHAR(32) NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
  PRIMARY KEY (user_id, role_id)
);
CREATE INDEX IF NOT EXISTS idx_users_roles_role_id ON users_roles(role_id);
`

// EnsureSchema creates the account tables if they do not exist.
func EnsureSchema(ctx context.Context, db sqlx.ExecerContext) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
)

const userColumns = `id, username, password, first_name, last_name, email, enabled, expired, locked, version, created_at, updated_at`

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users, roles and users_roles tables (idempotent).
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	return EnsureSchema(ctx, r.db)
}

// Create validates u, reserves the next id from sequence_users and inserts
// the row. The reserved id is consumed even when the insert is rejected.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (id int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("user_create", result(err), start) }()

	if err = check(u); err != nil {
		return 0, err
	}
	if err = r.db.GetContext(ctx, &id, `SELECT nextval('sequence_users')`); err != nil {
		return 0, translate("reserve user id", err)
	}

	now := time.Now().UTC()
	row := *u
	row.ID, row.Version, row.CreatedAt, row.UpdatedAt = id, 0, now, now
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :username, :password, :first_name, :last_name, :email, :enabled, :expired, :locked, :version, :created_at, :updated_at)`
	if _, err = r.db.NamedExecContext(ctx, q, &row); err != nil {
		return 0, translate("insert user", err)
	}
	u.ID, u.Version, u.CreatedAt, u.UpdatedAt = id, 0, now, now
	return id, nil
}

// GetByID fetches a user without its roles, or ErrNotFound.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (u *entity.User, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("user_get", result(err), start) }()
	return getUser(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByIDScoped fetches a user through the scope's transaction.
func (r *UserRepo) GetByIDScoped(ctx context.Context, s *Scope, id int64) (u *entity.User, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("user_get", result(err), start) }()
	q, err := s.queryer("user")
	if err != nil {
		return nil, err
	}
	u, err = getUser(ctx, q, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return u, lazyErr("user", err)
}

// GetByUsername fetches by username, or ErrNotFound.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (u *entity.User, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("user_get_by_username", result(err), start) }()
	return getUser(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

func getUser(ctx context.Context, q sqlx.QueryerContext, query string, arg any) (*entity.User, error) {
	var row entity.User
	if err := sqlx.GetContext(ctx, q, &row, query, arg); err != nil {
		return nil, translate("get user", err)
	}
	return &row, nil
}

// Update persists the scalar fields of u, guarded by its version. On success
// u.Version and u.UpdatedAt reflect the stored row.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("user_update", result(err), start) }()

	if err = check(u); err != nil {
		return err
	}
	row := *u
	row.UpdatedAt = time.Now().UTC()
	const q = `UPDATE users SET username=:username, password=:password, first_name=:first_name,
		last_name=:last_name, email=:email, enabled=:enabled, expired=:expired, locked=:locked,
		version=version+1, updated_at=:updated_at
		WHERE id=:id AND version=:version`
	res, err := r.db.NamedExecContext(ctx, q, &row)
	if err != nil {
		return translate("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate("update user", err)
	}
	if n == 0 {
		// either gone or someone else bumped the version first
		var exists bool
		if err = r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, u.ID); err != nil {
			return translate("update user", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	u.Version++
	u.UpdatedAt = row.UpdatedAt
	return nil
}

// Delete removes a user; its role links go with it (ON DELETE CASCADE).
func (r *UserRepo) Delete(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("user_delete", result(err), start) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return translate("delete user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate("delete user", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns users ordered by id with limit/offset pagination.
func (r *UserRepo) List(ctx context.Context, limit, offset int) (users []*entity.User, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("user_list", result(err), start) }()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	users = []*entity.User{}
	if err = r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, translate("list users", err)
	}
	return users, nil
}

// Count returns the number of stored users.
func (r *UserRepo) Count(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("user_count", result(err), start) }()
	if err = r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, translate("count users", err)
	}
	return n, nil
}

// AssociateRole links a role to a user. Linking an already linked role is a no-op.
func (r *UserRepo) AssociateRole(ctx context.Context, userID int64, roleID string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("role_associate", result(err), start) }()
	const q = `INSERT INTO users_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err = r.db.ExecContext(ctx, q, userID, roleID); err != nil {
		return translate("associate role", err)
	}
	return nil
}

// DissociateRole unlinks a role from a user. Unlinking an absent role is a no-op.
func (r *UserRepo) DissociateRole(ctx context.Context, userID int64, roleID string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("role_dissociate", result(err), start) }()
	if _, err = r.db.ExecContext(ctx, `DELETE FROM users_roles WHERE user_id=$1 AND role_id=$2`, userID, roleID); err != nil {
		return translate("dissociate role", err)
	}
	return nil
}

// LoadRoles resolves u.Roles through the scope's transaction. Without an
// active scope it fails with a *LazyLoadError and leaves u untouched.
func (r *UserRepo) LoadRoles(ctx context.Context, s *Scope, u *entity.User) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("role_load", result(err), start) }()

	q, err := s.queryer("roles")
	if err != nil {
		return err
	}
	const query = `SELECT r.id, r.name, r.created_at
		FROM roles r JOIN users_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1`
	var roles []entity.Role
	if err = sqlx.SelectContext(ctx, q, &roles, query, u.ID); err != nil {
		return translate("load roles", lazyErr("roles", err))
	}
	u.SetRoles(entity.NewRoleSet(roles...))
	return nil
}

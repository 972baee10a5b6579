package repo

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

// RoleRepo is the role catalogue backed by the roles table.
type RoleRepo struct {
	db    *sqlx.DB
	newID func() string
}

// NewRoleRepo builds a RoleRepo. A nil newID uses snowflake ids.
func NewRoleRepo(db *sqlx.DB, newID func() string) *RoleRepo {
	if newID == nil {
		newID = utilities.NewSnowflakeID
	}
	return &RoleRepo{db: db, newID: newID}
}

// Create adds a role to the catalogue. Duplicate names are a ConstraintViolation.
func (r *RoleRepo) Create(ctx context.Context, name string) (role *entity.Role, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("role_create", result(err), start) }()

	role = &entity.Role{ID: r.newID(), Name: strings.TrimSpace(name), CreatedAt: time.Now().UTC()}
	if err = check(role); err != nil {
		return nil, err
	}
	const q = `INSERT INTO roles (id, name, created_at) VALUES (:id, :name, :created_at)`
	if _, err = r.db.NamedExecContext(ctx, q, role); err != nil {
		return nil, translate("insert role", err)
	}
	return role, nil
}

func (r *RoleRepo) GetByID(ctx context.Context, id string) (role *entity.Role, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("role_get", result(err), start) }()
	return r.get(ctx, `SELECT id, name, created_at FROM roles WHERE id=$1`, id)
}

func (r *RoleRepo) GetByName(ctx context.Context, name string) (role *entity.Role, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("role_get_by_name", result(err), start) }()
	return r.get(ctx, `SELECT id, name, created_at FROM roles WHERE name=$1`, strings.TrimSpace(name))
}

func (r *RoleRepo) get(ctx context.Context, q string, arg any) (*entity.Role, error) {
	var role entity.Role
	if err := r.db.GetContext(ctx, &role, q, arg); err != nil {
		return nil, translate("get role", err)
	}
	return &role, nil
}

// List returns the whole catalogue ordered by name.
func (r *RoleRepo) List(ctx context.Context) (roles []entity.Role, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("role_list", result(err), start) }()
	roles = []entity.Role{}
	if err = r.db.SelectContext(ctx, &roles, `SELECT id, name, created_at FROM roles ORDER BY name`); err != nil {
		return nil, translate("list roles", err)
	}
	return roles, nil
}

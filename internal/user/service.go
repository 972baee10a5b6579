package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/user/repo"
)

// PasswordHasher turns raw passwords into the opaque credential stored with a user.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports hashes made with a lower cost than configured.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return c < b.cost()
}

// Store is the user persistence the service depends on.
type Store interface {
	Create(ctx context.Context, u *entity.User) (int64, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*entity.User, error)
	AssociateRole(ctx context.Context, userID int64, roleID string) error
	DissociateRole(ctx context.Context, userID int64, roleID string) error
	InScope(ctx context.Context, fn func(s *userrepo.Scope) error) error
	GetByIDScoped(ctx context.Context, s *userrepo.Scope, id int64) (*entity.User, error)
	LoadRoles(ctx context.Context, s *userrepo.Scope, u *entity.User) error
}

// RoleStore is the role catalogue the service depends on.
type RoleStore interface {
	Create(ctx context.Context, name string) (*entity.Role, error)
	GetByName(ctx context.Context, name string) (*entity.Role, error)
	List(ctx context.Context) ([]entity.Role, error)
}

var (
	_ Store     = (*userrepo.UserRepo)(nil)
	_ RoleStore = (*userrepo.RoleRepo)(nil)
)

var (
	ErrUserNotFound        = userrepo.ErrNotFound
	ErrConstraintViolation = userrepo.ErrConstraintViolation
	ErrVersionConflict     = userrepo.ErrVersionConflict
	ErrLazyLoad            = userrepo.ErrLazyLoad
	ErrLocked              = errors.New("user locked")
	ErrDisabled            = errors.New("user disabled")
	ErrExpired             = errors.New("user expired")
	ErrBadCredentials      = errors.New("invalid credentials")
)

// read-modify-write attempts before giving up on ErrVersionConflict
const maxUpdateAttempts = 3

// UserService orchestrates registration and account-management flows.
type UserService struct {
	users  Store
	roles  RoleStore
	hasher PasswordHasher
	logger *zap.SugaredLogger
}

// NewUserService wires the service. Nil stores are built on db, a nil hasher
// is bcrypt with cost 12 and a nil logger discards output.
func NewUserService(db *sqlx.DB, users Store, roles RoleStore, hasher PasswordHasher, logger *zap.SugaredLogger) *UserService {
	if users == nil {
		users = userrepo.NewUserRepo(db)
	}
	if roles == nil {
		roles = userrepo.NewRoleRepo(db, nil)
	}
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UserService{users: users, roles: roles, hasher: hasher, logger: logger}
}

// NewUser is the registration input. Password is the raw secret.
type NewUser struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
	Enabled   bool
	Expired   bool
	Locked    bool
}

// Register hashes the password and stores the account, returning it with its id.
func (s *UserService) Register(ctx context.Context, in NewUser) (*entity.User, error) {
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		Username:  strings.TrimSpace(in.Username),
		Password:  hash,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Enabled:   in.Enabled,
		Expired:   in.Expired,
		Locked:    in.Locked,
	}
	if _, err := s.users.Create(ctx, u); err != nil {
		s.logger.Debugw("register failed", "username", u.Username, "err", err)
		return nil, err
	}
	s.logger.Infow("user registered", "id", u.ID, "username", u.Username)
	return u, nil
}

func (s *UserService) hashPassword(pw string) (string, error) {
	if pw == "" {
		return "", &userrepo.ConstraintViolation{Field: "password", Reason: "is required"}
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", &userrepo.ConstraintViolation{Field: "password", Reason: "longer than 72 bytes", Err: err}
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return s.users.GetByUsername(ctx, strings.TrimSpace(username))
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("user deleted", "id", id)
	return nil
}

// ProfileUpdate carries optional new values; nil fields are left as they are.
type ProfileUpdate struct {
	Username  *string
	FirstName *string
	LastName  *string
	Email     *string
}

// UpdateProfile changes identity fields. Taking another user's username is a ConstraintViolation.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, p ProfileUpdate) (*entity.User, error) {
	return s.mutate(ctx, id, "update profile", func(u *entity.User) error {
		if p.Username != nil {
			u.Username = strings.TrimSpace(*p.Username)
		}
		if p.FirstName != nil {
			u.FirstName = strings.TrimSpace(*p.FirstName)
		}
		if p.LastName != nil {
			u.LastName = strings.TrimSpace(*p.LastName)
		}
		if p.Email != nil {
			u.Email = strings.ToLower(strings.TrimSpace(*p.Email))
		}
		return nil
	})
}

func (s *UserService) Enable(ctx context.Context, id int64) (*entity.User, error) {
	return s.mutate(ctx, id, "enable", func(u *entity.User) error { u.Enabled = true; return nil })
}

func (s *UserService) Disable(ctx context.Context, id int64) (*entity.User, error) {
	return s.mutate(ctx, id, "disable", func(u *entity.User) error { u.Enabled = false; return nil })
}

func (s *UserService) Lock(ctx context.Context, id int64) (*entity.User, error) {
	return s.mutate(ctx, id, "lock", func(u *entity.User) error { u.Locked = true; return nil })
}

func (s *UserService) Unlock(ctx context.Context, id int64) (*entity.User, error) {
	return s.mutate(ctx, id, "unlock", func(u *entity.User) error { u.Locked = false; return nil })
}

func (s *UserService) Expire(ctx context.Context, id int64) (*entity.User, error) {
	return s.mutate(ctx, id, "expire", func(u *entity.User) error { u.Expired = true; return nil })
}

func (s *UserService) Unexpire(ctx context.Context, id int64) (*entity.User, error) {
	return s.mutate(ctx, id, "unexpire", func(u *entity.User) error { u.Expired = false; return nil })
}

// ChangePassword replaces the stored credential with a hash of newPassword.
func (s *UserService) ChangePassword(ctx context.Context, id int64, newPassword string) error {
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, id, "change password", func(u *entity.User) error {
		u.Password = hash
		return nil
	})
	return err
}

// mutate loads the user, applies fn and writes it back, retrying on version conflicts.
func (s *UserService) mutate(ctx context.Context, id int64, op string, fn func(u *entity.User) error) (*entity.User, error) {
	var lastErr error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(u); err != nil {
			return nil, err
		}
		err = s.users.Update(ctx, u)
		if err == nil {
			s.logger.Debugw("user updated", "op", op, "id", id, "version", u.Version)
			return u, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Debugw("version conflict, retrying", "op", op, "id", id, "attempt", attempt)
	}
	return nil, lastErr
}

// VerifyPassword checks credentials for an account that is allowed to sign in.
// Unknown usernames and wrong passwords both yield ErrBadCredentials.
func (s *UserService) VerifyPassword(ctx context.Context, username, password string) (*entity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	switch {
	case !u.Enabled:
		return nil, ErrDisabled
	case u.Locked:
		return nil, ErrLocked
	case u.Expired:
		return nil, ErrExpired
	}
	if !s.hasher.Verify(u.Password, password) {
		return nil, ErrBadCredentials
	}

	if s.hasher.NeedsRehash(u.Password) {
		if hash, hErr := s.hasher.Hash(password); hErr == nil {
			u.Password = hash
			if uErr := s.users.Update(ctx, u); uErr != nil {
				s.logger.Warnw("rehash on login failed", "id", u.ID, "err", uErr)
			}
		}
	}
	return u, nil
}

// CreateRole adds a role to the catalogue.
func (s *UserService) CreateRole(ctx context.Context, name string) (*entity.Role, error) {
	return s.roles.Create(ctx, name)
}

func (s *UserService) ListRoles(ctx context.Context) ([]entity.Role, error) {
	return s.roles.List(ctx)
}

// GrantRole associates the named role with the user. Granting twice is a no-op.
func (s *UserService) GrantRole(ctx context.Context, userID int64, roleName string) error {
	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("role %q: %w", roleName, err)
	}
	if err := s.users.AssociateRole(ctx, userID, role.ID); err != nil {
		return err
	}
	s.logger.Debugw("role granted", "user_id", userID, "role", role.Name)
	return nil
}

// RevokeRole removes the named role from the user. Unknown or absent roles are a no-op.
func (s *UserService) RevokeRole(ctx context.Context, userID int64, roleName string) error {
	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.users.DissociateRole(ctx, userID, role.ID); err != nil {
		return err
	}
	s.logger.Debugw("role revoked", "user_id", userID, "role", role.Name)
	return nil
}

// Roles returns the user's roles sorted by name, loaded within one scope.
func (s *UserService) Roles(ctx context.Context, userID int64) ([]entity.Role, error) {
	var roles []entity.Role
	err := s.users.InScope(ctx, func(sc *userrepo.Scope) error {
		u, err := s.users.GetByIDScoped(ctx, sc, userID)
		if err != nil {
			return err
		}
		if err := s.users.LoadRoles(ctx, sc, u); err != nil {
			return err
		}
		roles = u.Roles.Slice()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

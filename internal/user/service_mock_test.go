package user

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/user/repo"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, u *entity.User) (int64, error) {
	args := m.Called(ctx, u)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*entity.User)
	return u, args.Error(1)
}

func (m *MockStore) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	args := m.Called(ctx, username)
	u, _ := args.Get(0).(*entity.User)
	return u, args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, u *entity.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *MockStore) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	args := m.Called(ctx, limit, offset)
	users, _ := args.Get(0).([]*entity.User)
	return users, args.Error(1)
}

func (m *MockStore) AssociateRole(ctx context.Context, userID int64, roleID string) error {
	return m.Called(ctx, userID, roleID).Error(0)
}

func (m *MockStore) DissociateRole(ctx context.Context, userID int64, roleID string) error {
	return m.Called(ctx, userID, roleID).Error(0)
}

// InScope hands fn a zero Scope; the mocked scoped methods ignore it.
func (m *MockStore) InScope(ctx context.Context, fn func(s *userrepo.Scope) error) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}
	return fn(&userrepo.Scope{})
}

func (m *MockStore) GetByIDScoped(ctx context.Context, s *userrepo.Scope, id int64) (*entity.User, error) {
	args := m.Called(ctx, s, id)
	u, _ := args.Get(0).(*entity.User)
	return u, args.Error(1)
}

func (m *MockStore) LoadRoles(ctx context.Context, s *userrepo.Scope, u *entity.User) error {
	return m.Called(ctx, s, u).Error(0)
}

type MockRoleStore struct {
	mock.Mock
}

func (m *MockRoleStore) Create(ctx context.Context, name string) (*entity.Role, error) {
	args := m.Called(ctx, name)
	r, _ := args.Get(0).(*entity.Role)
	return r, args.Error(1)
}

func (m *MockRoleStore) GetByName(ctx context.Context, name string) (*entity.Role, error) {
	args := m.Called(ctx, name)
	r, _ := args.Get(0).(*entity.Role)
	return r, args.Error(1)
}

func (m *MockRoleStore) List(ctx context.Context) ([]entity.Role, error) {
	args := m.Called(ctx)
	roles, _ := args.Get(0).([]entity.Role)
	return roles, args.Error(1)
}

package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/user/repo"
)

var testHasher = BcryptHasher{Cost: bcrypt.MinCost}

func newTestService() (*UserService, *MockStore, *MockRoleStore) {
	users := new(MockStore)
	roles := new(MockRoleStore)
	return NewUserService(nil, users, roles, testHasher, nil), users, roles
}

func storedUser(t *testing.T, password string) *entity.User {
	t.Helper()
	hash, err := testHasher.Hash(password)
	require.NoError(t, err)
	return &entity.User{
		ID:        1,
		Username:  "alice",
		Password:  hash,
		FirstName: "Alice",
		LastName:  "A",
		Email:     "a@x.com",
		Enabled:   true,
	}
}

func TestRegister(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, users, _ := newTestService()

		users.On("Create", mock.Anything, mock.MatchedBy(func(u *entity.User) bool {
			return u.Username == "alice" && u.Email == "a@x.com" && u.Password != "secret" &&
				bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("secret")) == nil
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*entity.User).ID = 1
		}).Return(int64(1), nil)

		u, err := svc.Register(context.Background(), NewUser{
			Username: " alice ", Password: "secret", FirstName: "Alice", LastName: "A",
			Email: "A@X.com", Enabled: true,
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), u.ID)
		users.AssertExpectations(t)
	})

	t.Run("empty password", func(t *testing.T) {
		svc, users, _ := newTestService()

		_, err := svc.Register(context.Background(), NewUser{Username: "alice", FirstName: "A", LastName: "A", Email: "a@x.com"})
		require.ErrorIs(t, err, ErrConstraintViolation)
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("password over bcrypt limit", func(t *testing.T) {
		svc, _, _ := newTestService()

		long := make([]byte, 73)
		for i := range long {
			long[i] = 'x'
		}
		_, err := svc.Register(context.Background(), NewUser{Username: "alice", Password: string(long), FirstName: "A", LastName: "A", Email: "a@x.com"})
		require.ErrorIs(t, err, ErrConstraintViolation)
	})

	t.Run("duplicate username", func(t *testing.T) {
		svc, users, _ := newTestService()

		users.On("Create", mock.Anything, mock.Anything).
			Return(int64(0), &userrepo.ConstraintViolation{Field: "username", Reason: "already exists"})

		_, err := svc.Register(context.Background(), NewUser{Username: "alice", Password: "pw", FirstName: "A", LastName: "A", Email: "a@x.com"})
		require.ErrorIs(t, err, ErrConstraintViolation)
	})
}

func TestAccountFlags(t *testing.T) {
	cases := map[string]struct {
		call  func(s *UserService, ctx context.Context, id int64) (*entity.User, error)
		check func(u *entity.User) bool
	}{
		"lock":     {(*UserService).Lock, func(u *entity.User) bool { return u.Locked }},
		"unlock":   {(*UserService).Unlock, func(u *entity.User) bool { return !u.Locked }},
		"disable":  {(*UserService).Disable, func(u *entity.User) bool { return !u.Enabled }},
		"enable":   {(*UserService).Enable, func(u *entity.User) bool { return u.Enabled }},
		"expire":   {(*UserService).Expire, func(u *entity.User) bool { return u.Expired }},
		"unexpire": {(*UserService).Unexpire, func(u *entity.User) bool { return !u.Expired }},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, users, _ := newTestService()
			users.On("GetByID", mock.Anything, int64(1)).Return(storedUser(t, "pw"), nil)
			users.On("Update", mock.Anything, mock.MatchedBy(tc.check)).Return(nil)

			u, err := tc.call(svc, context.Background(), 1)
			require.NoError(t, err)
			require.True(t, tc.check(u))
			users.AssertExpectations(t)
		})
	}
}

func TestMutateRetriesVersionConflict(t *testing.T) {
	svc, users, _ := newTestService()
	users.On("GetByID", mock.Anything, int64(1)).Return(storedUser(t, "pw"), nil)
	users.On("Update", mock.Anything, mock.Anything).Return(ErrVersionConflict).Once()
	users.On("Update", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.Lock(context.Background(), 1)
	require.NoError(t, err)
	users.AssertNumberOfCalls(t, "GetByID", 2)
}

func TestMutateGivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, users, _ := newTestService()
	users.On("GetByID", mock.Anything, int64(1)).Return(storedUser(t, "pw"), nil)
	users.On("Update", mock.Anything, mock.Anything).Return(ErrVersionConflict)

	_, err := svc.Lock(context.Background(), 1)
	require.ErrorIs(t, err, ErrVersionConflict)
	users.AssertNumberOfCalls(t, "Update", maxUpdateAttempts)
}

func TestMutateNotFound(t *testing.T) {
	svc, users, _ := newTestService()
	users.On("GetByID", mock.Anything, int64(9)).Return(nil, userrepo.ErrNotFound)

	_, err := svc.Enable(context.Background(), 9)
	require.ErrorIs(t, err, ErrUserNotFound)
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateProfileUsernameTaken(t *testing.T) {
	svc, users, _ := newTestService()
	users.On("GetByID", mock.Anything, int64(1)).Return(storedUser(t, "pw"), nil)
	users.On("Update", mock.Anything, mock.MatchedBy(func(u *entity.User) bool { return u.Username == "bob" })).
		Return(&userrepo.ConstraintViolation{Field: "username", Reason: "already exists"})

	bob := "bob"
	_, err := svc.UpdateProfile(context.Background(), 1, ProfileUpdate{Username: &bob})
	require.ErrorIs(t, err, ErrConstraintViolation)
}

func TestChangePassword(t *testing.T) {
	svc, users, _ := newTestService()
	users.On("GetByID", mock.Anything, int64(1)).Return(storedUser(t, "old"), nil)
	users.On("Update", mock.Anything, mock.MatchedBy(func(u *entity.User) bool {
		return testHasher.Verify(u.Password, "new")
	})).Return(nil)

	require.NoError(t, svc.ChangePassword(context.Background(), 1, "new"))
	users.AssertExpectations(t)

	require.ErrorIs(t, svc.ChangePassword(context.Background(), 1, ""), ErrConstraintViolation)
}

func TestVerifyPassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, users, _ := newTestService()
		users.On("GetByUsername", mock.Anything, "alice").Return(storedUser(t, "pw"), nil)

		u, err := svc.VerifyPassword(context.Background(), "alice", "pw")
		require.NoError(t, err)
		require.Equal(t, int64(1), u.ID)
		users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, users, _ := newTestService()
		users.On("GetByUsername", mock.Anything, "alice").Return(storedUser(t, "pw"), nil)

		_, err := svc.VerifyPassword(context.Background(), "alice", "nope")
		require.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, users, _ := newTestService()
		users.On("GetByUsername", mock.Anything, "ghost").Return(nil, userrepo.ErrNotFound)

		_, err := svc.VerifyPassword(context.Background(), "ghost", "pw")
		require.ErrorIs(t, err, ErrBadCredentials)
	})

	states := map[string]struct {
		mutate func(u *entity.User)
		want   error
	}{
		"disabled": {func(u *entity.User) { u.Enabled = false }, ErrDisabled},
		"locked":   {func(u *entity.User) { u.Locked = true }, ErrLocked},
		"expired":  {func(u *entity.User) { u.Expired = true }, ErrExpired},
	}
	for name, tc := range states {
		t.Run(name, func(t *testing.T) {
			svc, users, _ := newTestService()
			u := storedUser(t, "pw")
			tc.mutate(u)
			users.On("GetByUsername", mock.Anything, "alice").Return(u, nil)

			_, err := svc.VerifyPassword(context.Background(), "alice", "pw")
			require.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("rehash weaker hash", func(t *testing.T) {
		users := new(MockStore)
		svc := NewUserService(nil, users, new(MockRoleStore), BcryptHasher{Cost: bcrypt.MinCost + 1}, nil)
		users.On("GetByUsername", mock.Anything, "alice").Return(storedUser(t, "pw"), nil)
		users.On("Update", mock.Anything, mock.MatchedBy(func(u *entity.User) bool {
			c, err := bcrypt.Cost([]byte(u.Password))
			return err == nil && c == bcrypt.MinCost+1
		})).Return(nil)

		_, err := svc.VerifyPassword(context.Background(), "alice", "pw")
		require.NoError(t, err)
		users.AssertExpectations(t)
	})
}

func TestGrantRole(t *testing.T) {
	svc, users, roles := newTestService()
	roles.On("GetByName", mock.Anything, "admin").Return(&entity.Role{ID: "r1", Name: "admin"}, nil)
	users.On("AssociateRole", mock.Anything, int64(1), "r1").Return(nil)

	require.NoError(t, svc.GrantRole(context.Background(), 1, "admin"))
	require.NoError(t, svc.GrantRole(context.Background(), 1, "admin"))
	users.AssertNumberOfCalls(t, "AssociateRole", 2)
}

func TestGrantUnknownRole(t *testing.T) {
	svc, users, roles := newTestService()
	roles.On("GetByName", mock.Anything, "ghost").Return(nil, userrepo.ErrNotFound)

	err := svc.GrantRole(context.Background(), 1, "ghost")
	require.ErrorIs(t, err, userrepo.ErrNotFound)
	users.AssertNotCalled(t, "AssociateRole", mock.Anything, mock.Anything, mock.Anything)
}

func TestRevokeRole(t *testing.T) {
	svc, users, roles := newTestService()
	roles.On("GetByName", mock.Anything, "admin").Return(&entity.Role{ID: "r1", Name: "admin"}, nil)
	roles.On("GetByName", mock.Anything, "ghost").Return(nil, userrepo.ErrNotFound)
	users.On("DissociateRole", mock.Anything, int64(1), "r1").Return(nil)

	require.NoError(t, svc.RevokeRole(context.Background(), 1, "admin"))
	require.NoError(t, svc.RevokeRole(context.Background(), 1, "ghost"))
	users.AssertNumberOfCalls(t, "DissociateRole", 1)
}

func TestRoles(t *testing.T) {
	svc, users, _ := newTestService()
	u := storedUser(t, "pw")
	users.On("InScope", mock.Anything).Return(nil)
	users.On("GetByIDScoped", mock.Anything, mock.Anything, int64(1)).Return(u, nil)
	users.On("LoadRoles", mock.Anything, mock.Anything, u).Run(func(args mock.Arguments) {
		args.Get(2).(*entity.User).SetRoles(entity.NewRoleSet(
			entity.Role{ID: "r2", Name: "viewer"},
			entity.Role{ID: "r1", Name: "admin"},
		))
	}).Return(nil)

	roles, err := svc.Roles(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Equal(t, "admin", roles[0].Name)
	require.Equal(t, "viewer", roles[1].Name)
}

func TestRolesLazyLoadFailure(t *testing.T) {
	svc, users, _ := newTestService()
	u := storedUser(t, "pw")
	users.On("InScope", mock.Anything).Return(nil)
	users.On("GetByIDScoped", mock.Anything, mock.Anything, int64(1)).Return(u, nil)
	users.On("LoadRoles", mock.Anything, mock.Anything, u).Return(&userrepo.LazyLoadError{Association: "roles"})

	_, err := svc.Roles(context.Background(), 1)
	require.ErrorIs(t, err, ErrLazyLoad)
}

func TestBcryptNeedsRehash(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("pw")
	require.NoError(t, err)
	require.False(t, h.NeedsRehash(hash))
	require.True(t, BcryptHasher{Cost: bcrypt.MinCost + 2}.NeedsRehash(hash))
	require.True(t, h.NeedsRehash("not-a-hash"))
}

package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantops/portal/internal/audit"
	"plantops/portal/internal/authz"
	"plantops/portal/internal/kv"
	"plantops/portal/internal/models"
	"plantops/portal/internal/repository"
	"plantops/portal/internal/route"
	"plantops/portal/internal/security"
	"plantops/portal/internal/session"
)

var testParams = security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type eventLog struct {
	events []audit.Event
}

func (l *eventLog) Publish(_ context.Context, event audit.Event) error {
	l.events = append(l.events, event)
	return nil
}

type serviceFixture struct {
	service  *UserService
	users    *repository.KVUserRepository
	sessions *session.Manager
	events   *eventLog
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	store := kv.NewMemoryStore()
	users := repository.NewKVUserRepository(kv.Scope(store, "credentials:"), zerolog.Nop())
	events := &eventLog{}
	sessions := session.NewManager(users, store, events, session.Config{}, zerolog.Nop())

	enforcer, err := authz.New(route.Capabilities)
	require.NoError(t, err)

	svc := NewUserService(users, sessions, enforcer, events, zerolog.Nop())
	svc.hash = func(password string) ([]byte, error) {
		return security.HashPasswordWithParams(password, testParams)
	}
	return serviceFixture{service: svc, users: users, sessions: sessions, events: events}
}

var adminActor = Actor{ID: "admin-1", Role: models.RoleAdmin}

func ptr[T any](v T) *T { return &v }

func operatorInput() CreateUserInput {
	return CreateUserInput{
		Username: "OPERATOR1",
		NIK:      "NIK001",
		Password: "secret1",
		Role:     models.RoleBatchOperator,
		Location: models.LocationCikarang,
	}
}

func TestCreateHashesPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user, err := f.service.Create(ctx, Actor{ID: "admin-1", Role: models.RoleSuperAdmin}, operatorInput())
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotContains(t, string(user.PasswordHash), "secret1")

	ok, err := security.VerifyPassword("secret1", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, audit.EventUserCreated, f.events.events[0].Type)
	assert.Equal(t, "admin-1", f.events.events[0].ActorID)
}

func TestCreateValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	cases := map[string]func(in *CreateUserInput){
		"blank username": func(in *CreateUserInput) { in.Username = "  " },
		"blank nik":      func(in *CreateUserInput) { in.NIK = "" },
		"blank password": func(in *CreateUserInput) { in.Password = "" },
		"unknown role":   func(in *CreateUserInput) { in.Role = "MANDOR" },
		"unknown site":   func(in *CreateUserInput) { in.Location = "BP JAKARTA" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := operatorInput()
			mutate(&input)
			_, err := f.service.Create(ctx, SystemActor, input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	users, err := f.service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestCreateDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, SystemActor, operatorInput())
	require.NoError(t, err)

	dup := operatorInput()
	dup.Username = "OPERATOR2"
	dup.NIK = "nik001"
	_, err = f.service.Create(ctx, SystemActor, dup)
	assert.ErrorIs(t, err, repository.ErrDuplicateIdentifier)
}

func TestUpdatePasswordOnlyWhenGiven(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user, err := f.service.Create(ctx, SystemActor, operatorInput())
	require.NoError(t, err)

	updated, err := f.service.Update(ctx, SystemActor, user.ID, UpdateUserInput{Role: ptr(models.RolePlantHead)})
	require.NoError(t, err)
	assert.Equal(t, models.RolePlantHead, updated.Role)
	assert.Equal(t, user.PasswordHash, updated.PasswordHash)

	updated, err = f.service.Update(ctx, SystemActor, user.ID, UpdateUserInput{Password: "abcdef"})
	require.NoError(t, err)
	ok, err := security.VerifyPassword("abcdef", updated.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.service.Update(ctx, SystemActor, user.ID, UpdateUserInput{Username: ptr("")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.service.Update(ctx, SystemActor, "missing", UpdateUserInput{Role: ptr(models.RoleEmployee)})
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user, err := f.service.Create(ctx, SystemActor, operatorInput())
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, adminActor, user.ID))
	require.NoError(t, f.service.Delete(ctx, adminActor, user.ID))

	_, err = f.service.Get(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestChangeOwnPasswordLogsOut(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, SystemActor, operatorInput())
	require.NoError(t, err)

	var navigated []string
	nav := session.NavigatorFunc(func(path string) { navigated = append(navigated, path) })

	cur := f.sessions.Open("dev-1")
	require.NoError(t, f.sessions.Login(ctx, cur, nav, "OPERATOR1", "secret1"))

	err = f.service.ChangeOwnPassword(ctx, cur, nav, "wrong", "new-secret")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
	assert.Equal(t, session.StateAuthenticated, cur.State())

	require.NoError(t, f.service.ChangeOwnPassword(ctx, cur, nav, "secret1", "new-secret"))
	assert.Equal(t, session.StateUnauthenticated, cur.State())
	assert.Equal(t, []string{"/dashboard", "/login"}, navigated)

	restored := f.sessions.Open("dev-1")
	require.NoError(t, f.sessions.Restore(ctx, restored))
	assert.Equal(t, session.StateUnauthenticated, restored.State())

	err = f.sessions.Login(ctx, f.sessions.Open("dev-2"), nav, "OPERATOR1", "secret1")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
	require.NoError(t, f.sessions.Login(ctx, f.sessions.Open("dev-2"), nav, "nik001", "new-secret"))
}

func TestChangeOwnPasswordRequiresSession(t *testing.T) {
	f := newServiceFixture(t)
	nav := session.NavigatorFunc(func(string) {})

	err := f.service.ChangeOwnPassword(context.Background(), f.sessions.Open("dev-1"), nav, "a", "b")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestEnsureAdmin(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.service.EnsureAdmin(ctx, BootstrapAdmin{})
	require.NoError(t, err)
	assert.False(t, created)

	created, err = f.service.EnsureAdmin(ctx, BootstrapAdmin{Username: "root", NIK: "0001", Password: "changeme"})
	require.NoError(t, err)
	assert.True(t, created)

	admin, err := f.users.FindByIdentifier(ctx, "ROOT")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, admin.Role)

	created, err = f.service.EnsureAdmin(ctx, BootstrapAdmin{Username: "other", Password: "x"})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestAdminRoleLimits(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	self, err := f.service.Create(ctx, SystemActor, CreateUserInput{Username: "ADMIN1", NIK: "NIK900", Password: "x", Role: models.RoleAdmin})
	require.NoError(t, err)
	root, err := f.service.Create(ctx, SystemActor, CreateUserInput{Username: "ROOT", NIK: "NIK999", Password: "x", Role: models.RoleSuperAdmin})
	require.NoError(t, err)
	actor := Actor{ID: self.ID, Role: models.RoleAdmin}

	boss := operatorInput()
	boss.Role = models.RoleSuperAdmin
	_, err = f.service.Create(ctx, actor, boss)
	assert.ErrorIs(t, err, ErrRoleNotGrantable)

	_, err = f.service.Update(ctx, actor, self.ID, UpdateUserInput{Role: ptr(models.RoleSuperAdmin)})
	assert.ErrorIs(t, err, ErrRoleNotGrantable)
	_, err = f.service.Update(ctx, actor, root.ID, UpdateUserInput{Password: "mine-now"})
	assert.ErrorIs(t, err, ErrRoleNotGrantable)
	assert.ErrorIs(t, f.service.Delete(ctx, actor, root.ID), ErrRoleNotGrantable)

	stored, err := f.service.Get(ctx, self.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, stored.Role)

	// plant staff and peers stay within an admin's reach
	operator, err := f.service.Create(ctx, actor, operatorInput())
	require.NoError(t, err)
	_, err = f.service.Update(ctx, actor, operator.ID, UpdateUserInput{Role: ptr(models.RoleAdmin)})
	require.NoError(t, err)

	_, err = f.service.Update(ctx, Actor{ID: root.ID, Role: models.RoleSuperAdmin}, self.ID, UpdateUserInput{Role: ptr(models.RoleSuperAdmin)})
	assert.NoError(t, err)
}

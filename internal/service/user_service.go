package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"plantops/portal/internal/audit"
	"plantops/portal/internal/models"
	"plantops/portal/internal/repository"
	"plantops/portal/internal/route"
	"plantops/portal/internal/security"
	"plantops/portal/internal/session"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRoleNotGrantable means the actor tried to manage an administrator role
	// that reaches sections the actor cannot open itself.
	ErrRoleNotGrantable = errors.New("role exceeds the actor's own access")
)

// Grants lists the sections a role may open. authz.Enforcer implements it.
type Grants interface {
	Sections(role models.Role) []route.Section
}

// Actor is whoever performs an administrative change.
type Actor struct {
	ID   string
	Role models.Role
	// System actors (portalctl, the bootstrap admin) are not limited by a role.
	System bool
}

var SystemActor = Actor{ID: "system", System: true}

// SessionActor is the logged-in user behind an admin request.
func SessionActor(s models.Session) Actor {
	return Actor{ID: s.UserID, Role: s.Role}
}

// UserService is the administration side of the credential store: the only place
// users are created, edited and removed.
type UserService struct {
	users    repository.CredentialStore
	sessions *session.Manager
	grants   Grants
	events   audit.Publisher
	log      zerolog.Logger
	hash     func(password string) ([]byte, error)
}

func NewUserService(users repository.CredentialStore, sessions *session.Manager, grants Grants, events audit.Publisher, log zerolog.Logger) *UserService {
	if events == nil {
		events = audit.Nop{}
	}
	return &UserService{
		users:    users,
		sessions: sessions,
		grants:   grants,
		events:   events,
		log:      log,
		hash:     security.HashPassword,
	}
}

type CreateUserInput struct {
	Username string
	NIK      string
	Password string
	Role     models.Role
	Location models.Location
}

// UpdateUserInput leaves nil fields untouched. An empty Password keeps the
// stored hash.
type UpdateUserInput struct {
	Username *string
	NIK      *string
	Password string
	Role     *models.Role
	Location *models.Location
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	return s.users.GetByID(ctx, id)
}

// mayManage reports ErrRoleNotGrantable when role can administer users and opens a
// section actor cannot. Roles without the admin section are open to any admin.
func (s *UserService) mayManage(actor Actor, role models.Role) error {
	if actor.System {
		return nil
	}
	granted := s.grants.Sections(role)
	if !slices.Contains(granted, route.SectionAdmin) {
		return nil
	}
	own := s.grants.Sections(actor.Role)
	for _, section := range granted {
		if !slices.Contains(own, section) {
			return fmt.Errorf("%w: %s cannot manage %s", ErrRoleNotGrantable, actor.Role, role)
		}
	}
	return nil
}

func (s *UserService) Create(ctx context.Context, actor Actor, input CreateUserInput) (models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.NIK = strings.TrimSpace(input.NIK)
	switch {
	case input.Username == "":
		return models.User{}, invalid("username required")
	case input.NIK == "":
		return models.User{}, invalid("nik required")
	case input.Password == "":
		return models.User{}, invalid("password required")
	case !input.Role.Valid():
		return models.User{}, invalid("unknown role %q", input.Role)
	case !input.Location.Valid():
		return models.User{}, invalid("unknown location %q", input.Location)
	}
	if err := s.mayManage(actor, input.Role); err != nil {
		return models.User{}, err
	}

	passwordHash, err := s.hash(input.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Add(ctx, models.User{
		Username:     input.Username,
		NIK:          input.NIK,
		PasswordHash: passwordHash,
		Role:         input.Role,
		Location:     input.Location,
	})
	if err != nil {
		return models.User{}, err
	}

	s.publish(ctx, audit.Event{Type: audit.EventUserCreated, UserID: user.ID, ActorID: actor.ID})
	return user, nil
}

// Update edits id. Non-system actors may only touch accounts, and assign roles,
// within their own sections.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, input UpdateUserInput) (models.User, error) {
	if input.Username != nil && strings.TrimSpace(*input.Username) == "" {
		return models.User{}, invalid("username required")
	}
	if input.NIK != nil && strings.TrimSpace(*input.NIK) == "" {
		return models.User{}, invalid("nik required")
	}
	if input.Role != nil && !input.Role.Valid() {
		return models.User{}, invalid("unknown role %q", *input.Role)
	}
	if input.Location != nil && !input.Location.Valid() {
		return models.User{}, invalid("unknown location %q", *input.Location)
	}

	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := s.mayManage(actor, target.Role); err != nil {
		return models.User{}, err
	}
	if input.Role != nil {
		if err := s.mayManage(actor, *input.Role); err != nil {
			return models.User{}, err
		}
	}

	patch := models.UserPatch{
		Username: input.Username,
		NIK:      input.NIK,
		Role:     input.Role,
		Location: input.Location,
	}
	if input.Password != "" {
		passwordHash, err := s.hash(input.Password)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
		patch.PasswordHash = passwordHash
	}

	user, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return models.User{}, err
	}

	s.publish(ctx, audit.Event{Type: audit.EventUserUpdated, UserID: user.ID, ActorID: actor.ID})
	return user, nil
}

// Delete removes the user. Deleting an absent id succeeds.
func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	target, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.mayManage(actor, target.Role); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, audit.Event{Type: audit.EventUserDeleted, UserID: id, ActorID: actor.ID})
	return nil
}

// ChangeOwnPassword replaces the password of cur's user after checking the old one,
// then logs the device out so the user signs in again with the new password.
func (s *UserService) ChangeOwnPassword(ctx context.Context, cur *session.Current, nav session.Navigator, oldPassword, newPassword string) error {
	current, ok := cur.Session()
	if !ok {
		return ErrNotAuthenticated
	}
	if newPassword == "" {
		return invalid("new password required")
	}

	user, err := s.users.GetByID(ctx, current.UserID)
	if err != nil {
		return err
	}
	matches, err := security.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil || !matches {
		return session.ErrInvalidCredentials
	}

	passwordHash, err := s.hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.users.Update(ctx, user.ID, models.UserPatch{PasswordHash: passwordHash}); err != nil {
		return err
	}
	s.publish(ctx, audit.Event{Type: audit.EventPasswordChanged, UserID: user.ID, ActorID: user.ID, DeviceID: cur.DeviceID()})

	return s.sessions.Logout(ctx, cur, nav)
}

type BootstrapAdmin struct {
	Username string
	NIK      string
	Password string
}

// EnsureAdmin creates a SUPER ADMIN from admin when the store holds no users yet.
// It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, admin BootstrapAdmin) (bool, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list users: %w", err)
	}
	if len(users) > 0 {
		return false, nil
	}
	if admin.Username == "" || admin.Password == "" {
		s.log.Warn().Msg("credential store is empty and no bootstrap admin is configured")
		return false, nil
	}

	nik := admin.NIK
	if nik == "" {
		nik = admin.Username
	}
	user, err := s.Create(ctx, SystemActor, CreateUserInput{
		Username: admin.Username,
		NIK:      nik,
		Password: admin.Password,
		Role:     models.RoleSuperAdmin,
		Location: models.LocationHeadOffice,
	})
	if err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("bootstrap admin created")
	return true, nil
}

func (s *UserService) publish(ctx context.Context, event audit.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("type", string(event.Type)).Msg("publish audit event failed")
	}
}

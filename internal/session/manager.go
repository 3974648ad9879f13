// Package session authenticates users and keeps the per-device record of who is
// logged in.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"plantops/portal/internal/audit"
	"plantops/portal/internal/ids"
	"plantops/portal/internal/kv"
	"plantops/portal/internal/models"
	"plantops/portal/internal/repository"
	"plantops/portal/internal/route"
	"plantops/portal/internal/security"
)

// ActiveSessionKey is the device-scoped key holding the logged-in user.
const ActiveSessionKey = "currentUser"

var ErrInvalidCredentials = errors.New("invalid username/NIK or password")

// Navigator replaces the client's current location.
type Navigator interface {
	Navigate(path string)
}

// DeviceBinder is implemented by navigators that can move the client to a new
// device id, such as the HTTP navigator that reissues the device cookie. Login
// binds the client to a fresh id so an id handed out before authentication never
// carries the session.
type DeviceBinder interface {
	BindDevice(deviceID string) error
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type Config struct {
	LoginPath string
	// TTL bounds how long a persisted session restores. Zero disables expiry.
	TTL time.Duration
	// UpgradeHashes rewrites hashes made with weaker argon2 parameters on login.
	UpgradeHashes bool
}

type Manager struct {
	users  repository.CredentialStore
	store  kv.Store
	events audit.Publisher
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
	// newDeviceID mints the id a device moves to on login.
	newDeviceID func() string

	dummyOnce sync.Once
	dummyHash []byte
}

func NewManager(users repository.CredentialStore, store kv.Store, events audit.Publisher, cfg Config, log zerolog.Logger) *Manager {
	if cfg.LoginPath == "" {
		cfg.LoginPath = route.LoginPath
	}
	if events == nil {
		events = audit.Nop{}
	}
	return &Manager{
		users:  users,
		store:  store,
		events: events,
		cfg:    cfg,
		log:    log,
		now:    time.Now,

		newDeviceID: ids.New,
	}
}

func (m *Manager) LoginPath() string {
	return m.cfg.LoginPath
}

// Open returns the Loading session holder for a device. Call Restore before reading it.
func (m *Manager) Open(deviceID string) *Current {
	return newCurrent(deviceID)
}

func (m *Manager) scope(cur *Current) kv.Store {
	return kv.DeviceScope(m.store, cur.DeviceID())
}

// Restore rehydrates cur from the device's persisted session and re-reads the user
// behind it. Missing, corrupt and expired records, and records of deleted users,
// leave cur Unauthenticated. A storage failure is returned and cur stays Loading.
func (m *Manager) Restore(ctx context.Context, cur *Current) error {
	raw, ok, err := m.scope(cur).Get(ctx, ActiveSessionKey)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		cur.clear()
		return nil
	}

	var stored models.Session
	if err := json.Unmarshal([]byte(raw), &stored); err != nil || stored.UserID == "" {
		m.log.Warn().Err(err).Str("device_id", cur.DeviceID()).Msg("discarding unreadable session record")
		m.discard(ctx, cur)
		cur.clear()
		return nil
	}

	if m.cfg.TTL > 0 && m.now().Sub(stored.LoggedInAt) > m.cfg.TTL {
		m.log.Debug().Str("device_id", cur.DeviceID()).Str("user_id", stored.UserID).Msg("session expired")
		m.discard(ctx, cur)
		cur.clear()
		return nil
	}

	user, err := m.users.GetByID(ctx, stored.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		m.log.Info().Str("device_id", cur.DeviceID()).Str("user_id", stored.UserID).Msg("session user no longer exists")
		m.discard(ctx, cur)
		cur.clear()
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session user: %w", err)
	}

	// Role and identifier edits take effect on the next request.
	fresh := user.Session(stored.LoggedInAt)
	if fresh != stored {
		if err := m.persist(ctx, m.scope(cur), fresh); err != nil {
			m.log.Warn().Err(err).Str("device_id", cur.DeviceID()).Msg("refresh session record failed")
		}
	}

	cur.authenticate(fresh)
	return nil
}

func (m *Manager) persist(ctx context.Context, scope kv.Store, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return scope.Set(ctx, ActiveSessionKey, string(payload))
}

func (m *Manager) discard(ctx context.Context, cur *Current) {
	if err := m.scope(cur).Remove(ctx, ActiveSessionKey); err != nil {
		m.log.Warn().Err(err).Str("device_id", cur.DeviceID()).Msg("remove stale session failed")
	}
}

// Login authenticates identifier (username or NIK, any case) and password, moves cur
// to a newly minted device id, persists the session there and navigates to the
// role's landing page. On failure the persisted session is left as it was.
func (m *Manager) Login(ctx context.Context, cur *Current, nav Navigator, identifier string, password string) error {
	user, err := m.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			m.equalizeTiming(password)
			m.publish(ctx, audit.Event{Type: audit.EventLoginFailed, Identifier: identifier, DeviceID: cur.DeviceID()})
			return ErrInvalidCredentials
		}
		return fmt.Errorf("find user: %w", err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		m.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
	}
	if err != nil || !ok {
		m.publish(ctx, audit.Event{Type: audit.EventLoginFailed, UserID: user.ID, Identifier: identifier, DeviceID: cur.DeviceID()})
		return ErrInvalidCredentials
	}

	session := user.Session(m.now().UTC())
	previousID := cur.DeviceID()
	deviceID := m.newDeviceID()
	scope := kv.DeviceScope(m.store, deviceID)
	if err := m.persist(ctx, scope, session); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if binder, ok := nav.(DeviceBinder); ok {
		if err := binder.BindDevice(deviceID); err != nil {
			if rmErr := scope.Remove(ctx, ActiveSessionKey); rmErr != nil {
				m.log.Warn().Err(rmErr).Str("device_id", deviceID).Msg("remove unbound session failed")
			}
			return fmt.Errorf("bind device: %w", err)
		}
	}
	if err := kv.DeviceScope(m.store, previousID).Remove(ctx, ActiveSessionKey); err != nil {
		m.log.Warn().Err(err).Str("device_id", previousID).Msg("remove pre-login session failed")
	}

	cur.rebind(deviceID)
	cur.authenticate(session)
	m.publish(ctx, audit.Event{Type: audit.EventLoginSucceeded, UserID: user.ID, Identifier: identifier, DeviceID: cur.DeviceID()})

	if m.cfg.UpgradeHashes && security.NeedsRehash(user.PasswordHash) {
		m.rehash(ctx, user.ID, password)
	}

	nav.Navigate(route.Resolve(user.Role))
	return nil
}

// Logout forgets the device's session and navigates to the login page. Logging out
// without a session only navigates.
func (m *Manager) Logout(ctx context.Context, cur *Current, nav Navigator) error {
	if err := m.scope(cur).Remove(ctx, ActiveSessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	previous, had := cur.Session()
	cur.clear()
	if had {
		m.publish(ctx, audit.Event{Type: audit.EventLogout, UserID: previous.UserID, DeviceID: cur.DeviceID()})
	}

	nav.Navigate(m.cfg.LoginPath)
	return nil
}

// equalizeTiming spends one hash verification so unknown identifiers cost the same
// as wrong passwords.
func (m *Manager) equalizeTiming(password string) {
	m.dummyOnce.Do(func() {
		hash, err := security.HashPassword("plantops-dummy-password")
		if err != nil {
			m.log.Error().Err(err).Msg("prepare dummy hash failed")
			return
		}
		m.dummyHash = hash
	})
	if m.dummyHash != nil {
		_, _ = security.VerifyPassword(password, m.dummyHash)
	}
}

func (m *Manager) rehash(ctx context.Context, userID string, password string) {
	hash, err := security.HashPassword(password)
	if err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("rehash password failed")
		return
	}
	if _, err := m.users.Update(ctx, userID, models.UserPatch{PasswordHash: hash}); err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("store rehashed password failed")
	}
}

func (m *Manager) publish(ctx context.Context, event audit.Event) {
	event.At = m.now().UTC()
	if err := m.events.Publish(ctx, event); err != nil {
		m.log.Warn().Err(err).Str("type", string(event.Type)).Msg("publish audit event failed")
	}
}

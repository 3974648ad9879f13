package session

import (
	"sync"

	"plantops/portal/internal/models"
)

type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Current is who is logged in on one device. It starts Loading and only the Manager
// moves it between states.
type Current struct {
	mu       sync.RWMutex
	deviceID string
	state    State
	session  models.Session
}

func newCurrent(deviceID string) *Current {
	return &Current{deviceID: deviceID, state: StateLoading}
}

func (c *Current) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

func (c *Current) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns the authenticated session, or false when nobody is logged in.
func (c *Current) Session() (models.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateAuthenticated {
		return models.Session{}, false
	}
	return c.session, true
}

// rebind moves cur to the device id minted at login.
func (c *Current) rebind(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = deviceID
}

func (c *Current) authenticate(session models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
	c.state = StateAuthenticated
}

func (c *Current) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = models.Session{}
	c.state = StateUnauthenticated
}

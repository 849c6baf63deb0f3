// Package session owns the signed-in user for the dashboard. It wraps the
// API client and the token store and exposes one observable State.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pysugar/pulse-dashboard/internal/logging"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
	"github.com/pysugar/pulse-dashboard/internal/validate"
)

// Phase is the coarse session state.
type Phase int

const (
	// Unknown until Init has resolved stored credentials.
	Unknown Phase = iota
	Anonymous
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// State is a snapshot. User is non-nil iff Phase is Authenticated.
type State struct {
	Phase   Phase          `json:"-"`
	User    *upstream.User `json:"user,omitempty"`
	Loading bool           `json:"loading"`
}

// Controller exposes login, registration, logout and profile refresh.
type Controller struct {
	client *upstream.Client

	mu        sync.RWMutex
	phase     Phase
	user      *upstream.User
	pending   int
	observers []func(State)
}

// NewController binds a controller to client. A failed token refresh in the
// client signs the controller out.
func NewController(client *upstream.Client) *Controller {
	c := &Controller{client: client}
	client.OnSessionEnd(c.expire)
	return c
}

// expire drops the user after the client has cleared the tokens.
func (c *Controller) expire() {
	c.set(func() {
		if c.phase == Authenticated {
			c.phase, c.user = Anonymous, nil
		}
	})
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{Phase: c.phase, Loading: c.phase == Unknown || c.pending > 0}
	if c.phase == Authenticated && c.user != nil {
		u := *c.user
		s.User = &u
	}
	return s
}

// Loading is true until Init resolves and while a login or register is in
// flight.
func (c *Controller) Loading() bool {
	return c.State().Loading
}

// User returns a copy of the signed-in user, or nil.
func (c *Controller) User() *upstream.User {
	return c.State().User
}

// IsAuthenticated requires both a user and a stored access token.
func (c *Controller) IsAuthenticated() bool {
	c.mu.RLock()
	signedIn := c.phase == Authenticated && c.user != nil
	c.mu.RUnlock()
	return signedIn && c.client.Tokens().IsAuthenticated()
}

// Subscribe registers fn to be called after every state change.
func (c *Controller) Subscribe(fn func(State)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// set applies mutate under the lock and notifies observers outside it.
func (c *Controller) set(mutate func()) {
	c.mu.Lock()
	mutate()
	state := c.stateLocked()
	observers := append([]func(State){}, c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

// Init resolves the stored session once at startup: with a stored token the
// profile is fetched, and a failure clears the tokens.
func (c *Controller) Init(ctx context.Context) {
	logger := logging.FromContext(ctx)

	if !c.client.Tokens().IsAuthenticated() {
		c.set(func() { c.phase, c.user = Anonymous, nil })
		return
	}

	user, err := c.client.GetProfile(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ Stored session rejected, signing out")
		if err := c.client.Tokens().Clear(ctx); err != nil {
			logger.Error().Err(err).Msg("❌ Failed to clear tokens")
		}
		c.set(func() { c.phase, c.user = Anonymous, nil })
		return
	}

	logger.Info().Str("user", user.Email).Msg("✅ Restored session")
	c.set(func() { c.phase, c.user = Authenticated, user })
}

// Login validates the form, signs in and stores the token pair.
func (c *Controller) Login(ctx context.Context, email, password string) (*upstream.User, error) {
	if err := validate.Login(email, password); err != nil {
		return nil, err
	}
	return c.authenticate(ctx, "Login failed", func() (*upstream.AuthResponse, error) {
		return c.client.Login(ctx, upstream.LoginRequest{Email: email, Password: password})
	})
}

// Register validates the form, creates the account and signs in.
func (c *Controller) Register(ctx context.Context, email, password, name string) (*upstream.User, error) {
	if err := validate.Register(email, password, name); err != nil {
		return nil, err
	}
	return c.authenticate(ctx, "Registration failed", func() (*upstream.AuthResponse, error) {
		return c.client.Register(ctx, upstream.RegisterRequest{Email: email, Password: password, Name: name})
	})
}

func (c *Controller) authenticate(ctx context.Context, fallback string, call func() (*upstream.AuthResponse, error)) (*upstream.User, error) {
	c.set(func() { c.pending++ })
	defer c.set(func() { c.pending-- })

	auth, err := call()
	if err == nil && auth.User == nil {
		err = upstream.ErrNoData
	}
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("🔒 Sign-in failed")
		c.set(func() { c.phase, c.user = Anonymous, nil })
		return nil, &Error{Message: upstream.Message(err, fallback), Err: err}
	}

	user := *auth.User
	c.set(func() { c.phase, c.user = Authenticated, &user })
	return &user, nil
}

// Logout drops the session locally. The backend is not called.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.client.Tokens().Clear(ctx); err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("❌ Failed to clear stored tokens")
	}
	c.set(func() { c.phase, c.user = Anonymous, nil })
}

// RefreshUser re-fetches the profile. Any failure ends the session.
func (c *Controller) RefreshUser(ctx context.Context) error {
	if !c.IsAuthenticated() {
		return nil
	}
	user, err := c.client.GetProfile(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("⚠️ Profile refresh failed, signing out")
		c.Logout(ctx)
		return fmt.Errorf("refresh user: %w", err)
	}
	c.set(func() {
		if c.phase == Authenticated {
			c.user = user
		}
	})
	return nil
}

// UpdateProfile saves name/email changes and replaces the cached user.
func (c *Controller) UpdateProfile(ctx context.Context, req upstream.UpdateProfileRequest) (*upstream.User, error) {
	if !c.IsAuthenticated() {
		return nil, upstream.ErrAuthentication
	}
	if err := validate.Profile(req.Name, req.Email); err != nil {
		return nil, err
	}
	user, err := c.client.UpdateProfile(ctx, req)
	if err != nil {
		return nil, &Error{Message: upstream.Message(err, "Profile update failed"), Err: err}
	}
	c.set(func() {
		if c.phase == Authenticated {
			c.user = user
		}
	})
	u := *user
	return &u, nil
}

// Error is a form-level failure carrying the server's message.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// IsFormError reports whether err is a session or validation failure that
// belongs on the form rather than in the log.
func IsFormError(err error) bool {
	var se *Error
	return errors.As(err, &se) || validate.As(err) != nil
}

// Package token keeps the access/refresh token pair for the dashboard
// session. The pair lives in memory and in a durable Backend; both tokens
// are present or both are absent.
package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/pysugar/pulse-dashboard/internal/logging"
	"golang.org/x/oauth2"
)

// Fixed storage key names for the pair.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// Store is the single source of truth for the token pair.
type Store struct {
	backend Backend

	mu      sync.RWMutex
	access  string
	refresh string
}

// NewStore creates a store on top of backend. Call Load once at startup.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Load reads the pair from the backend into memory. It never fails: a
// missing, partial or unreadable pair leaves the store empty.
func (s *Store) Load(ctx context.Context) {
	access, refresh, err := s.backend.Get(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("⚠️ Failed to read stored tokens, starting signed out")
		access, refresh = "", ""
	}
	if access == "" || refresh == "" {
		access, refresh = "", ""
	}

	s.mu.Lock()
	s.access = access
	s.refresh = refresh
	s.mu.Unlock()

	if access != "" {
		logging.FromContext(ctx).Debug().Str("access", maskToken(access)).Msg("📦 Loaded stored token pair")
	}
}

// Save persists both tokens, then swaps them into memory. On a backend
// failure the in-memory pair is left untouched.
func (s *Store) Save(ctx context.Context, access, refresh string) error {
	if access == "" || refresh == "" {
		return fmt.Errorf("token pair must have both tokens")
	}
	if err := s.backend.SetPair(ctx, access, refresh); err != nil {
		return fmt.Errorf("persist token pair: %w", err)
	}

	s.mu.Lock()
	s.access = access
	s.refresh = refresh
	s.mu.Unlock()
	return nil
}

// Clear drops the pair from memory and from the backend. Memory is always
// cleared; a backend error is returned for logging.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.mu.Unlock()

	if err := s.backend.Delete(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("⚠️ Failed to delete stored tokens")
		return fmt.Errorf("delete token pair: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether an access token is held. Presence only:
// an expired token still counts until a request is rejected.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != ""
}

// AccessToken returns the current access token or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// RefreshToken returns the current refresh token or "".
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Token returns the pair as an oauth2 token, or nil when signed out. Expiry
// comes from the access token's exp claim when it is a JWT.
func (s *Store) Token() *oauth2.Token {
	s.mu.RLock()
	access, refresh := s.access, s.refresh
	s.mu.RUnlock()

	if access == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
	if exp, ok := ExpiryFromJWT(access); ok {
		tok.Expiry = exp
	}
	return tok
}

func maskToken(t string) string {
	if len(t) < 20 {
		return "..."
	}
	return "..." + t[len(t)-8:]
}

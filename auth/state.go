package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// State is a token source seeded from an existing credential pair, as
// generated through a Twitch token generator or a previous login.
// Refreshes use the refresh token grant. A failed refresh keeps the previous
// credential in place.
type State struct {
	mu  sync.Mutex
	cur *oauth2.Token

	cfg    oauth2.Config
	st     Storage
	client *http.Client
}

// NewState creates a State. If st is not nil, a token it holds takes
// precedence over seed, and refreshed tokens are saved to it.
// If client is nil, [http.DefaultClient] is used instead.
func NewState(ctx context.Context, cfg oauth2.Config, st Storage, client *http.Client, seed *oauth2.Token) (*State, error) {
	if client == nil {
		client = http.DefaultClient
	}
	s := &State{cfg: cfg, st: st, client: client}
	if st != nil {
		tok, err := st.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("couldn't load stored token: %w", err)
		}
		s.cur = tok
	}
	if s.cur == nil && seed != nil && seed.AccessToken != "" {
		t := *seed
		s.cur = &t
	}
	if s.cur == nil {
		return nil, ErrNoToken
	}
	if s.cur.TokenType == "" {
		s.cur.TokenType = "bearer"
	}
	return s, nil
}

// Token returns the current token. It does not refresh.
func (s *State) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, nil
}

// Refresh refreshes the token if old is still current. On failure, the
// result is the current token along with the error.
func (s *State) Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !Equal(s.cur, old) {
		slog.DebugContext(ctx, "token not current, won't refresh")
		return s.cur, nil
	}
	if s.cur.RefreshToken == "" {
		return s.cur, ErrNoRefreshToken
	}
	tok, err := refreshGrant(ctx, s.client, &s.cfg, s.cur.RefreshToken)
	if err != nil {
		return s.cur, err
	}
	if s.st != nil {
		if err := s.st.Store(ctx, tok); err != nil {
			// The new token is still good for this process.
			slog.ErrorContext(ctx, "couldn't save refreshed token", slog.Any("err", err))
		}
	}
	s.cur = tok
	return tok, nil
}

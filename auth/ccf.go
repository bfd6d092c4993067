package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
)

// appTokens is a TokenSource of app access tokens from the client
// credentials grant.
type appTokens struct {
	mu  sync.Mutex
	cur *oauth2.Token

	cfg    oauth2.Config
	client *http.Client
}

// ClientCredentialsFlow creates a TokenSource which retrieves app access
// tokens through the client credentials grant flow. App tokens serve Helix
// lookups that need no user authorization.
// If client is nil, [http.DefaultClient] is used instead.
// The flow has no refresh tokens, so tokens are not stored across processes.
func ClientCredentialsFlow(cfg oauth2.Config, client *http.Client) TokenSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &appTokens{cfg: cfg, client: client}
}

// Token returns the current app token, acquiring a new one if it has
// expired.
func (a *appTokens) Token(ctx context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur.Valid() {
		return a.cur, nil
	}
	return a.acquireLocked(ctx)
}

// Refresh acquires a new token if old is still current.
func (a *appTokens) Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !Equal(a.cur, old) {
		return a.cur, nil
	}
	return a.acquireLocked(ctx)
}

func (a *appTokens) acquireLocked(ctx context.Context) (*oauth2.Token, error) {
	tok, err := postGrant(ctx, a.client, &a.cfg, "client_credentials", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("couldn't get app token: %w", err)
	}
	a.cur = tok
	return tok, nil
}

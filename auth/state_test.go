package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// countingResponse is a fixed response that counts its hits.
type countingResponse struct {
	fixedResponse
	hits atomic.Int32
	// form is the last refresh token received.
	mu   sync.Mutex
	form string
}

func (c *countingResponse) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.hits.Add(1)
	c.mu.Lock()
	c.form = r.PostFormValue("refresh_token")
	c.mu.Unlock()
	c.fixedResponse.ServeHTTP(w, r)
}

func stateFixture(t *testing.T, status int, body string) (*countingResponse, oauth2.Config) {
	t.Helper()
	resp := &countingResponse{fixedResponse: fixedResponse{status: status, body: body}}
	var mux http.ServeMux
	mux.Handle("POST /oauth2/token", resp)
	srv := httptest.NewServer(&mux)
	t.Cleanup(srv.Close)
	cfg := oauth2.Config{
		ClientID:     "bocchi",
		ClientSecret: "ryou",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/oauth2/token"},
	}
	return resp, cfg
}

func TestStateRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	resp, cfg := stateFixture(t, 200, `{"access_token":"nijika","expires_in":14400,"refresh_token":"kita","scope":["chat:read"],"token_type":"bearer"}`)
	st := new(memStorage)
	s, err := NewState(ctx, cfg, st, nil, &oauth2.Token{AccessToken: "seika", RefreshToken: "pa"})
	if err != nil {
		t.Fatalf("couldn't create state: %v", err)
	}
	first, err := s.Token(ctx)
	if err != nil {
		t.Fatalf("couldn't get first token: %v", err)
	}
	if first.AccessToken != "seika" || first.TokenType != "bearer" {
		t.Errorf("wrong seeded token: %#v", first)
	}
	tok, err := s.Refresh(ctx, first)
	if err != nil {
		t.Fatalf("couldn't refresh: %v", err)
	}
	if tok.AccessToken != "nijika" || tok.RefreshToken != "kita" {
		t.Errorf("wrong refreshed token: %#v", tok)
	}
	if tok.Expiry.IsZero() {
		t.Error("refreshed token has no expiry")
	}
	if resp.form != "pa" {
		t.Errorf("wrong refresh token sent: want %q, got %q", "pa", resp.form)
	}
	if !Equal(st.v, tok) {
		t.Errorf("refreshed token not stored: %#v", st.v)
	}
	// Refreshing a stale token is a no-op.
	again, err := s.Refresh(ctx, first)
	if err != nil {
		t.Errorf("stale refresh failed: %v", err)
	}
	if again != tok {
		t.Errorf("stale refresh changed the token")
	}
	if resp.hits.Load() != 1 {
		t.Errorf("wrong number of refreshes: want 1, got %d", resp.hits.Load())
	}
}

func TestStateRefreshFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, cfg := stateFixture(t, 400, `{"status":400,"message":"Invalid refresh token"}`)
	seed := &oauth2.Token{AccessToken: "seika", RefreshToken: "pa"}
	s, err := NewState(ctx, cfg, nil, nil, seed)
	if err != nil {
		t.Fatalf("couldn't create state: %v", err)
	}
	old, _ := s.Token(ctx)
	tok, err := s.Refresh(ctx, old)
	if !errors.Is(err, errInvalidRefresh) {
		t.Errorf("wrong error: %v", err)
	}
	if tok == nil || tok.AccessToken != "seika" {
		t.Errorf("failed refresh didn't keep the old token: %#v", tok)
	}
	cur, _ := s.Token(ctx)
	if !Equal(cur, old) {
		t.Errorf("current token changed after failure: %#v", cur)
	}
}

func TestStateNoRefreshToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	resp, cfg := stateFixture(t, 200, `{}`)
	s, err := NewState(ctx, cfg, nil, nil, &oauth2.Token{AccessToken: "seika"})
	if err != nil {
		t.Fatalf("couldn't create state: %v", err)
	}
	old, _ := s.Token(ctx)
	if _, err := s.Refresh(ctx, old); !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("wrong error: %v", err)
	}
	if resp.hits.Load() != 0 {
		t.Errorf("refresh without refresh token hit the endpoint")
	}
}

func TestStateSeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, cfg := stateFixture(t, 200, `{}`)
	if _, err := NewState(ctx, cfg, nil, nil, nil); !errors.Is(err, ErrNoToken) {
		t.Errorf("wrong error with no token: %v", err)
	}
	st := &memStorage{v: &oauth2.Token{AccessToken: "stored", RefreshToken: "kikuri"}}
	s, err := NewState(ctx, cfg, st, nil, &oauth2.Token{AccessToken: "seika"})
	if err != nil {
		t.Fatalf("couldn't create state: %v", err)
	}
	tok, _ := s.Token(ctx)
	if tok.AccessToken != "stored" {
		t.Errorf("stored token didn't take precedence: %#v", tok)
	}
}

func TestStateRefreshConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	resp, cfg := stateFixture(t, 200, `{"access_token":"nijika","expires_in":14400,"refresh_token":"kita","token_type":"bearer"}`)
	s, err := NewState(ctx, cfg, nil, nil, &oauth2.Token{AccessToken: "seika", RefreshToken: "pa"})
	if err != nil {
		t.Fatalf("couldn't create state: %v", err)
	}
	start, _ := s.Token(ctx)
	var grp errgroup.Group
	for range 100 {
		grp.Go(func() error {
			_, err := s.Refresh(ctx, start)
			return err
		})
	}
	if err := grp.Wait(); err != nil {
		t.Error(err)
	}
	if resp.hits.Load() != 1 {
		t.Errorf("wrong number of refreshes: want 1, got %d", resp.hits.Load())
	}
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// DeviceCodePrompt asks the user to authorize a device code.
type DeviceCodePrompt func(userCode, verURI, verURIComplete string)

// Login authorizes the bot account interactively through the device code
// flow and saves the resulting token to st. prompt is called once with the
// code to enter. Login gives up when ctx ends or the device code expires.
// If client is nil, [http.DefaultClient] is used instead.
func Login(ctx context.Context, cfg oauth2.Config, st Storage, client *http.Client, prompt DeviceCodePrompt) (*oauth2.Token, error) {
	if cfg.Endpoint.DeviceAuthURL == "" {
		return nil, errors.New("no device authorization endpoint")
	}
	if client == nil {
		client = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	var opts []oauth2.AuthCodeOption
	if len(cfg.Scopes) != 0 {
		// Twitch reads "scopes" instead of the standard "scope".
		opts = append(opts, oauth2.SetAuthURLParam("scopes", strings.Join(cfg.Scopes, " ")))
	}
	da, err := cfg.DeviceAuth(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("couldn't start device authorization: %w", err)
	}
	if !da.Expiry.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, da.Expiry)
		defer cancel()
	}
	prompt(da.UserCode, da.VerificationURI, da.VerificationURIComplete)
	tok, err := awaitDevice(ctx, &cfg, da)
	if err != nil {
		return nil, err
	}
	if err := st.Store(ctx, tok); err != nil {
		return nil, fmt.Errorf("couldn't save new token: %w", err)
	}
	return tok, nil
}

// awaitDevice polls for the token until the user finishes authorizing.
func awaitDevice(ctx context.Context, cfg *oauth2.Config, da *oauth2.DeviceAuthResponse) (*oauth2.Token, error) {
	for polls := 1; ; polls++ {
		// DeviceAccessToken waits one interval before each request.
		tok, err := cfg.DeviceAccessToken(ctx, da)
		switch {
		case err == nil:
			return tok, nil
		case ctx.Err() != nil:
			return nil, fmt.Errorf("device authorization abandoned after %d polls: %w", polls, ctx.Err())
		case twitchPending(err):
			slog.DebugContext(ctx, "device authorization pending", slog.Int("polls", polls))
		default:
			return nil, fmt.Errorf("device authorization failed: %w", err)
		}
	}
}

// twitchPending reports whether err is Twitch's nonstandard response for a
// device code the user has not yet entered. x/oauth2 only recognizes the
// standard error code, so it surfaces these as failures.
func twitchPending(err error) bool {
	var r *oauth2.RetrieveError
	if !errors.As(err, &r) || r.Response == nil || r.Response.StatusCode != http.StatusBadRequest {
		return false
	}
	var v struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(r.Body, &v) != nil {
		return false
	}
	return v.Message == "authorization_pending" || v.Message == "slow_down"
}

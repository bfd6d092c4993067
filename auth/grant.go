package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var errInvalidRefresh = errors.New("invalid refresh token")

// grantError is a failure response from the Twitch token endpoint.
type grantError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *grantError) Error() string {
	return fmt.Sprintf("token endpoint responded %d: %s", e.Status, e.Message)
}

// postGrant posts a token request to the endpoint and decodes the token.
// x/oauth2 has no exported way to run the refresh or client credentials
// grants against a token that isn't wrapped in its own TokenSource.
func postGrant(ctx context.Context, client *http.Client, cfg *oauth2.Config, grant string, form url.Values) (*oauth2.Token, error) {
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("grant_type", grant)
	req, err := http.NewRequestWithContext(ctx, "POST", cfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("couldn't create %s request: %w", grant, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", grant, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("couldn't read %s response: %w", grant, err)
	}
	slog.InfoContext(ctx, "token grant", slog.String("grant", grant), slog.Int("status", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		ge := grantError{Status: resp.StatusCode}
		// Twitch describes failures in JSON; anything else gets the status.
		json.Unmarshal(body, &ge)
		if ge.Message == "" {
			ge.Message = http.StatusText(resp.StatusCode)
		}
		return nil, &ge
	}
	var tok oauth2.Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("couldn't decode %s response: %w", grant, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%s response has no access token", grant)
	}
	if tok.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return &tok, nil
}

// refreshGrant exchanges a refresh token for a new token.
func refreshGrant(ctx context.Context, client *http.Client, cfg *oauth2.Config, rt string) (*oauth2.Token, error) {
	tok, err := postGrant(ctx, client, cfg, "refresh_token", url.Values{"refresh_token": {rt}})
	if err != nil {
		var ge *grantError
		if errors.As(err, &ge) && ge.Status == http.StatusBadRequest && ge.Message == "Invalid refresh token" {
			return nil, fmt.Errorf("refresh failed: %w", errInvalidRefresh)
		}
		return nil, fmt.Errorf("refresh failed: %w", err)
	}
	if tok.RefreshToken == "" {
		// Twitch rotates refresh tokens, but keep the old one if it doesn't.
		tok.RefreshToken = rt
	}
	return tok, nil
}

package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-json-experiment/json"
	"golang.org/x/oauth2"
)

// Scopes are the OAuth scopes the bot account needs for chat and moderation.
var Scopes = []string{
	"chat:read",
	"chat:edit",
	"moderator:manage:banned_users",
	"moderator:manage:chat_messages",
	"moderation:read",
	"moderator:read:followers",
	"channel:read:redemptions",
}

// ErrNeedRefresh is an error indicating that the access token needs to be refreshed.
// It must be checked using [errors.Is].
var ErrNeedRefresh = errors.New("need refresh")

// validateURL is the endpoint for token validation. Twitch expects clients
// using user tokens to call it at startup and hourly thereafter.
const validateURL = "https://id.twitch.tv/oauth2/validate"

// Validation describes an access token's validation status.
type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	Scopes    []string `json:"scopes"`
	UserID    string   `json:"user_id"`
	ExpiresIn int      `json:"expires_in"`

	Message string `json:"message"`
	Status  int    `json:"status"`

	at time.Time
}

// Validate checks the status of an access token.
// A 401 response produces an error wrapping [ErrNeedRefresh].
// The Validation is non-nil whenever the endpoint responded with JSON, even
// if the error is also non-nil.
func Validate(ctx context.Context, client Client, tok *oauth2.Token) (*Validation, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", validateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't make validate request: %w", err)
	}
	b, status, err := client.do(req, tok)
	if err != nil {
		return nil, fmt.Errorf("couldn't validate access token: %w", err)
	}
	v := Validation{at: time.Now()}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("couldn't decode token validation response: %w", err)
	}
	switch status {
	case http.StatusOK:
		return &v, nil
	case http.StatusUnauthorized:
		return &v, fmt.Errorf("token validation failed: %s (%w)", v.Message, ErrNeedRefresh)
	default:
		return &v, fmt.Errorf("token validation failed: %s (%d)", v.Message, status)
	}
}

// Missing returns the scopes in want that the token does not have.
func (v *Validation) Missing(want []string) []string {
	var r []string
	for _, s := range want {
		if !slices.Contains(v.Scopes, s) {
			r = append(r, s)
		}
	}
	return r
}

// Expiry returns the time the token expires, measured from when it was
// validated. App tokens that never expire report the zero time.
func (v *Validation) Expiry() time.Time {
	if v.ExpiresIn <= 0 {
		return time.Time{}
	}
	return v.at.Add(time.Duration(v.ExpiresIn) * time.Second)
}

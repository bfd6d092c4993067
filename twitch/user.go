package twitch

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
)

// MaxUsers is the most users one Get Users request can name.
const MaxUsers = 100

// User is a user from the Get Users API. The bot only needs identity, so
// profile fields are not decoded.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	BroadcasterType string `json:"broadcaster_type"`
	CreatedAt       string `json:"created_at"`
}

// UsersByLogin gets user information for users by login name.
// Unknown names are omitted from the result.
func UsersByLogin(ctx context.Context, client Client, tok *oauth2.Token, names ...string) ([]User, error) {
	if len(names) > MaxUsers {
		return nil, fmt.Errorf("too many users: %d > %d", len(names), MaxUsers)
	}
	if len(names) == 0 {
		return nil, nil
	}
	u := make([]User, 0, len(names))
	_, err := reqjson(ctx, client, tok, "GET", apiurl("/helix/users", url.Values{"login": names}), nil, &u)
	if err != nil {
		return nil, fmt.Errorf("couldn't look up %d users: %w", len(names), err)
	}
	return u, nil
}

package twitch

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
)

// Ban describes a ban or timeout to place on a user.
type Ban struct {
	// User is the user ID to ban.
	User string `json:"user_id"`
	// Duration is the timeout length in seconds.
	// Zero means a permanent ban.
	Duration int `json:"duration,omitzero"`
	// Reason is the reason for the ban, up to 500 characters.
	Reason string `json:"reason,omitempty"`
}

// BanUser bans or times out a user in a channel.
// Requires a user access token for mod with moderator:manage:banned_users.
func BanUser(ctx context.Context, client Client, tok *oauth2.Token, broadcaster, mod string, ban Ban) error {
	v := url.Values{
		"broadcaster_id": {broadcaster},
		"moderator_id":   {mod},
	}
	body := struct {
		Data Ban `json:"data"`
	}{ban}
	_, err := reqjson(ctx, client, tok, "POST", apiurl("/helix/moderation/bans", v), &body, new([]struct{}))
	if err != nil {
		return fmt.Errorf("couldn't ban user %s: %w", ban.User, err)
	}
	return nil
}

// UnbanUser removes a ban or timeout from a user in a channel.
// Requires a user access token for mod with moderator:manage:banned_users.
func UnbanUser(ctx context.Context, client Client, tok *oauth2.Token, broadcaster, mod, user string) error {
	v := url.Values{
		"broadcaster_id": {broadcaster},
		"moderator_id":   {mod},
		"user_id":        {user},
	}
	_, err := reqjson(ctx, client, tok, "DELETE", apiurl("/helix/moderation/bans", v), nil, new(struct{}))
	if err != nil {
		return fmt.Errorf("couldn't unban user %s: %w", user, err)
	}
	return nil
}

// ClearChat deletes all messages in a channel's chat room.
// Requires a user access token for mod with moderator:manage:chat_messages.
func ClearChat(ctx context.Context, client Client, tok *oauth2.Token, broadcaster, mod string) error {
	v := url.Values{
		"broadcaster_id": {broadcaster},
		"moderator_id":   {mod},
	}
	_, err := reqjson(ctx, client, tok, "DELETE", apiurl("/helix/moderation/chat", v), nil, new(struct{}))
	if err != nil {
		return fmt.Errorf("couldn't clear chat: %w", err)
	}
	return nil
}

// Moderator is an entry in a channel's moderator list.
type Moderator struct {
	ID    string `json:"user_id"`
	Login string `json:"user_login"`
	Name  string `json:"user_name"`
}

// Moderators gets the full moderator list of a channel, following pagination.
// Requires a user access token for the broadcaster or one of its moderators
// with moderation:read.
func Moderators(ctx context.Context, client Client, tok *oauth2.Token, broadcaster string) ([]Moderator, error) {
	v := url.Values{
		"broadcaster_id": {broadcaster},
		"first":          {"100"},
	}
	var r []Moderator
	for {
		var page []Moderator
		cursor, err := reqjson(ctx, client, tok, "GET", apiurl("/helix/moderation/moderators", v), nil, &page)
		if err != nil {
			return r, fmt.Errorf("couldn't get moderators: %w", err)
		}
		r = append(r, page...)
		if cursor == "" {
			return r, nil
		}
		v.Set("after", cursor)
	}
}

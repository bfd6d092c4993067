package twitch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"

	"github.com/go-json-experiment/json/jsontext"
	"golang.org/x/oauth2"
)

type Subscription struct {
	ID        string                `json:"id,omitempty"`
	Status    string                `json:"status,omitempty"`
	Type      string                `json:"type"`
	Version   string                `json:"version"`
	Condition SubscriptionCondition `json:"condition"`
	Created   string                `json:"created_at,omitempty"`
	Transport SubscriptionTransport `json:"transport"`
	Cost      int                   `json:"cost,omitzero"`
}

type SubscriptionCondition struct {
	// Broadcaster is the broadcaster user ID for the condition.
	Broadcaster string `json:"broadcaster_user_id,omitempty"`
	// User is the user ID for the condition.
	User string `json:"user_id,omitempty"`
	// Moderator is the moderator user ID for the condition.
	Moderator string `json:"moderator_user_id,omitempty"`
	// Extra holds any additional fields in the condition.
	Extra jsontext.Value `json:",unknown"`
}

type SubscriptionTransport struct {
	Method       string `json:"method"`
	Callback     string `json:"callback,omitempty"`
	Session      string `json:"session_id,omitempty"`
	Connected    string `json:"connected_at,omitempty"`
	Disconnected string `json:"disconnected_at,omitempty"`
	Conduit      string `json:"conduit_id,omitempty"`
}

// CreateSubscription calls the Create EventSub Subscription API.
// For WebSocket transports, tok must be a user access token.
// The returned subscription holds the ID and status assigned by Twitch.
func CreateSubscription(ctx context.Context, cl Client, tok *oauth2.Token, sub Subscription) (Subscription, error) {
	var resp []Subscription
	_, err := reqjson(ctx, cl, tok, "POST", apiurl("/helix/eventsub/subscriptions", nil), &sub, &resp)
	if err != nil {
		return Subscription{}, fmt.Errorf("couldn't create %s subscription: %w", sub.Type, err)
	}
	if len(resp) == 0 {
		return Subscription{}, errors.New("couldn't create subscription: empty response")
	}
	return resp[0], nil
}

// Subscriptions yields all EventSub subscriptions associated with a client
// of a given type. If typ is the empty string, all subscriptions are yielded.
// Requires an app access token for webhook or conduit subscriptions
// or a user access token for WebSocket subscriptions.
func Subscriptions(ctx context.Context, cl Client, tok *oauth2.Token, typ string) iter.Seq2[Subscription, error] {
	return func(yield func(Subscription, error) bool) {
		vals := make(url.Values, 2)
		if typ != "" {
			vals["type"] = []string{typ}
		}
		for {
			var resp []Subscription
			pag, err := reqjson(ctx, cl, tok, "GET", apiurl("/helix/eventsub/subscriptions", vals), nil, &resp)
			if err != nil {
				yield(Subscription{}, fmt.Errorf("couldn't get subscriptions: %w", err))
				return
			}
			for _, s := range resp {
				if !yield(s, nil) {
					return
				}
			}
			if pag == "" {
				return
			}
			vals["after"] = []string{pag}
		}
	}
}

// DeleteSubscription calls the Delete EventSub Subscription API to delete a subscription.
// Requires an app access token for webhook or conduit subscriptions
// or a user access token for WebSocket subscriptions.
func DeleteSubscription(ctx context.Context, cl Client, tok *oauth2.Token, id string) error {
	vals := url.Values{
		"id": {id},
	}
	_, err := reqjson(ctx, cl, tok, "DELETE", apiurl("/helix/eventsub/subscriptions", vals), nil, new(struct{}))
	if err != nil {
		return fmt.Errorf("couldn't delete EventSub subscription: %w", err)
	}
	return nil
}

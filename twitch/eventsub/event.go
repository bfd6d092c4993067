package eventsub

import (
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Event is a payload of a notification message.
type Event struct {
	Subscription Subscription   `json:"subscription"`
	Event        jsontext.Value `json:"event"`
}

type Subscription struct {
	// ID is the subscription ID.
	ID string `json:"id"`
	// Status is the subscription status.
	// For event notifications, this is always "enabled".
	Status string `json:"status"`
	// Type is the event type.
	Type string `json:"type"`
	// Version is the version of the event type.
	Version string `json:"version"`
	// Cost is the event cost.
	Cost int `json:"cost"`
	// Condition is the event condition under which the event fired.
	Condition Condition `json:"condition"`
	// Transport holds the WebSocket connection details.
	Transport Transport `json:"transport"`
	// Created is the time at which the subscription was created in
	// RFC3339Nano format.
	Created string `json:"created_at"`
}

type Condition struct {
	// Broadcaster is the broadcaster user ID associated with the event origin.
	Broadcaster string `json:"broadcaster_user_id"`
	// Moderator is the moderator user ID that authorized the subscription.
	// Only channel.follow has it.
	Moderator string `json:"moderator_user_id"`
	// Extra holds any additional fields in the condition.
	Extra jsontext.Value `json:",unknown"`
}

type Transport struct {
	Session string `json:"session_id"`
}

// Follow is the payload for a channel.follow notification.
type Follow struct {
	User             string `json:"user_id"`
	UserLogin        string `json:"user_login"`
	UserName         string `json:"user_name"`
	Broadcaster      string `json:"broadcaster_user_id"`
	BroadcasterLogin string `json:"broadcaster_user_login"`
	BroadcasterName  string `json:"broadcaster_user_name"`
	// Followed is the follow time in RFC3339Nano format.
	Followed string `json:"followed_at"`
}

// Redemption is the payload for a
// channel.channel_points_custom_reward_redemption.add notification.
type Redemption struct {
	ID               string `json:"id"`
	User             string `json:"user_id"`
	UserLogin        string `json:"user_login"`
	UserName         string `json:"user_name"`
	UserInput        string `json:"user_input"`
	Status           string `json:"status"`
	Broadcaster      string `json:"broadcaster_user_id"`
	BroadcasterLogin string `json:"broadcaster_user_login"`
	BroadcasterName  string `json:"broadcaster_user_name"`
	Reward           Reward `json:"reward"`
	// Redeemed is the redemption time in RFC3339Nano format.
	Redeemed string `json:"redeemed_at"`
}

// Reward is the channel points reward of a redemption.
type Reward struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Cost   int    `json:"cost"`
	Prompt string `json:"prompt"`
}

// Subscription types handled by the bot.
const (
	TypeFollow     = "channel.follow"
	TypeRedemption = "channel.channel_points_custom_reward_redemption.add"
)

// message is a generic message received from EventSub.
type message struct {
	Metadata metadata `json:"metadata"`
	Payload  payload  `json:"payload"`
}

type payload struct {
	Subscription Subscription   `json:"subscription"`
	Session      session        `json:"session"`
	Event        jsontext.Value `json:"event"`
}

type metadata struct {
	// ID is the message UUID.
	ID string `json:"message_id"`
	// Type is the type of the associated payload.
	Type string `json:"message_type"`
	// Timestamp is the message time in RFC3339Nano format.
	Timestamp string `json:"message_timestamp"`
	// SubscriptionType is the subscription type for notification messages.
	SubscriptionType string `json:"subscription_type"`
	// SubscriptionVersion is the version of the subscription type.
	SubscriptionVersion string `json:"subscription_version"`
}

type session struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Keepalive int    `json:"keepalive_timeout_seconds"`
	Reconnect string `json:"reconnect_url"`
	Connected string `json:"connected_at"`
}

// Payload decodes the event body of a notification.
func Payload[T any](evt *Event) (T, error) {
	var r T
	if err := json.Unmarshal(evt.Event, &r); err != nil {
		return r, fmt.Errorf("couldn't decode %s event: %w", evt.Subscription.Type, err)
	}
	return r, nil
}

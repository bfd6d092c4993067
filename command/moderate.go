package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/profprotonn/protonbot/store"
)

// Moderator performs moderation against a chat platform.
// User arguments are login names.
type Moderator interface {
	// Ban bans a user, or times them out if seconds is positive.
	Ban(ctx context.Context, ch Target, user string, seconds int, reason string) error
	// Unban removes a ban or timeout from a user.
	Unban(ctx context.Context, ch Target, user string) error
	// Clear deletes all messages in the channel.
	Clear(ctx context.Context, ch Target) error
	// Moderators lists the display names of the channel's moderators.
	Moderators(ctx context.Context, ch Target) ([]string, error)
}

// Action is a moderation command.
type Action struct {
	// Name is the trigger of the action.
	Name string
	// RequiresBroadcaster means only the broadcaster may use the action.
	// Moderators who try get a refusal.
	RequiresBroadcaster bool
	// Exec runs the action and returns the reply text. The reply is always
	// suitable to send to chat. The error is ErrUsage for invalid arguments
	// and otherwise describes a failure of the moderation call.
	Exec func(ctx context.Context, mod Moderator, call *Invocation) (string, error)
}

// ErrUsage is returned by actions given invalid arguments.
// No moderation call is made.
var ErrUsage = errors.New("invalid arguments")

// Timeout bounds in seconds.
const (
	MinTimeout = 1
	MaxTimeout = 600
)

// Actions is the set of moderation actions.
var Actions = []*Action{
	{Name: "timeout", RequiresBroadcaster: true, Exec: timeout},
	{Name: "ban", RequiresBroadcaster: true, Exec: ban},
	{Name: "unban", RequiresBroadcaster: true, Exec: unban},
	{Name: "clear", RequiresBroadcaster: true, Exec: clearChat},
	{Name: "mods", RequiresBroadcaster: false, Exec: mods},
}

// Resolve finds the moderation action for a trigger.
func Resolve(trigger string) *Action {
	trigger = store.Normalize(trigger)
	for _, a := range Actions {
		if a.Name == trigger {
			return a
		}
	}
	return nil
}

// target gets the user argument of a call without a leading '@'.
func target(call *Invocation) string {
	if len(call.Args) == 0 {
		return ""
	}
	return strings.TrimPrefix(call.Args[0], "@")
}

func reason(call *Invocation, from int) string {
	if len(call.Args) <= from {
		return fmt.Sprintf("%s by %s", call.Name, call.User)
	}
	return strings.Join(call.Args[from:], " ")
}

func timeout(ctx context.Context, mod Moderator, call *Invocation) (string, error) {
	usage := fmt.Sprintf("Usage: %stimeout <user> <seconds>, with seconds from %d to %d.", call.Prefix, MinTimeout, MaxTimeout)
	user := target(call)
	if user == "" || len(call.Args) < 2 {
		return usage, ErrUsage
	}
	n, err := strconv.Atoi(call.Args[1])
	if err != nil || n < MinTimeout || n > MaxTimeout {
		return usage, ErrUsage
	}
	if err := mod.Ban(ctx, call.Channel, user, n, reason(call, 2)); err != nil {
		return fmt.Sprintf("Failed to time out %s.", user), err
	}
	return fmt.Sprintf("@%s has been timed out for %d seconds", user, n), nil
}

func ban(ctx context.Context, mod Moderator, call *Invocation) (string, error) {
	user := target(call)
	if user == "" {
		return fmt.Sprintf("Usage: %sban <user> [reason]", call.Prefix), ErrUsage
	}
	if err := mod.Ban(ctx, call.Channel, user, 0, reason(call, 1)); err != nil {
		return fmt.Sprintf("Failed to ban %s.", user), err
	}
	return fmt.Sprintf("@%s has been banned", user), nil
}

func unban(ctx context.Context, mod Moderator, call *Invocation) (string, error) {
	user := target(call)
	if user == "" {
		return fmt.Sprintf("Usage: %sunban <user>", call.Prefix), ErrUsage
	}
	if err := mod.Unban(ctx, call.Channel, user); err != nil {
		return fmt.Sprintf("Failed to unban %s.", user), err
	}
	return fmt.Sprintf("@%s has been unbanned", user), nil
}

func clearChat(ctx context.Context, mod Moderator, call *Invocation) (string, error) {
	if err := mod.Clear(ctx, call.Channel); err != nil {
		return "Failed to clear chat.", err
	}
	return "Chat has been cleared.", nil
}

func mods(ctx context.Context, mod Moderator, call *Invocation) (string, error) {
	l, err := mod.Moderators(ctx, call.Channel)
	if err != nil {
		return "Failed to get the moderator list.", err
	}
	if len(l) == 0 {
		return "There are no moderators in this channel.", nil
	}
	return "Moderators: " + strings.Join(l, ", "), nil
}

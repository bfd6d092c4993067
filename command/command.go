// Package command implements built-in chat commands: the static command
// table and moderation actions.
package command

// Invocation is a command invocation. An Invocation and its fields must not
// be modified or retained by any command.
type Invocation struct {
	// Channel is the channel where the invocation occurred.
	Channel Target
	// User is the display name of the invoking user.
	User string
	// UserID is the platform user ID of the invoking user.
	UserID string
	// Prefix is the command prefix the invocation used, for usage messages.
	Prefix string
	// Name is the normalized trigger.
	Name string
	// Args are the whitespace-separated words following the trigger.
	Args []string
}

// Target identifies a channel for actions taken against it.
type Target struct {
	// Name is the channel login name without a leading '#'.
	Name string
	// ID is the broadcaster user ID.
	ID string
}

// Package store defines persisted per-channel custom commands.
package store

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/profprotonn/protonbot/message"
)

// Command is a persisted custom command.
type Command struct {
	// ID is the unique record ID assigned by the store.
	ID string `json:"id"`
	// Channel is the normalized name of the channel owning the command.
	Channel string `json:"channel"`
	// Trigger is the normalized command name.
	Trigger string `json:"command"`
	// Response is the text the bot replies with.
	Response string `json:"response"`
	// RequiresMod means only moderators and the broadcaster may use the
	// command.
	RequiresMod bool `json:"requiresMod"`
}

// Patch is a partial update to a command. Nil fields are left unchanged.
type Patch struct {
	Channel     *string `json:"channel,omitempty"`
	Trigger     *string `json:"command,omitempty"`
	Response    *string `json:"response,omitempty"`
	RequiresMod *bool   `json:"requiresMod,omitempty"`
}

// Apply returns cmd with the patch applied and fields normalized.
// It returns an error if the patch would empty a required field or put a
// control character in a key.
func (p Patch) Apply(cmd Command) (Command, error) {
	if p.Channel != nil {
		cmd.Channel = Channel(*p.Channel)
	}
	if p.Trigger != nil {
		cmd.Trigger = Normalize(*p.Trigger)
	}
	if p.Response != nil {
		cmd.Response = response(*p.Response)
	}
	if p.RequiresMod != nil {
		cmd.RequiresMod = *p.RequiresMod
	}
	return cmd, check(cmd.Channel, cmd.Trigger, cmd.Response)
}

// Store is a persisted command store.
// Channels and triggers are normalized before every lookup and write.
// Implementations enforce that (Channel, Trigger) is unique.
type Store interface {
	// FindOne finds the command for a trigger in a channel.
	// If there is none, the error is ErrNotFound.
	FindOne(ctx context.Context, channel, trigger string) (*Command, error)
	// Upsert creates a command or overwrites the response and moderator
	// requirement of the existing command with the same channel and trigger.
	Upsert(ctx context.Context, channel, trigger, response string, requiresMod bool) (*Command, error)
	// ListByChannel lists all commands in a channel ordered by trigger.
	ListByChannel(ctx context.Context, channel string) ([]Command, error)
	// DeleteByID deletes a command and returns it.
	// If there is none, the error is ErrNotFound.
	DeleteByID(ctx context.Context, id string) (*Command, error)
	// UpdateByID applies a patch to a command and returns the result.
	// If there is none, the error is ErrNotFound. If the update would
	// collide with another command, the error is ErrDuplicate.
	UpdateByID(ctx context.Context, id string, p Patch) (*Command, error)
	// Close closes the store.
	Close() error
}

var (
	// ErrNotFound is returned when no command matches a lookup.
	ErrNotFound = errors.New("command not found")
	// ErrDuplicate is returned when an update would violate the uniqueness
	// of channel and trigger.
	ErrDuplicate = errors.New("command already exists in channel")
	// ErrMissing is returned when a required field is empty.
	ErrMissing = errors.New("channel, command, and response are required")
	// ErrInvalid is returned when a channel or trigger contains a control
	// character.
	ErrInvalid = errors.New("channel and command may not contain control characters")
)

// Normalize trims and lowercases a trigger.
func Normalize(s string) string {
	// Casers are stateful, so make a new one each time.
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// Channel normalizes a channel name, dropping the IRC '#' prefix.
func Channel(s string) string {
	return Normalize(strings.TrimPrefix(strings.TrimSpace(s), "#"))
}

// Validate normalizes the fields of a new command and checks that the
// required ones are present and the keys hold no control characters.
func Validate(channel, trigger, resp string) (string, string, string, error) {
	channel, trigger, resp = Channel(channel), Normalize(trigger), response(resp)
	return channel, trigger, resp, check(channel, trigger, resp)
}

// response normalizes a response to a single trimmed chat line.
func response(s string) string {
	return strings.TrimSpace(message.OneLine(s))
}

// check validates normalized fields.
func check(channel, trigger, response string) error {
	if channel == "" || trigger == "" || response == "" {
		return ErrMissing
	}
	if strings.IndexFunc(channel, unicode.IsControl) >= 0 || strings.IndexFunc(trigger, unicode.IsControl) >= 0 {
		return ErrInvalid
	}
	return nil
}

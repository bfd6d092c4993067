// Package message holds chat messages going to and from the bot.
package message

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Received is a chat message received from Twitch.
type Received struct {
	// ID is the unique ID of the message.
	ID string
	// To is the channel of the message, including the leading '#'.
	To string
	// Room is the user ID of the channel's broadcaster.
	Room string
	// Sender is the user ID of the message sender.
	Sender string
	// Login is the login name of the message sender.
	Login string
	// Name is the display name of the message sender.
	Name string
	// Text is the text of the message.
	Text string
	// Timestamp is the timestamp of the message as milliseconds since the
	// Unix epoch.
	Timestamp int64
	// IsModerator indicates whether the sender can moderate the channel.
	IsModerator bool
	// IsBroadcaster indicates whether the sender owns the channel.
	IsBroadcaster bool
	// Bits is the number of bits cheered with the message.
	Bits int
	// Reward is the ID of the channel points reward redeemed with the
	// message, if any.
	Reward string
}

func (m *Received) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Sent is a message to be sent to a service.
type Sent struct {
	// Reply is a message to reply to. If empty, the message is not interpreted
	// as a reply.
	Reply string
	// To is the channel to whom the message is sent.
	To string
	// Text is the message text.
	Text string
}

// Limit is the maximum length of a chat message in characters.
const Limit = 500

// formatString is a type to prevent misuse of format strings passed to [Format].
type formatString string

// Format constructs a message to send from a format string literal and
// formatting arguments.
func Format(reply, to string, f formatString, args ...any) Sent {
	return Sent{
		Reply: reply,
		To:    to,
		Text:  strings.TrimSpace(fmt.Sprintf(string(f), args...)),
	}
}

// lineBreaks maps the characters that end an IRC line to spaces.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\x00", " ")

// OneLine replaces CR, LF and NUL in s with spaces so that s cannot span
// more than one IRC line. A CRLF pair becomes a single space.
func OneLine(s string) string {
	return lineBreaks.Replace(s)
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	if len(s) <= n {
		// Byte length bounds rune count.
		return s
	}
	k := 0
	for i := range s {
		if k == n {
			return s[:i]
		}
		k++
	}
	return s
}

// Len returns the length of s in characters.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Package channel holds per-channel runtime state.
package channel

import (
	"context"
	"math/rand/v2"
	"strings"

	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/time/rate"

	"github.com/profprotonn/protonbot/message"
)

type Channel struct {
	// Name is the name of the channel, including the leading '#'.
	Name string
	// Message sends a message to the channel with an optional reply message ID.
	Message func(ctx context.Context, msg message.Sent)
	// Rate is the rate limiter for replies to users without moderator
	// standing. Attempts to speak in excess of the rate limit are dropped.
	Rate *rate.Limiter
	// Thanks means the bot thanks users for subs, raids, cheers, and follows.
	Thanks bool
	// Emotes is the distribution of emotes appended to thanks.
	Emotes *pick.Dist[string]
}

// Login returns the channel name without the leading '#'.
func (ch *Channel) Login() string {
	return strings.TrimPrefix(ch.Name, "#")
}

// Emote picks an emote. If the channel has no emotes, the result is empty.
func (ch *Channel) Emote() string {
	if ch.Emotes == nil {
		return ""
	}
	return ch.Emotes.Pick(rand.Uint32())
}

// Thank sends a thanks message if the channel is configured for it and the
// rate limit allows. The channel's emote is appended to the text.
func (ch *Channel) Thank(ctx context.Context, text string) bool {
	if !ch.Thanks || (ch.Rate != nil && !ch.Rate.Allow()) {
		return false
	}
	if e := ch.Emote(); e != "" {
		text += " " + e
	}
	ch.Message(ctx, message.Sent{To: ch.Name, Text: text})
	return true
}

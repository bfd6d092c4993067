package message

import (
	"strconv"
	"strings"

	"gitlab.com/zephyrtronium/tmi"
)

// FromTMI adapts a TMI IRC message.
func FromTMI(m *tmi.Message) *Received {
	id, _ := m.Tag("id")
	sender, _ := m.Tag("user-id")
	room, _ := m.Tag("room-id")
	ts, _ := m.Tag("tmi-sent-ts")
	u, _ := strconv.ParseInt(ts, 10, 64)
	bits, _ := m.Tag("bits")
	b, _ := strconv.Atoi(bits)
	reward, _ := m.Tag("custom-reward-id")
	r := Received{
		ID:            id,
		To:            m.To(),
		Room:          room,
		Sender:        sender,
		Login:         m.Nick,
		Name:          m.DisplayName(),
		Text:          m.Trailing,
		Timestamp:     u,
		IsBroadcaster: broadcaster(m, sender, room),
		Bits:          b,
		Reward:        reward,
	}
	r.IsModerator = r.IsBroadcaster || moderator(m)
	return &r
}

func broadcaster(m *tmi.Message, sender, room string) bool {
	if sender != "" && sender == room {
		return true
	}
	badges, _ := m.Tag("badges")
	return hasBadge(badges, "broadcaster")
}

func moderator(m *tmi.Message) bool {
	t, _ := m.Tag("mod")
	if t == "1" {
		return true
	}
	badges, _ := m.Tag("badges")
	return hasBadge(badges, "moderator")
}

// hasBadge checks whether a badges tag contains a badge of the given kind.
func hasBadge(badges, kind string) bool {
	for _, b := range strings.Split(badges, ",") {
		k, _, _ := strings.Cut(b, "/")
		if k == kind {
			return true
		}
	}
	return false
}

// ToTMI creates a message to send to TMI. If reply is not empty, then the
// result is a reply to the message with that ID. Line breaks in text become
// spaces, and text beyond Limit is cut.
func ToTMI(reply, to, text string) *tmi.Message {
	r := tmi.Privmsg(to, Truncate(OneLine(text), Limit))
	if reply != "" {
		r.Tags = "reply-parent-msg-id=" + reply
	}
	return r
}

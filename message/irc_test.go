package message_test

import (
	"io"
	"strings"
	"testing"
	"time"

	"gitlab.com/zephyrtronium/tmi"

	"github.com/profprotonn/protonbot/message"
)

func TestFromTMI(t *testing.T) {
	cases := []struct {
		name   string
		msg    string
		id     string
		to     string
		room   string
		sender string
		login  string
		disp   string
		text   string
		time   time.Time
		mod    bool
		bc     bool
		bits   int
		reward string
	}{
		{
			name:   "regular",
			msg:    `@badge-info=;badges=;client-nonce=eb10a5865f1231b6e96d6ae2dbcecdb4;color=#B22222;display-name=Someone;emotes=;first-msg=0;flags=;id=a74eb158-9732-4e6f-9150-2648cdf3c902;mod=0;returning-chatter=0;room-id=12345678;subscriber=0;tmi-sent-ts=1662882968379;turbo=0;user-id=123456789;user-type= :someone!someone@someone.tmi.twitch.tv PRIVMSG #channel :hello, world!`,
			id:     "a74eb158-9732-4e6f-9150-2648cdf3c902",
			to:     "#channel",
			room:   "12345678",
			sender: "123456789",
			login:  "someone",
			disp:   "Someone",
			text:   "hello, world!",
			time:   time.UnixMilli(1662882968379),
		},
		{
			name:   "mod",
			msg:    `@badge-info=;badges=moderator/1;color=#1E90FF;display-name=aMod;emotes=;first-msg=0;flags=;id=2a9bb533-2837-48d0-8aba-032f844c91f6;mod=1;returning-chatter=0;room-id=12345678;subscriber=0;tmi-sent-ts=1662887850257;turbo=0;user-id=87654321;user-type=mod :amod!amod@amod.tmi.twitch.tv PRIVMSG #channel :!timeout spammer99 120`,
			id:     "2a9bb533-2837-48d0-8aba-032f844c91f6",
			to:     "#channel",
			room:   "12345678",
			sender: "87654321",
			login:  "amod",
			disp:   "aMod",
			text:   "!timeout spammer99 120",
			time:   time.UnixMilli(1662887850257),
			mod:    true,
		},
		{
			name:   "broadcaster",
			msg:    `@badge-info=subscriber/42;badges=broadcaster/1,subscriber/3036;color=#0000FF;display-name=Channel;emotes=;first-msg=0;flags=;id=d2129ccd-0763-434c-bd00-7354bfe1a781;mod=0;returning-chatter=0;room-id=12345678;subscriber=1;tmi-sent-ts=1662885432414;turbo=0;user-id=12345678;user-type= :channel!channel@channel.tmi.twitch.tv PRIVMSG #channel :hello, world!`,
			id:     "d2129ccd-0763-434c-bd00-7354bfe1a781",
			to:     "#channel",
			room:   "12345678",
			sender: "12345678",
			login:  "channel",
			disp:   "Channel",
			text:   "hello, world!",
			time:   time.UnixMilli(1662885432414),
			mod:    true,
			bc:     true,
		},
		{
			name:   "cheer",
			msg:    `@badge-info=;badges=bits/100;bits=100;color=;display-name=Cheerer;emotes=;first-msg=0;flags=;id=b34ccfc7-4977-403a-8a94-33c6bac34fb8;mod=0;room-id=12345678;subscriber=0;tmi-sent-ts=1507246572675;turbo=0;user-id=1337;user-type= :cheerer!cheerer@cheerer.tmi.twitch.tv PRIVMSG #channel :cheer100 nice`,
			id:     "b34ccfc7-4977-403a-8a94-33c6bac34fb8",
			to:     "#channel",
			room:   "12345678",
			sender: "1337",
			login:  "cheerer",
			disp:   "Cheerer",
			text:   "cheer100 nice",
			time:   time.UnixMilli(1507246572675),
			bits:   100,
		},
		{
			name:   "reward",
			msg:    `@badge-info=;badges=;color=;custom-reward-id=92af127c-7326-4483-a52b-b0da0be61c01;display-name=Redeemer;emotes=;first-msg=0;flags=;id=cd2a4d4b-4d7b-4c35-8e91-fa21f3e70a13;mod=0;room-id=12345678;subscriber=0;tmi-sent-ts=1507246572675;turbo=0;user-id=4242;user-type= :redeemer!redeemer@redeemer.tmi.twitch.tv PRIVMSG #channel :play bocchi`,
			id:     "cd2a4d4b-4d7b-4c35-8e91-fa21f3e70a13",
			to:     "#channel",
			room:   "12345678",
			sender: "4242",
			login:  "redeemer",
			disp:   "Redeemer",
			text:   "play bocchi",
			time:   time.UnixMilli(1507246572675),
			reward: "92af127c-7326-4483-a52b-b0da0be61c01",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tm, err := tmi.Parse(strings.NewReader(c.msg + "\r\n"))
			if err != nil && err != io.EOF {
				panic(err)
			}
			msg := message.FromTMI(tm)
			if got := msg.ID; got != c.id {
				t.Errorf("wrong id: want %q, got %q", c.id, got)
			}
			if got := msg.To; got != c.to {
				t.Errorf("wrong to: want %q, got %q", c.to, got)
			}
			if got := msg.Room; got != c.room {
				t.Errorf("wrong room: want %q, got %q", c.room, got)
			}
			if got := msg.Sender; got != c.sender {
				t.Errorf("wrong sender: want %q, got %q", c.sender, got)
			}
			if got := msg.Login; got != c.login {
				t.Errorf("wrong login: want %q, got %q", c.login, got)
			}
			if got := msg.Name; got != c.disp {
				t.Errorf("wrong display name: want %q, got %q", c.disp, got)
			}
			if got := msg.Text; got != c.text {
				t.Errorf("wrong text: want %q, got %q", c.text, got)
			}
			if got := msg.Time(); !got.Equal(c.time) {
				t.Errorf("wrong time: want %v, got %v", c.time, got)
			}
			if got := msg.IsModerator; got != c.mod {
				t.Errorf("wrong mod: want %t, got %t", c.mod, got)
			}
			if got := msg.IsBroadcaster; got != c.bc {
				t.Errorf("wrong broadcaster: want %t, got %t", c.bc, got)
			}
			if got := msg.Bits; got != c.bits {
				t.Errorf("wrong bits: want %d, got %d", c.bits, got)
			}
			if got := msg.Reward; got != c.reward {
				t.Errorf("wrong reward: want %q, got %q", c.reward, got)
			}
		})
	}
}

func TestToTMI(t *testing.T) {
	m := message.ToTMI("parent", "#channel", strings.Repeat("a", 600))
	if len(m.Trailing) != message.Limit {
		t.Errorf("wrong length: want %d, got %d", message.Limit, len(m.Trailing))
	}
	if m.Tags != "reply-parent-msg-id=parent" {
		t.Errorf("wrong tags %q", m.Tags)
	}
	if m.To() != "#channel" {
		t.Errorf("wrong target %q", m.To())
	}
}

func TestToTMIOneLine(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"crlf", "@Bocchi, Noon.\r\nPRIVMSG #otherchannel :injected", "@Bocchi, Noon. PRIVMSG #otherchannel :injected"},
		{"lf", "kessoku\nband", "kessoku band"},
		{"cr", "kessoku\rband", "kessoku band"},
		{"nul", "kessoku\x00band", "kessoku band"},
		{"plain", "kessoku band", "kessoku band"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := message.ToTMI("", "#kessoku", c.text)
			if m.Trailing != c.want {
				t.Errorf("wrong text: want %q, got %q", c.want, m.Trailing)
			}
			wire := m.String() + "\r\n"
			if n := strings.Count(wire, "\n"); n != 1 {
				t.Errorf("message spans %d lines: %q", n, wire)
			}
			if strings.ContainsAny(strings.TrimSuffix(wire, "\r\n"), "\r\x00") {
				t.Errorf("line break survived: %q", wire)
			}
		})
	}
}

func TestToTMITruncatesAfterJoining(t *testing.T) {
	// Replacing line breaks must not push the text past the limit.
	text := strings.Repeat("a\r\n", 300)
	m := message.ToTMI("", "#kessoku", text)
	if n := len([]rune(m.Trailing)); n > message.Limit {
		t.Errorf("text too long: %d", n)
	}
	if strings.ContainsAny(m.Trailing, "\r\n") {
		t.Errorf("line break survived: %q", m.Trailing)
	}
}

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/tmi"
)

// runTwitch connects to TMI and reconnects with fresh credentials and
// channels whenever a reconnect is requested.
func (robo *Robot) runTwitch(ctx context.Context) error {
	robo.SetChannels(ctx)
	for {
		tok, err := robo.tmi.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("couldn't obtain access token for TMI login: %w", err)
		}
		cfg := tmi.ConnectConfig{
			Dial:         new(tls.Dialer).DialContext,
			RetryWait:    tmi.RetryList(true, 0, time.Second, time.Minute, 5*time.Minute),
			Nick:         robo.tmi.name,
			Pass:         "oauth:" + tok.AccessToken,
			Capabilities: []string{"twitch.tv/commands", "twitch.tv/tags"},
			Timeout:      300 * time.Second,
		}
		cctx, cancel := context.WithCancel(ctx)
		recv := make(chan *tmi.Message, 8) // 8 is enough for on-connect msgs
		loopDone := make(chan struct{})
		go func() {
			defer close(loopDone)
			robo.tmiLoop(cctx, robo.tmi.send, recv)
		}()
		connDone := make(chan struct{})
		go func() {
			defer close(connDone)
			lg := slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)
			tmi.Connect(cctx, cfg, tmi.Log(lg, false), robo.tmi.send, recv)
		}()
		select {
		case <-ctx.Done():
			cancel()
			<-connDone
			<-loopDone
			return ctx.Err()
		case <-connDone:
			// The connection gave up on its own.
			cancel()
			<-loopDone
			return fmt.Errorf("TMI connection closed")
		case <-robo.reconnect:
			slog.InfoContext(ctx, "reconnecting to TMI")
			cancel()
			<-connDone
			<-loopDone
		}
	}
}

func (robo *Robot) tmiLoop(ctx context.Context, send chan<- *tmi.Message, recv <-chan *tmi.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-recv:
			if !ok {
				return
			}
			robo.metrics.TMICommandCount.Observe(1, msg.Command)
			switch msg.Command {
			case "PRIVMSG":
				robo.tmiMessage(ctx, msg)
			case "USERNOTICE":
				robo.usernotice(ctx, msg)
			case "WHISPER":
				slog.InfoContext(ctx, "whisper", slog.String("from", msg.Nick), slog.String("text", msg.Trailing))
			case "NOTICE":
				id, _ := msg.Tag("msg-id")
				slog.WarnContext(ctx, "notice", slog.String("channel", msg.To()), slog.String("id", id), slog.String("text", msg.Trailing))
			case "CLEARCHAT":
				clearchat(ctx, msg)
			case "CLEARMSG":
				login, _ := msg.Tag("login")
				id, _ := msg.Tag("target-msg-id")
				slog.InfoContext(ctx, "message deleted", slog.String("channel", msg.To()), slog.String("user", login), slog.String("id", id))
			case "HOSTTARGET":
				slog.InfoContext(ctx, "host", slog.String("channel", msg.To()), slog.String("target", msg.Trailing))
			case "JOIN", "PART":
				if strings.EqualFold(msg.Nick, robo.tmi.name) {
					slog.InfoContext(ctx, strings.ToLower(msg.Command), slog.String("channel", msg.To()))
				}
			case "USERSTATE":
				// We used to check our badges and update our hard rate limit
				// per-channel, but per-channel rate limits only really make
				// sense for verified bots which have a relaxed global limit.
			case "GLOBALUSERSTATE":
				slog.InfoContext(ctx, "connected to TMI", slog.String("GLOBALUSERSTATE", msg.Tags))
			case "RECONNECT":
				slog.InfoContext(ctx, "TMI requested reconnect")
			case "376": // End MOTD
				go robo.joinTwitch(ctx, send)
			}
		}
	}
}

func (robo *Robot) joinTwitch(ctx context.Context, send chan<- *tmi.Message) {
	ls := make([]string, 0, robo.channels.Len())
	for _, ch := range robo.channels.All() {
		ls = append(ls, ch.Name)
	}
	burst := 20
	for len(ls) > 0 {
		l := ls[:min(burst, len(ls))]
		ls = ls[len(l):]
		msg := tmi.Message{
			Command: "JOIN",
			Params:  []string{strings.Join(l, ",")},
		}
		select {
		case <-ctx.Done():
			return
		case send <- &msg:
			// do nothing
		}
		if len(ls) > 0 {
			// Per https://dev.twitch.tv/docs/irc/#rate-limits we get 20 join
			// attempts per ten seconds. Use a slightly longer delay to ensure
			// we don't get globaled by clock drift.
			select {
			case <-ctx.Done():
				return
			case <-time.After(11 * time.Second):
			}
		}
	}
}

// clearchat logs timeouts, bans, and chat clears.
func clearchat(ctx context.Context, msg *tmi.Message) {
	if len(msg.Params) == 0 {
		return
	}
	if msg.Trailing == "" {
		slog.InfoContext(ctx, "chat cleared", slog.String("channel", msg.To()))
		return
	}
	if d, ok := msg.Tag("ban-duration"); ok {
		slog.InfoContext(ctx, "timeout", slog.String("channel", msg.To()), slog.String("user", msg.Trailing), slog.String("seconds", d))
		return
	}
	slog.InfoContext(ctx, "ban", slog.String("channel", msg.To()), slog.String("user", msg.Trailing))
}

// usernotice handles subs, resubs, gift subs, and raids.
func (robo *Robot) usernotice(ctx context.Context, msg *tmi.Message) {
	ch, _ := robo.channels.Load(msg.To())
	if ch == nil {
		return
	}
	kind, _ := msg.Tag("msg-id")
	user := msg.DisplayName()
	log := slog.With(slog.String("channel", msg.To()), slog.String("user", user), slog.String("kind", kind))
	text := thanks(kind, user, msg)
	if text == "" {
		log.DebugContext(ctx, "usernotice")
		return
	}
	log.InfoContext(ctx, "usernotice")
	if !ch.Thank(ctx, text) {
		log.DebugContext(ctx, "not thanking")
	}
}

// thanks builds thanks text for a USERNOTICE kind.
// The result is empty for kinds the bot doesn't thank.
func thanks(kind, user string, msg *tmi.Message) string {
	switch kind {
	case "sub":
		return fmt.Sprintf("Thank you for subscribing, @%s!", user)
	case "resub":
		months, _ := msg.Tag("msg-param-cumulative-months")
		if n, _ := strconv.Atoi(months); n > 1 {
			return fmt.Sprintf("Thank you for %d months, @%s!", n, user)
		}
		return fmt.Sprintf("Thank you for resubscribing, @%s!", user)
	case "subgift", "submysterygift":
		return fmt.Sprintf("Thank you for the gift, @%s!", user)
	case "raid":
		viewers, _ := msg.Tag("msg-param-viewerCount")
		if viewers != "" {
			return fmt.Sprintf("Thank you for the raid with %s viewers, @%s!", viewers, user)
		}
		return fmt.Sprintf("Thank you for the raid, @%s!", user)
	default:
		return ""
	}
}

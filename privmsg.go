package main

import (
	"context"
	"log/slog"
	"strings"

	"gitlab.com/zephyrtronium/tmi"

	"github.com/profprotonn/protonbot/channel"
	"github.com/profprotonn/protonbot/dispatch"
	"github.com/profprotonn/protonbot/message"
)

// tmiMessage processes a PRIVMSG from TMI.
func (robo *Robot) tmiMessage(ctx context.Context, msg *tmi.Message) {
	robo.metrics.TMIMsgsCount.Observe(1)
	ch, _ := robo.channels.Load(msg.To())
	if ch == nil {
		// TMI gives a WHISPER for a direct message, so this is a message to a
		// channel that isn't configured. Ignore it.
		return
	}
	// Run the rest in a worker so that we don't block the message loop.
	work := func(ctx context.Context) {
		m := message.FromTMI(msg)
		log := slog.With(slog.String("trace", m.ID), slog.String("channel", ch.Name))
		if m.Bits > 0 && !strings.EqualFold(m.Login, robo.tmi.name) {
			log.InfoContext(ctx, "cheer", slog.String("user", m.Login), slog.Int("bits", m.Bits))
			ch.Thank(ctx, cheerThanks(m.Name, m.Bits))
		}
		if m.Reward != "" {
			log.InfoContext(ctx, "reward redeemed", slog.String("user", m.Login), slog.String("reward", m.Reward))
		}
		ev := eventFromTMI(robo.tmi.name, robo.engine.Prefix, m)
		r, ok := robo.engine.Handle(ctx, ev)
		if !ok {
			return
		}
		robo.metrics.ReplyCount.Observe(1, string(r.Kind))
		robo.reply(ctx, ch, ev, r)
	}
	robo.enqueue(ctx, work)
}

// reply sends a dispatched reply to the channel it came from.
func (robo *Robot) reply(ctx context.Context, ch *channel.Channel, ev *dispatch.Event, r dispatch.Reply) {
	log := slog.With(slog.String("trace", ev.ID), slog.String("channel", ch.Name), slog.String("kind", string(r.Kind)))
	// Moderators get answers regardless of the channel's rate limit.
	if !ev.Moderator && ch.Rate != nil && !ch.Rate.Allow() {
		log.InfoContext(ctx, "reply rate limited", slog.String("name", r.Name))
		return
	}
	log.InfoContext(ctx, "reply", slog.String("name", r.Name), slog.String("text", r.Sent.Text))
	ch.Message(ctx, r.Sent)
}

// eventFromTMI builds the dispatch event for a received chat message.
func eventFromTMI(me, prefix string, m *message.Received) *dispatch.Event {
	ev := dispatch.Event{
		ID:          m.ID,
		Channel:     m.To,
		RoomID:      m.Room,
		UserID:      m.Sender,
		Login:       m.Login,
		User:        m.Name,
		Text:        strings.TrimSpace(m.Text),
		Moderator:   m.IsModerator,
		Broadcaster: m.IsBroadcaster,
		Self:        strings.EqualFold(m.Login, me),
	}
	if ev.User == "" {
		ev.User = m.Login
	}
	if t, args, ok := dispatch.Parse(prefix, ev.Text); ok {
		ev.Trigger, ev.Args = t, args
	}
	return &ev
}

func cheerThanks(user string, bits int) string {
	if bits == 1 {
		return "Thank you for the bit, @" + user + "!"
	}
	return "Thank you for the bits, @" + user + "!"
}

func (robo *Robot) enqueue(ctx context.Context, work func(context.Context)) {
	var w chan func(context.Context)
	// Get a worker if one exists. Otherwise, spawn a new one.
	select {
	case w = <-robo.works:
	default:
		w = make(chan func(context.Context), 1)
		go worker(ctx, robo.works, w)
	}
	// Send it work.
	select {
	case <-ctx.Done():
		return
	case w <- work:
	}
}

// worker runs works for a while. The provided context is passed to each work.
func worker(ctx context.Context, works chan chan func(context.Context), ch chan func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-ch:
			work(ctx)
			// Replace ourselves in the pool if it needs additional capacity.
			// Otherwise, we're done.
			select {
			case works <- ch:
			default:
				return
			}
		}
	}
}

// sendTMI sends a message to TMI after waiting for the global rate limit.
// Text that Twitch would interpret as a chat command is dropped.
func (robo *Robot) sendTMI(ctx context.Context, msg message.Sent) {
	if badmatch(msg.Text) {
		slog.WarnContext(ctx, "refusing to send message", slog.String("channel", msg.To), slog.String("text", msg.Text))
		return
	}
	if err := robo.tmi.rate.Wait(ctx); err != nil {
		return
	}
	resp := message.ToTMI(msg.Reply, msg.To, msg.Text)
	select {
	case <-ctx.Done():
		return
	case robo.tmi.send <- resp:
	}
}

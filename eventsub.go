package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/profprotonn/protonbot/channel"
	"github.com/profprotonn/protonbot/twitch"
	"github.com/profprotonn/protonbot/twitch/eventsub"
)

// eventsub receives follows and reward redemptions for the joined channels.
// Subscriptions that fail, e.g. because the bot doesn't moderate a channel,
// are logged and skipped.
func (robo *Robot) eventsub(ctx context.Context) error {
	s, err := eventsub.Connect(ctx, robo.http, 0, "")
	if err != nil {
		return fmt.Errorf("couldn't connect to EventSub: %w", err)
	}
	defer func() {
		robo.session.Store("")
		s.Close()
	}()
	robo.session.Store(s.ID())
	if err := robo.subscribe(ctx, s.ID()); err != nil {
		return err
	}
	for {
		ev, err := s.Recv(ctx)
		var re *eventsub.ReconnectError
		var rev *eventsub.RevocationError
		switch {
		case err == nil:
			robo.eventsubEvent(ctx, ev)
		case errors.As(err, &re):
			slog.InfoContext(ctx, "EventSub reconnect", slog.String("session", re.Session))
			n, err := s.Reconnect(ctx, robo.http, re)
			if err != nil {
				return fmt.Errorf("couldn't reconnect to EventSub: %w", err)
			}
			s = n
			// Subscriptions carry over to the new session.
			robo.session.Store(s.ID())
		case errors.As(err, &rev):
			slog.WarnContext(ctx, "EventSub subscription revoked", slog.String("type", rev.Type), slog.String("status", rev.Status))
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("EventSub receive failed: %w", err)
		}
	}
}

// subscription is a subscription type the bot wants for every channel.
type subscription struct {
	typ, version string
	// mod sets the bot as the moderator in the condition.
	mod bool
}

var subscriptions = []subscription{
	{typ: eventsub.TypeFollow, version: "2", mod: true},
	{typ: eventsub.TypeRedemption, version: "1"},
}

// subscribe makes the session's subscriptions match the joined channels.
// It subscribes to channels that are missing subscriptions and deletes
// subscriptions for channels the bot has left.
func (robo *Robot) subscribe(ctx context.Context, session string) error {
	var logins []string
	for _, ch := range robo.channels.All() {
		logins = append(logins, ch.Login())
	}
	ids, err := lookupIDs(ctx, robo.twitch, robo.tmi.tokens, robo.app, logins...)
	if err != nil {
		return fmt.Errorf("couldn't resolve channels for EventSub: %w", err)
	}
	want := make(map[string]string, len(ids))
	for login, id := range ids {
		want[id] = login
	}
	// have maps broadcaster IDs to the types subscribed on this session.
	have := make(map[string]map[string]bool)
	var stale []twitch.Subscription
	err = withUser(ctx, robo.tmi.tokens, func(tok *oauth2.Token) error {
		clear(have)
		stale = stale[:0]
		for sub, err := range twitch.Subscriptions(ctx, robo.twitch, tok, "") {
			if err != nil {
				return err
			}
			if sub.Transport.Session != session || sub.Status != "enabled" {
				continue
			}
			b := sub.Condition.Broadcaster
			if _, ok := want[b]; !ok {
				stale = append(stale, sub)
				continue
			}
			if have[b] == nil {
				have[b] = make(map[string]bool)
			}
			have[b][sub.Type] = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("couldn't list EventSub subscriptions: %w", err)
	}
	for _, sub := range stale {
		robo.unsubscribe(ctx, sub)
	}
	tr := twitch.SubscriptionTransport{Method: "websocket", Session: session}
	for id, login := range want {
		for _, s := range subscriptions {
			if have[id][s.typ] {
				continue
			}
			sub := twitch.Subscription{
				Type:      s.typ,
				Version:   s.version,
				Condition: twitch.SubscriptionCondition{Broadcaster: id},
				Transport: tr,
			}
			if s.mod {
				sub.Condition.Moderator = robo.tmi.userID
			}
			err := withUser(ctx, robo.tmi.tokens, func(tok *oauth2.Token) error {
				_, err := twitch.CreateSubscription(ctx, robo.twitch, tok, sub)
				return err
			})
			if err != nil {
				slog.WarnContext(ctx, "couldn't subscribe", slog.String("channel", login), slog.String("type", sub.Type), slog.Any("err", err))
				continue
			}
			slog.InfoContext(ctx, "subscribed", slog.String("channel", login), slog.String("type", sub.Type))
		}
	}
	return nil
}

func (robo *Robot) unsubscribe(ctx context.Context, sub twitch.Subscription) {
	err := withUser(ctx, robo.tmi.tokens, func(tok *oauth2.Token) error {
		return twitch.DeleteSubscription(ctx, robo.twitch, tok, sub.ID)
	})
	if err != nil {
		slog.WarnContext(ctx, "couldn't unsubscribe", slog.String("id", sub.ID), slog.String("type", sub.Type), slog.Any("err", err))
		return
	}
	slog.InfoContext(ctx, "unsubscribed", slog.String("broadcaster", sub.Condition.Broadcaster), slog.String("type", sub.Type))
}

// resubscribe updates the current EventSub session's subscriptions after
// the channel list changes.
func (robo *Robot) resubscribe(ctx context.Context) {
	session, _ := robo.session.Load().(string)
	if session == "" {
		return
	}
	if err := robo.subscribe(ctx, session); err != nil {
		slog.ErrorContext(ctx, "couldn't update EventSub subscriptions", slog.Any("err", err))
	}
}

func (robo *Robot) eventsubEvent(ctx context.Context, ev *eventsub.Event) {
	switch ev.Subscription.Type {
	case eventsub.TypeFollow:
		f, err := eventsub.Payload[eventsub.Follow](ev)
		if err != nil {
			slog.ErrorContext(ctx, "bad follow event", slog.Any("err", err))
			return
		}
		slog.InfoContext(ctx, "follow", slog.String("channel", f.BroadcasterLogin), slog.String("user", f.UserLogin))
		if ch := robo.channelByLogin(f.BroadcasterLogin); ch != nil {
			ch.Thank(ctx, fmt.Sprintf("Thank you for the follow, @%s!", f.UserName))
		}
	case eventsub.TypeRedemption:
		r, err := eventsub.Payload[eventsub.Redemption](ev)
		if err != nil {
			slog.ErrorContext(ctx, "bad redemption event", slog.Any("err", err))
			return
		}
		slog.InfoContext(ctx, "reward redeemed",
			slog.String("channel", r.BroadcasterLogin),
			slog.String("user", r.UserLogin),
			slog.String("reward", r.Reward.Title),
		)
		if ch := robo.channelByLogin(r.BroadcasterLogin); ch != nil {
			ch.Thank(ctx, fmt.Sprintf("Thank you for redeeming %s, @%s!", r.Reward.Title, r.UserName))
		}
	default:
		slog.WarnContext(ctx, "unexpected EventSub event", slog.String("type", ev.Subscription.Type))
	}
}

func (robo *Robot) channelByLogin(login string) *channel.Channel {
	ch, _ := robo.channels.Load("#" + login)
	return ch
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/profprotonn/protonbot/auth"
	"github.com/profprotonn/protonbot/command"
	"github.com/profprotonn/protonbot/message"
	"github.com/profprotonn/protonbot/metrics"
	"github.com/profprotonn/protonbot/telemetry"
	"github.com/profprotonn/protonbot/twitch"
)

const tracer = "github.com/profprotonn/protonbot"

// errNoUser is returned when a login names no Twitch user.
var errNoUser = errors.New("no such user")

// helixModerator performs moderation actions through the Helix API with the
// bot's user token.
type helixModerator struct {
	twitch twitch.Client
	// tokens is the bot's user token source.
	tokens auth.TokenSource
	// app is an app token source for user lookups. It may be nil, in which
	// case lookups use the user token.
	app auth.TokenSource
	// me is the bot's user ID.
	me string
	// result counts actions by name and result.
	result metrics.Observer
}

var _ command.Moderator = (*helixModerator)(nil)

func (h *helixModerator) Ban(ctx context.Context, ch command.Target, user string, seconds int, reason string) (err error) {
	action := "ban"
	if seconds > 0 {
		action = "timeout"
	}
	ctx, span := telemetry.Start(ctx, tracer, action, attribute.String("channel", ch.Name), attribute.String("user", user))
	defer func() { h.done(span, action, err) }()
	ch, err = h.channel(ctx, ch)
	if err != nil {
		return err
	}
	ids, err := lookupIDs(ctx, h.twitch, h.tokens, h.app, user)
	if err != nil {
		return err
	}
	id := ids[strings.ToLower(user)]
	if id == "" {
		return fmt.Errorf("couldn't find %s: %w", user, errNoUser)
	}
	ban := twitch.Ban{User: id, Duration: seconds, Reason: message.Truncate(reason, 500)}
	return withUser(ctx, h.tokens, func(tok *oauth2.Token) error {
		return twitch.BanUser(ctx, h.twitch, tok, ch.ID, h.me, ban)
	})
}

func (h *helixModerator) Unban(ctx context.Context, ch command.Target, user string) (err error) {
	ctx, span := telemetry.Start(ctx, tracer, "unban", attribute.String("channel", ch.Name), attribute.String("user", user))
	defer func() { h.done(span, "unban", err) }()
	ch, err = h.channel(ctx, ch)
	if err != nil {
		return err
	}
	ids, err := lookupIDs(ctx, h.twitch, h.tokens, h.app, user)
	if err != nil {
		return err
	}
	id := ids[strings.ToLower(user)]
	if id == "" {
		return fmt.Errorf("couldn't find %s: %w", user, errNoUser)
	}
	return withUser(ctx, h.tokens, func(tok *oauth2.Token) error {
		return twitch.UnbanUser(ctx, h.twitch, tok, ch.ID, h.me, id)
	})
}

func (h *helixModerator) Clear(ctx context.Context, ch command.Target) (err error) {
	ctx, span := telemetry.Start(ctx, tracer, "clear", attribute.String("channel", ch.Name))
	defer func() { h.done(span, "clear", err) }()
	ch, err = h.channel(ctx, ch)
	if err != nil {
		return err
	}
	return withUser(ctx, h.tokens, func(tok *oauth2.Token) error {
		return twitch.ClearChat(ctx, h.twitch, tok, ch.ID, h.me)
	})
}

func (h *helixModerator) Moderators(ctx context.Context, ch command.Target) (names []string, err error) {
	ctx, span := telemetry.Start(ctx, tracer, "mods", attribute.String("channel", ch.Name))
	defer func() { h.done(span, "mods", err) }()
	ch, err = h.channel(ctx, ch)
	if err != nil {
		return nil, err
	}
	var mods []twitch.Moderator
	err = withUser(ctx, h.tokens, func(tok *oauth2.Token) error {
		var err error
		mods, err = twitch.Moderators(ctx, h.twitch, tok, ch.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	names = make([]string, 0, len(mods))
	for _, m := range mods {
		names = append(names, m.Name)
	}
	return names, nil
}

// channel fills in the broadcaster ID of ch if it is missing.
func (h *helixModerator) channel(ctx context.Context, ch command.Target) (command.Target, error) {
	if ch.ID != "" {
		return ch, nil
	}
	ids, err := lookupIDs(ctx, h.twitch, h.tokens, h.app, ch.Name)
	if err != nil {
		return ch, err
	}
	ch.ID = ids[strings.ToLower(ch.Name)]
	if ch.ID == "" {
		return ch, fmt.Errorf("couldn't find channel %s: %w", ch.Name, errNoUser)
	}
	return ch, nil
}

func (h *helixModerator) done(span trace.Span, action string, err error) {
	telemetry.End(span, err)
	if err != nil {
		h.result.Observe(1, action, "error")
		return
	}
	h.result.Observe(1, action, "ok")
}

// withUser runs f once with the user token. If the API rejects the token,
// withUser refreshes it for later calls and still returns f's error; the
// request itself is never repeated.
func withUser(ctx context.Context, tokens auth.TokenSource, f func(*oauth2.Token) error) error {
	tok, err := tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't get user token: %w", err)
	}
	err = f(tok)
	if !errors.Is(err, twitch.ErrNeedRefresh) {
		return err
	}
	slog.InfoContext(ctx, "user token rejected, refreshing")
	if _, rerr := tokens.Refresh(ctx, tok); rerr != nil {
		slog.ErrorContext(ctx, "couldn't refresh user token", slog.Any("err", rerr))
	}
	return err
}

// lookupIDs resolves logins to user IDs, keyed by lowercased login.
// Unknown logins are absent from the result. The app token is used when
// available.
func lookupIDs(ctx context.Context, cl twitch.Client, tokens, app auth.TokenSource, logins ...string) (map[string]string, error) {
	src := app
	if src == nil {
		src = tokens
	}
	r := make(map[string]string, len(logins))
	for len(logins) > 0 {
		l := logins[:min(twitch.MaxUsers, len(logins))]
		logins = logins[len(l):]
		var users []twitch.User
		err := withUser(ctx, src, func(tok *oauth2.Token) error {
			var err error
			users, err = twitch.UsersByLogin(ctx, cl, tok, l...)
			return err
		})
		if err != nil {
			return r, fmt.Errorf("couldn't look up users: %w", err)
		}
		for _, u := range users {
			r[strings.ToLower(u.Login)] = u.ID
		}
	}
	return r, nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/profprotonn/protonbot/twitch"
)

// refreshLoop restarts the chat connection on an interval so that it always
// uses fresh credentials and the current channel list.
func (robo *Robot) refreshLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		slog.InfoContext(ctx, "periodic refresh disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			slog.InfoContext(ctx, "periodic refresh")
			robo.restart(ctx)
		}
	}
}

// restart refreshes the user token, reloads the channel list, and asks the
// chat connection to reconnect. A failed refresh is logged and the old
// token stays in use.
func (robo *Robot) restart(ctx context.Context) {
	if robo.tmi != nil && robo.tmi.tokens != nil {
		tok, err := robo.tmi.tokens.Token(ctx)
		if err == nil {
			_, err = robo.refresh(ctx, tok)
		}
		if err != nil {
			slog.ErrorContext(ctx, "couldn't refresh token, keeping the old one", slog.Any("err", err))
		}
	}
	robo.SetChannels(ctx)
	robo.resubscribe(ctx)
	select {
	case robo.reconnect <- struct{}{}:
	default:
		// A reconnect is already pending.
	}
}

// validateLoop validates the user token hourly, as Twitch requires of chat
// clients. An invalid token triggers a restart.
func (robo *Robot) validateLoop(ctx context.Context, every time.Duration) error {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			robo.validate(ctx)
		}
	}
}

// validate checks the current user token once and restarts if it has been
// invalidated. It reports whether it restarted.
func (robo *Robot) validate(ctx context.Context) bool {
	tok, err := robo.tmi.tokens.Token(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "couldn't get token to validate", slog.Any("err", err))
		return false
	}
	val, err := twitch.Validate(ctx, robo.twitch, tok)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "token valid", slog.String("login", val.Login), slog.Time("expiry", val.Expiry()))
		return false
	case errors.Is(err, twitch.ErrNeedRefresh):
		slog.WarnContext(ctx, "token invalidated", slog.Any("err", err))
		robo.restart(ctx)
		return true
	default:
		slog.ErrorContext(ctx, "couldn't validate token", slog.Any("err", err))
		return false
	}
}

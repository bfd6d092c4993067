package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/profprotonn/protonbot/auth"
	"github.com/profprotonn/protonbot/channel"
	"github.com/profprotonn/protonbot/command"
	"github.com/profprotonn/protonbot/complete"
	"github.com/profprotonn/protonbot/dispatch"
	"github.com/profprotonn/protonbot/metrics"
	"github.com/profprotonn/protonbot/store"
	"github.com/profprotonn/protonbot/syncmap"
	"github.com/profprotonn/protonbot/twitch"
)

// Robot is the overall state of the bot.
type Robot struct {
	// cfg is the loaded configuration.
	cfg *Config
	// store is the persisted command store.
	store store.Store
	// engine dispatches chat messages.
	engine *dispatch.Engine
	// channels are the joined channels, keyed by name with '#'.
	channels *syncmap.Map[string, *channel.Channel]
	// works is the pool of message workers.
	works chan chan func(context.Context)
	// http is the HTTP client for outbound requests.
	http *http.Client
	// twitch is the Helix API client.
	twitch twitch.Client
	// tmi is the chat connection state.
	tmi *client
	// app is the app token source for lookups that need no user token.
	// It may be nil.
	app auth.TokenSource
	// reconnect signals the TMI connection to reconnect with fresh
	// credentials and channels.
	reconnect chan struct{}
	// session is the current EventSub session ID, or empty.
	session atomic.Value
	// metrics are the bot's metrics.
	metrics *metrics.Metrics
}

// client is the TMI connection state.
type client struct {
	// send is the channel of outgoing messages. It persists across
	// reconnects.
	send chan *tmi.Message
	// name is the bot's login name.
	name string
	// userID is the bot's user ID, used as the moderator in Helix calls.
	userID string
	// rate is the global send rate limit.
	rate *rate.Limiter
	// tokens is the user token source.
	tokens auth.TokenSource
}

// New creates a new robot instance.
func New(cfg *Config, st store.Store, m *metrics.Metrics, poolSize int) *Robot {
	return &Robot{
		cfg:       cfg,
		store:     st,
		channels:  syncmap.New[string, *channel.Channel](),
		works:     make(chan chan func(context.Context), poolSize),
		http:      &http.Client{Timeout: 30 * time.Second},
		reconnect: make(chan struct{}, 1),
		metrics:   m,
	}
}

// InitTwitch loads Twitch credentials and validates them to learn the bot's
// identity.
func (robo *Robot) InitTwitch(ctx context.Context) error {
	cfg := robo.cfg.TMI
	robo.twitch = twitch.Client{HTTP: robo.http, ID: cfg.CID}
	tokens, err := loadTokens(ctx, cfg, robo.http)
	if err != nil {
		return err
	}
	robo.tmi = &client{
		send:   make(chan *tmi.Message, 1),
		rate:   cfg.Rate.limiter(),
		tokens: tokens,
	}
	if cfg.Secret != "" {
		robo.app = auth.ClientCredentialsFlow(oauthConfig(cfg), robo.http)
	}
	// Validate the Twitch access token now to get our user ID and login.
	tok, err := tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't obtain Twitch access token: %w", err)
	}
	for range 5 {
		val, err := twitch.Validate(ctx, robo.twitch, tok)
		switch {
		case err == nil: // do nothing
		case errors.Is(err, twitch.ErrNeedRefresh):
			tok, err = robo.refresh(ctx, tok)
			if err != nil {
				return fmt.Errorf("couldn't refresh Twitch token: %w", err)
			}
			continue
		default:
			return fmt.Errorf("couldn't validate Twitch token: %w", err)
		}
		slog.InfoContext(ctx, "Twitch validation",
			slog.String("login", val.Login),
			slog.String("user", val.UserID),
			slog.Int("expires_in", val.ExpiresIn),
		)
		if m := val.Missing(twitch.Scopes); len(m) != 0 {
			slog.WarnContext(ctx, "Twitch token lacks scopes; some commands will fail", slog.Any("missing", m))
		}
		robo.tmi.name = strings.ToLower(val.Login)
		if n := robo.cfg.Bot.Name; n != "" && !strings.EqualFold(n, val.Login) {
			slog.WarnContext(ctx, "configured bot name differs from token login",
				slog.String("name", n),
				slog.String("login", val.Login),
			)
		}
		robo.tmi.userID = val.UserID
		return nil
	}
	return errors.New("gave up on validation attempts")
}

// InitEngine builds the dispatch engine. It must be called after InitTwitch.
func (robo *Robot) InitEngine(ctx context.Context) {
	cfg := robo.cfg
	e := &dispatch.Engine{
		Prefix:   cfg.Bot.Prefix,
		AIPrefix: cfg.AI.Prefix,
		Static:   command.NewRegistry(cfg.Static, command.Builtin),
		Store:    robo.store,
		Moderator: &helixModerator{
			twitch: robo.twitch,
			tokens: robo.tmi.tokens,
			app:    robo.app,
			me:     robo.tmi.userID,
			result: robo.metrics.ModerationCount,
		},
	}
	if cfg.AI.Key != "" && len(cfg.AI.Askers) != 0 {
		e.Askers = make(map[string]bool, len(cfg.AI.Askers))
		for _, s := range cfg.AI.Askers {
			e.Askers[strings.ToLower(strings.TrimSpace(s))] = true
		}
		e.Completer = &timedCompleter{
			c:       &complete.Client{HTTP: robo.http, Key: cfg.AI.Key, Model: cfg.AI.Model},
			timeout: fseconds(cfg.AI.Timeout),
			latency: robo.metrics.CompletionLatency,
		}
	} else {
		slog.InfoContext(ctx, "questions disabled")
	}
	slog.InfoContext(ctx, "commands",
		slog.Int("static", e.Static.Len()),
		slog.String("prefix", e.Prefix),
		slog.Int("askers", len(e.Askers)),
	)
	robo.engine = e
}

// SetChannels fetches the channel list and replaces the joined channel set.
// It returns the new channel names.
func (robo *Robot) SetChannels(ctx context.Context) []string {
	names := robo.channelNames(ctx)
	old := make(map[string]*channel.Channel)
	for k, v := range robo.channels.All() {
		old[k] = v
	}
	robo.channels.Replace(robo.buildChannels(names, old))
	robo.metrics.JoinedChannels.Observe(float64(len(names)))
	slog.InfoContext(ctx, "channels", slog.Int("count", len(names)), slog.Any("names", names))
	return names
}

// Run runs the bot until ctx is canceled.
func (robo *Robot) Run(ctx context.Context, listen string) error {
	group, ctx := errgroup.WithContext(ctx)
	if listen != "" {
		group.Go(func() error {
			return robo.api(ctx, listen, new(http.ServeMux), robo.metrics.Collectors())
		})
	}
	if robo.tmi != nil {
		group.Go(func() error { return robo.runTwitch(ctx) })
		group.Go(func() error { return robo.refreshLoop(ctx, fseconds(robo.cfg.TMI.RefreshInterval)) })
		group.Go(func() error { return robo.validateLoop(ctx, time.Hour) })
		if robo.cfg.EventSub.Enabled {
			group.Go(func() error { return robo.eventsub(ctx) })
		}
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		// If the first error is context canceled, then we are shutting down
		// normally in response to a sigint.
		err = nil
	}
	return err
}

// refresh refreshes the bot's user token and records the result.
func (robo *Robot) refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error) {
	tok, err := robo.tmi.tokens.Refresh(ctx, old)
	if err != nil {
		robo.metrics.RefreshCount.Observe(1, "error")
		return tok, err
	}
	robo.metrics.RefreshCount.Observe(1, "ok")
	return tok, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/joho/godotenv"
	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/profprotonn/protonbot/auth"
	"github.com/profprotonn/protonbot/channel"
	"github.com/profprotonn/protonbot/command"
	"github.com/profprotonn/protonbot/complete"
	"github.com/profprotonn/protonbot/store"
	"github.com/profprotonn/protonbot/store/kvstore"
	"github.com/profprotonn/protonbot/store/pgstore"
	"github.com/profprotonn/protonbot/store/sqlstore"
	"github.com/profprotonn/protonbot/twitch"
)

// Load loads the bot configuration from TOML. String fields are expanded with
// the process environment, and unset options take their defaults.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	defaults(&cfg)
	if u := md.Undecoded(); len(u) != 0 {
		slog.WarnContext(ctx, "unknown config keys", slog.Any("keys", u))
	}
	return &cfg, &md, nil
}

// loadEnv loads environment variables from an env file.
// A missing file is not an error.
func loadEnv(file string) error {
	if file == "" {
		return nil
	}
	err := godotenv.Load(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("couldn't load env file: %w", err)
	}
	return nil
}

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// Bot is the bot's identity in chat.
	Bot BotCfg `toml:"bot"`
	// TMI is the configuration for connecting to Twitch chat.
	TMI ClientCfg `toml:"tmi"`
	// DB is the persisted command store configuration.
	DB DBCfg `toml:"db"`
	// AI is the question answering configuration.
	AI AICfg `toml:"ai"`
	// Chat is the channel configuration.
	Chat ChatCfg `toml:"chat"`
	// Static is the list of additional static commands.
	Static []command.Static `toml:"static"`
	// HTTP is the HTTP server configuration.
	HTTP HTTPCfg `toml:"http"`
	// EventSub is the EventSub configuration.
	EventSub EventSubCfg `toml:"eventsub"`
	// Telemetry is the trace export configuration.
	Telemetry TelemetryCfg `toml:"telemetry"`
}

// BotCfg is the bot's identity.
type BotCfg struct {
	// Name is the bot's login name. If empty, the login of the access token
	// is used.
	Name string `toml:"name"`
	// Prefix is the command prefix.
	Prefix string `toml:"prefix"`
}

// ClientCfg is the configuration for connecting to Twitch.
type ClientCfg struct {
	// CID is the client ID.
	CID string `toml:"cid"`
	// Secret is the client secret.
	Secret string `toml:"secret"`
	// Access is the initial user access token.
	Access string `toml:"access"`
	// Refresh is the initial refresh token.
	Refresh string `toml:"refresh"`
	// TokenFile is the path to a file in which the bot persists refreshed
	// tokens, encrypted with a key derived from Key. Optional.
	TokenFile string `toml:"token_file"`
	// Key is the secret from which the token file key is derived.
	Key string `toml:"key"`
	// Rate is the global rate limit for sending messages.
	Rate Rate `toml:"rate"`
	// RefreshInterval is the interval in seconds between credential
	// refreshes and reconnects.
	RefreshInterval float64 `toml:"refresh_interval"`
}

// DBCfg is the configuration of the command store.
// Exactly one backend must be set.
type DBCfg struct {
	// SQLite is the SQLite DSN.
	SQLite string `toml:"sqlite"`
	// KV is the badger directory.
	KV string `toml:"kv"`
	// KVFlag is a badger superflag string.
	KVFlag string `toml:"kvflag"`
	// Postgres is the PostgreSQL connection string.
	Postgres string `toml:"postgres"`
}

// AICfg is the question answering configuration.
type AICfg struct {
	// Key is the Gemini API key. If empty, questions are disabled.
	Key string `toml:"key"`
	// Model is the model name.
	Model string `toml:"model"`
	// Prefix is the case-insensitive prefix of questions.
	Prefix string `toml:"prefix"`
	// Askers is the list of logins allowed to ask questions.
	Askers []string `toml:"askers"`
	// Timeout is the completion timeout in seconds.
	Timeout float64 `toml:"timeout"`
}

// ChatCfg is the channel configuration.
type ChatCfg struct {
	// Channels is the static list of channels to join.
	Channels []string `toml:"channels"`
	// Source is the URL of the channel list. Optional.
	Source string `toml:"source"`
	// Thanks means the bot thanks users for subs, raids, cheers, and follows.
	Thanks bool `toml:"thanks"`
	// Emotes is the emotes and their weights appended to thanks.
	Emotes map[string]int `toml:"emotes"`
	// Rate is the per-channel rate limit for replies to users without
	// moderator standing.
	Rate Rate `toml:"rate"`
}

// HTTPCfg is the HTTP server configuration.
type HTTPCfg struct {
	// Listen is the listen address. If empty, there is no HTTP server.
	Listen string `toml:"listen"`
	// RestartPassword is the secret for the restart endpoint.
	// If empty, the restart endpoint always refuses.
	RestartPassword string `toml:"restart_password"`
}

// EventSubCfg is the EventSub configuration.
type EventSubCfg struct {
	// Enabled turns on follow and reward redemption events.
	Enabled bool `toml:"enabled"`
}

// TelemetryCfg is the trace export configuration.
type TelemetryCfg struct {
	// Endpoint is the OTLP gRPC endpoint. If empty, tracing is disabled.
	Endpoint string `toml:"endpoint"`
	// Service is the service name reported with traces.
	Service string `toml:"service"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

// limiter creates a rate limiter. A zero rate means no limit.
func (r Rate) limiter() *rate.Limiter {
	if r.Every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(fseconds(r.Every)), max(r.Num, 1))
}

func defaults(cfg *Config) {
	if cfg.Bot.Prefix == "" {
		cfg.Bot.Prefix = "!"
	}
	if cfg.TMI.RefreshInterval <= 0 {
		cfg.TMI.RefreshInterval = 3.5 * 60 * 60
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = complete.DefaultModel
	}
	if cfg.AI.Prefix == "" {
		cfg.AI.Prefix = "bot,"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30
	}
	if cfg.Telemetry.Service == "" {
		cfg.Telemetry.Service = "protonbot"
	}
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.Bot.Name,
		&cfg.Bot.Prefix,
		&cfg.TMI.CID,
		&cfg.TMI.Secret,
		&cfg.TMI.Access,
		&cfg.TMI.Refresh,
		&cfg.TMI.TokenFile,
		&cfg.TMI.Key,
		&cfg.DB.SQLite,
		&cfg.DB.KV,
		&cfg.DB.KVFlag,
		&cfg.DB.Postgres,
		&cfg.AI.Key,
		&cfg.AI.Model,
		&cfg.Chat.Source,
		&cfg.HTTP.Listen,
		&cfg.HTTP.RestartPassword,
		&cfg.Telemetry.Endpoint,
		&cfg.Telemetry.Service,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	for i, s := range cfg.Chat.Channels {
		cfg.Chat.Channels[i] = os.Expand(s, expand)
	}
	for i, s := range cfg.AI.Askers {
		cfg.AI.Askers[i] = os.Expand(s, expand)
	}
}

// loadStore opens the configured command store.
func loadStore(ctx context.Context, cfg DBCfg) (store.Store, error) {
	n := 0
	for _, s := range []string{cfg.SQLite, cfg.KV, cfg.Postgres} {
		if s != "" {
			n++
		}
	}
	switch n {
	case 0:
		return nil, errors.New("no command store configured; use exactly one")
	case 1: // do nothing
	default:
		return nil, errors.New("multiple command stores configured; use exactly one")
	}

	switch {
	case cfg.SQLite != "":
		slog.DebugContext(ctx, "using sqlite store", slog.String("path", cfg.SQLite))
		pool, err := sqlitex.NewPool(cfg.SQLite, sqlitex.PoolOptions{PrepareConn: sqlstore.RecommendedPrep})
		if err != nil {
			return nil, fmt.Errorf("couldn't open sqlite store: %w", err)
		}
		s, err := sqlstore.Open(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("couldn't open sqlite store: %w", err)
		}
		return s, nil
	case cfg.KV != "":
		slog.DebugContext(ctx, "using kv store", slog.String("path", cfg.KV), slog.String("flags", cfg.KVFlag))
		opts := badger.DefaultOptions(cfg.KV)
		opts = opts.WithLogger(nil)
		opts = opts.WithCompression(options.None)
		db, err := badger.Open(opts.FromSuperFlag(cfg.KVFlag))
		if err != nil {
			return nil, fmt.Errorf("couldn't open kv store: %w", err)
		}
		return kvstore.New(db), nil
	default:
		slog.DebugContext(ctx, "using postgres store")
		s, err := pgstore.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("couldn't open postgres store: %w", err)
		}
		return s, nil
	}
}

// loadTokens creates the bot's user token source.
func loadTokens(ctx context.Context, cfg ClientCfg, client *http.Client) (*auth.State, error) {
	st, err := tokenStorage(cfg)
	if err != nil {
		return nil, err
	}
	seed := &oauth2.Token{
		AccessToken:  strings.TrimPrefix(cfg.Access, "oauth:"),
		RefreshToken: cfg.Refresh,
		TokenType:    "bearer",
	}
	s, err := auth.NewState(ctx, oauthConfig(cfg), st, client, seed)
	if err != nil {
		return nil, fmt.Errorf("couldn't load Twitch credentials: %w", err)
	}
	return s, nil
}

// tokenStorage opens the encrypted token file if one is configured.
// The result is nil if there is none.
func tokenStorage(cfg ClientCfg) (auth.Storage, error) {
	if cfg.TokenFile == "" {
		return nil, nil
	}
	if cfg.Key == "" {
		return nil, errors.New("token file requires a key")
	}
	var key [auth.KeySize]byte
	domainkey(key[:], []byte(cfg.Key), []byte("oauth2.twitch"))
	st, err := auth.NewFileAt(cfg.TokenFile, key)
	if err != nil {
		return nil, fmt.Errorf("couldn't use token storage: %w", err)
	}
	return st, nil
}

func oauthConfig(cfg ClientCfg) oauth2.Config {
	return oauth2.Config{
		ClientID:     cfg.CID,
		ClientSecret: cfg.Secret,
		Endpoint:     auth.Twitch,
		Scopes:       twitch.Scopes,
	}
}

// buildChannels builds channel state for a list of channel names.
// Channels already in old keep their rate limiter so that reconnecting
// doesn't reset it.
func (robo *Robot) buildChannels(names []string, old map[string]*channel.Channel) map[string]*channel.Channel {
	var emotes *pick.Dist[string]
	if len(robo.cfg.Chat.Emotes) != 0 {
		emotes = pick.New(pick.FromMap(robo.cfg.Chat.Emotes))
	}
	r := make(map[string]*channel.Channel, len(names))
	for _, nm := range names {
		nm = "#" + nm
		v := &channel.Channel{
			Name:    nm,
			Rate:    robo.cfg.Chat.Rate.limiter(),
			Thanks:  robo.cfg.Chat.Thanks,
			Emotes:  emotes,
			Message: robo.sendTMI,
		}
		if o := old[nm]; o != nil && o.Rate != nil {
			v.Rate = o.Rate
		}
		r[nm] = v
	}
	return r
}

// channelNames gets the names of channels to join, without '#'.
// A failure to fetch the channel list is logged, and the static list is
// used alone.
func (robo *Robot) channelNames(ctx context.Context) []string {
	var fetched []string
	if src := robo.cfg.Chat.Source; src != "" {
		var err error
		fetched, err = channel.FetchList(ctx, robo.http, src)
		if err != nil {
			slog.ErrorContext(ctx, "couldn't fetch channel list", slog.Any("err", err))
		}
	}
	return channel.Merge(robo.cfg.Chat.Channels, fetched)
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// domainkey fills o with a key derived from k for the given domain. Panics if
// a key cannot be expanded.
func domainkey(o, k, domain []byte) []byte {
	kr := hkdf.Expand(sha3.New224, k, domain)
	if _, err := io.ReadFull(kr, o); err != nil {
		panic(err)
	}
	return o
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/profprotonn/protonbot/auth"
	"github.com/profprotonn/protonbot/complete"
	"github.com/profprotonn/protonbot/metrics"
	"github.com/profprotonn/protonbot/store"
	"github.com/profprotonn/protonbot/telemetry"
)

// version is the bot version reported to tracing.
var version = "devel"

var app = cli.Command{
	Name:  "protonbot",
	Usage: "Twitch chat command and moderation bot",

	Flags: []cli.Flag{
		&flagConfig,
		&flagEnv,
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:   "login",
			Usage:  "Log in to Twitch with the device code flow and save the token",
			Action: cliLogin,
		},
		{
			Name:   "init",
			Usage:  "Create the command store schema and exit",
			Action: cliInit,
		},
		{
			Name:      "commands",
			Usage:     "List a channel's persisted commands",
			ArgsUsage: "<channel>",
			Action:    cliCommands,
		},
		{
			Name:      "ask",
			Usage:     "Ask the completion model a question",
			ArgsUsage: "<question...>",
			Action:    cliAsk,
		},
	},
	Action: cliRun,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// config sets up logging and loads the configuration named by the flags.
func config(ctx context.Context, cmd *cli.Command) (*Config, error) {
	slog.SetDefault(loggerFromFlags(cmd))
	if err := loadEnv(cmd.String("env")); err != nil {
		return nil, err
	}
	r, err := os.Open(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	cfg, _, err := Load(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("couldn't load config: %w", err)
	}
	return cfg, nil
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config(ctx, cmd)
	if err != nil {
		return err
	}
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.Service, version)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "tracing shutdown", slog.Any("err", err))
		}
	}()
	st, err := loadStore(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	robo := New(cfg, st, newMetrics(), runtime.GOMAXPROCS(0))
	if err := robo.InitTwitch(ctx); err != nil {
		return err
	}
	robo.InitEngine(ctx)
	return robo.Run(ctx, cfg.HTTP.Listen)
}

func cliLogin(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config(ctx, cmd)
	if err != nil {
		return err
	}
	st, err := tokenStorage(cfg.TMI)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("login requires tmi.token_file and tmi.key")
	}
	prompt := func(userCode, verURI, verURIComplete string) {
		fmt.Printf("Go to %s and enter code %s to log in.\n", verURIComplete, userCode)
	}
	tok, err := auth.Login(ctx, oauthConfig(cfg.TMI), st, &http.Client{Timeout: 30 * time.Second}, prompt)
	if err != nil {
		return fmt.Errorf("couldn't log in: %w", err)
	}
	slog.InfoContext(ctx, "logged in", slog.String("file", cfg.TMI.TokenFile), slog.Time("expiry", tok.Expiry))
	return nil
}

func cliInit(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config(ctx, cmd)
	if err != nil {
		return err
	}
	st, err := loadStore(ctx, cfg.DB)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "store ready")
	return st.Close()
}

func cliCommands(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("usage: commands <channel>")
	}
	cfg, err := config(ctx, cmd)
	if err != nil {
		return err
	}
	st, err := loadStore(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer st.Close()
	cmds, err := st.ListByChannel(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	for _, c := range cmds {
		fmt.Println(formatCommand(cfg.Bot.Prefix, c))
	}
	return nil
}

func formatCommand(prefix string, c store.Command) string {
	mod := ""
	if c.RequiresMod {
		mod = " (mod)"
	}
	return fmt.Sprintf("%s\t%s%s%s\t%s", c.ID, prefix, c.Trigger, mod, c.Response)
}

func cliAsk(ctx context.Context, cmd *cli.Command) error {
	q := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(q) == "" {
		return errors.New("usage: ask <question...>")
	}
	cfg, err := config(ctx, cmd)
	if err != nil {
		return err
	}
	if cfg.AI.Key == "" {
		return errors.New("no completion key configured")
	}
	cl := complete.Client{HTTP: &http.Client{Timeout: fseconds(cfg.AI.Timeout)}, Key: cfg.AI.Key, Model: cfg.AI.Model}
	a, err := cl.Complete(ctx, complete.Prompt(q))
	if err != nil {
		return err
	}
	fmt.Println(a)
	return nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagEnv = cli.StringFlag{
		Name:       "env",
		Usage:      "Env file loaded before expanding the config",
		Value:      ".env",
		Persistent: true,
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}

// metrics configuration
func newMetrics() *metrics.Metrics {
	return &metrics.Metrics{
		TMIMsgsCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "protonbot",
					Subsystem: "tmi",
					Name:      "messages",
					Help:      "Number of PRIVMSGs received from TMI.",
				},
			),
		),
		TMICommandCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "protonbot",
					Subsystem: "tmi",
					Name:      "irc_commands",
					Help:      "Number of IRC messages received from TMI by command.",
				},
				[]string{"command"},
			),
		),
		ReplyCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "protonbot",
					Subsystem: "dispatch",
					Name:      "replies",
					Help:      "Number of replies produced by handling path.",
				},
				[]string{"kind"},
			),
		),
		ModerationCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "protonbot",
					Subsystem: "dispatch",
					Name:      "moderation",
					Help:      "Number of moderation calls by action and result.",
				},
				[]string{"action", "result"},
			),
		),
		CompletionLatency: metrics.NewPromHistogram(
			prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
					Namespace: "protonbot",
					Subsystem: "dispatch",
					Name:      "completion_latency",
					Help:      "How long it takes to answer a question in seconds.",
				},
			),
		),
		RefreshCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "protonbot",
					Subsystem: "auth",
					Name:      "refreshes",
					Help:      "Number of user token refreshes by result.",
				},
				[]string{"result"},
			),
		),
		APICount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "protonbot",
					Subsystem: "api",
					Name:      "requests",
					Help:      "Number of HTTP API requests by route and status.",
				},
				[]string{"route", "status"},
			),
		),
		JoinedChannels: metrics.NewPromGauge(
			prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "protonbot",
					Subsystem: "tmi",
					Name:      "channels",
					Help:      "Number of channels currently joined.",
				},
			),
		),
	}
}

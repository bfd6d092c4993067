// Package dispatch routes chat messages to the bot's command handlers.
//
// Each message is routed to at most one handling path and produces at most
// one reply. In order of precedence:
//
//  1. The bot's own messages are ignored.
//  2. Questions from privileged askers that start with the AI prefix are
//     answered with a text completion.
//  3. Commands from moderators and the broadcaster that name a moderation
//     action run that action.
//  4. Commands in the static command table reply with their fixed text.
//  5. Commands persisted for the channel reply with their stored text.
//
// Everything else, including unknown commands, is ignored without a reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/profprotonn/protonbot/command"
	"github.com/profprotonn/protonbot/complete"
	"github.com/profprotonn/protonbot/message"
	"github.com/profprotonn/protonbot/store"
)

// Event is a chat message to dispatch.
type Event struct {
	// ID is the message ID.
	ID string
	// Channel is the channel name including the leading '#'.
	Channel string
	// RoomID is the broadcaster user ID of the channel.
	RoomID string
	// UserID is the user ID of the sender.
	UserID string
	// Login is the login name of the sender.
	Login string
	// User is the display name of the sender, used to address replies.
	User string
	// Text is the full message text.
	Text string
	// Trigger is the normalized command name if the message is
	// command-shaped, or empty otherwise.
	Trigger string
	// Args are the words following the trigger.
	Args []string
	// Moderator means the sender has moderator standing in the channel.
	// The broadcaster always has moderator standing.
	Moderator bool
	// Broadcaster means the sender owns the channel.
	Broadcaster bool
	// Self means the bot sent the message.
	Self bool
}

// Kind is the handling path that produced a reply.
type Kind string

const (
	KindNone       Kind = ""
	KindAI         Kind = "ai"
	KindModeration Kind = "moderation"
	KindStatic     Kind = "static"
	KindCustom     Kind = "custom"
)

// Reply is the outcome of dispatching an event.
type Reply struct {
	// Kind is the path that handled the event.
	Kind Kind
	// Name is the command or action name for command paths.
	Name string
	// Sent is the message to send. It is addressed to the event's channel.
	Sent message.Sent
	// Err is the failure of an external call, if any. The reply text is
	// still suitable to send.
	Err error
}

// Completer answers prompts with generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Finder looks up persisted commands.
type Finder interface {
	FindOne(ctx context.Context, channel, trigger string) (*store.Command, error)
}

// AILimit is the maximum length of AI replies in characters.
const AILimit = 400

// Engine dispatches chat events. Its fields must not be modified once
// dispatching begins. A nil field disables the path that uses it.
type Engine struct {
	// Prefix is the command prefix.
	Prefix string
	// AIPrefix is the case-insensitive prefix of AI questions.
	AIPrefix string
	// Askers is the set of logins allowed to ask AI questions, lowercased.
	Askers map[string]bool
	// Completer answers AI questions.
	Completer Completer
	// Static is the static command table.
	Static *command.Registry
	// Moderator runs moderation actions.
	Moderator command.Moderator
	// Store holds persisted commands.
	Store Finder
}

var tracer = otel.Tracer("github.com/profprotonn/protonbot/dispatch")

// Handle routes an event to its handler and returns the reply to send.
// The boolean result reports whether there is a reply at all.
func (e *Engine) Handle(ctx context.Context, ev *Event) (Reply, bool) {
	ctx, span := tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("channel", ev.Channel),
			attribute.String("trigger", ev.Trigger),
		),
	)
	defer span.End()
	r, ok := e.handle(ctx, ev)
	span.SetAttributes(attribute.String("kind", string(r.Kind)))
	if r.Err != nil && !errors.Is(r.Err, command.ErrUsage) {
		span.RecordError(r.Err)
		span.SetStatus(codes.Error, r.Err.Error())
	}
	return r, ok
}

func (e *Engine) handle(ctx context.Context, ev *Event) (Reply, bool) {
	if ev.Self {
		return Reply{}, false
	}
	if q, ok := e.question(ev); ok {
		return e.ask(ctx, ev, q)
	}
	if ev.Trigger == "" {
		return Reply{}, false
	}
	if ev.Moderator || ev.Broadcaster {
		if a := command.Resolve(ev.Trigger); a != nil && e.Moderator != nil {
			return e.moderate(ctx, ev, a), true
		}
	}
	if s, ok := e.Static.Lookup(ev.Trigger); ok {
		return e.reply(ev, KindStatic, "@%s %s", ev.User, s), true
	}
	return e.custom(ctx, ev)
}

// question extracts the AI question from an event if the event is one.
func (e *Engine) question(ev *Event) (string, bool) {
	if e.Completer == nil || e.AIPrefix == "" || !e.Askers[strings.ToLower(ev.Login)] {
		return "", false
	}
	if len(ev.Text) < len(e.AIPrefix) || !strings.EqualFold(ev.Text[:len(e.AIPrefix)], e.AIPrefix) {
		return "", false
	}
	return strings.TrimSpace(ev.Text[len(e.AIPrefix):]), true
}

func (e *Engine) ask(ctx context.Context, ev *Event, q string) (Reply, bool) {
	if q == "" {
		return Reply{}, false
	}
	log := slog.With(slog.String("channel", ev.Channel), slog.String("user", ev.Login))
	log.InfoContext(ctx, "question", slog.String("text", q))
	a, err := e.Completer.Complete(ctx, complete.Prompt(q))
	if err == nil && strings.TrimSpace(a) == "" {
		err = complete.ErrEmpty
	}
	if err != nil {
		log.ErrorContext(ctx, "couldn't answer question", slog.Any("err", err))
		r := e.reply(ev, KindAI, "@%s, Failed to get a response.", ev.User)
		r.Err = err
		return r, true
	}
	r := e.reply(ev, KindAI, "@%s, %s", ev.User, a)
	r.Sent.Text = message.Truncate(r.Sent.Text, AILimit)
	return r, true
}

func (e *Engine) moderate(ctx context.Context, ev *Event, a *command.Action) Reply {
	if a.RequiresBroadcaster && !ev.Broadcaster {
		r := e.reply(ev, KindModeration, "@%s Only the broadcaster can use %s%s.", ev.User, e.Prefix, a.Name)
		r.Name = a.Name
		return r
	}
	call := command.Invocation{
		Channel: command.Target{Name: store.Channel(ev.Channel), ID: ev.RoomID},
		User:    ev.User,
		UserID:  ev.UserID,
		Prefix:  e.Prefix,
		Name:    a.Name,
		Args:    ev.Args,
	}
	text, err := a.Exec(ctx, e.Moderator, &call)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "moderation", slog.String("action", a.Name), slog.String("channel", ev.Channel), slog.String("user", ev.Login), slog.Any("args", ev.Args))
	case errors.Is(err, command.ErrUsage):
		slog.DebugContext(ctx, "moderation usage", slog.String("action", a.Name), slog.Any("args", ev.Args))
	default:
		slog.ErrorContext(ctx, "moderation failed", slog.String("action", a.Name), slog.String("channel", ev.Channel), slog.Any("err", err))
	}
	r := e.reply(ev, KindModeration, "%s", text)
	r.Name, r.Err = a.Name, err
	return r
}

func (e *Engine) custom(ctx context.Context, ev *Event) (Reply, bool) {
	if e.Store == nil {
		return Reply{}, false
	}
	c, err := e.Store.FindOne(ctx, ev.Channel, ev.Trigger)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Reply{}, false
	case err != nil:
		// Lookup failures are logged but unanswered, the same as an unknown
		// command from the user's view.
		slog.ErrorContext(ctx, "couldn't find command", slog.String("channel", ev.Channel), slog.String("trigger", ev.Trigger), slog.Any("err", err))
		return Reply{}, false
	}
	if c.RequiresMod && !ev.Moderator && !ev.Broadcaster {
		return Reply{}, false
	}
	r := e.reply(ev, KindCustom, "@%s %s", ev.User, c.Response)
	r.Name = c.Trigger
	return r, true
}

// reply builds a reply to an event.
func (e *Engine) reply(ev *Event, kind Kind, f string, args ...any) Reply {
	text := strings.TrimSpace(message.OneLine(fmt.Sprintf(f, args...)))
	r := Reply{
		Kind: kind,
		Name: ev.Trigger,
		Sent: message.Sent{To: ev.Channel, Text: message.Truncate(text, message.Limit)},
	}
	return r
}

// Parse splits command-shaped text into a normalized trigger and arguments.
// The result is ok only if text starts with prefix immediately followed by a
// command name.
func Parse(prefix, text string) (trigger string, args []string, ok bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	rest := text[len(prefix):]
	if rest == "" || rest[0] == ' ' {
		return "", nil, false
	}
	f := strings.Fields(rest)
	if len(f) == 0 {
		return "", nil, false
	}
	return store.Normalize(f[0]), f[1:], true
}

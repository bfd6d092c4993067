// Package eventsub receives EventSub notifications over a WebSocket session.
package eventsub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"
)

// DefaultURL is the Twitch EventSub WebSocket endpoint.
const DefaultURL = "wss://eventsub.wss.twitch.tv/ws"

// welcomeTimeout bounds the wait for the welcome message after dialing.
const welcomeTimeout = 10 * time.Second

// Session is an EventSub WebSocket connection.
type Session struct {
	conn *websocket.Conn
	id   string
	// timeout is the longest silence allowed between messages, derived from
	// the session keepalive.
	timeout time.Duration
}

// Connect connects to the Twitch EventSub server and waits for its welcome.
// If the HTTP client is nil, [http.DefaultClient] is used instead.
// keepalive is the interval in seconds to request keepalive messages.
// If zero, the Twitch default is used.
// addr may be a reconnect URL given by a previous EventSub connection.
// If empty, DefaultURL is used.
func Connect(ctx context.Context, client *http.Client, keepalive int, addr string) (*Session, error) {
	u, err := dialURL(addr, keepalive)
	if err != nil {
		return nil, err
	}
	var opts websocket.DialOptions
	opts.HTTPClient = client
	slog.DebugContext(ctx, "dial EventSub", slog.String("url", u))
	conn, resp, err := websocket.Dial(ctx, u, &opts)
	if err != nil {
		if resp != nil && resp.Body != nil {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("couldn't connect to EventSub: %w (%s)", err, b)
		}
		return nil, fmt.Errorf("couldn't connect to EventSub: %w", err)
	}
	s := &Session{conn: conn, timeout: welcomeTimeout}
	msg, err := s.read(ctx)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("couldn't receive welcome: %w", err)
	}
	if msg.Metadata.Type != "session_welcome" {
		conn.CloseNow()
		return nil, fmt.Errorf("invalid welcome message with type %q", msg.Metadata.Type)
	}
	s.id = msg.Payload.Session.ID
	// Twitch may be a little late with keepalives, so allow some slack.
	s.timeout = time.Duration(msg.Payload.Session.Keepalive+2) * time.Second
	slog.InfoContext(ctx, "EventSub session", slog.String("id", s.id), slog.Duration("timeout", s.timeout))
	return s, nil
}

// dialURL builds the URL to dial with an optional keepalive request.
func dialURL(addr string, keepalive int) (string, error) {
	if addr == "" {
		addr = DefaultURL
	}
	if keepalive == 0 {
		return addr, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("couldn't parse EventSub URL: %w", err)
	}
	q := u.Query()
	q.Set("keepalive_timeout_seconds", strconv.Itoa(keepalive))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// read reads and decodes one message, failing if none arrives before the
// session's timeout.
func (s *Session) read(ctx context.Context) (*message, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, b, err := s.conn.Read(tctx)
	if err != nil {
		return nil, err
	}
	var msg message
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, fmt.Errorf("couldn't decode message %q: %w", b, err)
	}
	return &msg, nil
}

// ID returns the EventSub session ID.
func (s *Session) ID() string {
	return s.id
}

// Recv gets the next notification.
// Keepalive messages are handled transparently.
// A reconnect request gives an error of type [*ReconnectError], and a
// revoked subscription gives an error of type [*RevocationError]. The
// session remains usable after either.
//
// Note that the context becoming done during a call to Recv will cause the
// WebSocket connection to close as well.
func (s *Session) Recv(ctx context.Context) (*Event, error) {
	for {
		msg, err := s.read(ctx)
		if err != nil {
			return nil, err
		}
		log := slog.With(slog.String("id", msg.Metadata.ID), slog.String("type", msg.Metadata.Type))
		switch msg.Metadata.Type {
		case "notification":
			log.DebugContext(ctx, "EventSub message", slog.String("subscription_type", msg.Metadata.SubscriptionType))
			return &Event{Subscription: msg.Payload.Subscription, Event: msg.Payload.Event}, nil
		case "session_keepalive":
			log.DebugContext(ctx, "EventSub message")
		case "session_reconnect":
			log.DebugContext(ctx, "EventSub message")
			ses := msg.Payload.Session
			return nil, &ReconnectError{Session: ses.ID, ReconnectURL: ses.Reconnect, Connected: ses.Connected}
		case "revocation":
			log.DebugContext(ctx, "EventSub message", slog.String("subscription_type", msg.Metadata.SubscriptionType))
			sub := msg.Payload.Subscription
			return nil, &RevocationError{
				Subscription: sub.ID,
				Status:       sub.Status,
				Type:         sub.Type,
				Version:      sub.Version,
				Created:      sub.Created,
			}
		default:
			log.WarnContext(ctx, "unknown EventSub message")
		}
	}
}

// Reconnect opens the session named by a reconnect message and closes s once
// the new session is welcomed. Subscriptions carry over to the new session.
// If the reconnect fails, s is left open.
func (s *Session) Reconnect(ctx context.Context, client *http.Client, r *ReconnectError) (*Session, error) {
	n, err := Connect(ctx, client, 0, r.ReconnectURL)
	if err != nil {
		return nil, err
	}
	s.conn.Close(websocket.StatusNormalClosure, "reconnect")
	return n, nil
}

// Close ends the WebSocket session.
func (s *Session) Close() error {
	return s.conn.CloseNow()
}

// ReconnectError is an error representing a WebSocket reconnect message.
type ReconnectError struct {
	// Session is the session ID of the reconnecting session.
	Session string `json:"id"`
	// ReconnectURL is the URL sent by EventSub to reconnect.
	ReconnectURL string `json:"reconnect_url"`
	// Connected is the time at which the connection was originally created
	// as an RFC3339Nano string.
	Connected string `json:"connected_at"`
}

func (err *ReconnectError) Error() string {
	return fmt.Sprintf("reconnect session %s created %s", err.Session, err.Connected)
}

// RevocationError is an error representing a WebSocket revocation message.
type RevocationError struct {
	// Subscription is the subscription ID of the revoked subscription.
	Subscription string `json:"id"`
	// Status is the reason for the revocation.
	Status string `json:"status"`
	// Type is the subscription type.
	Type string `json:"type"`
	// Version is the version of the subscription type.
	Version string `json:"version"`
	// Created is the time at which the subscription was originally created
	// as an RFC3339Nano string.
	Created string `json:"created_at"`
}

func (err *RevocationError) Error() string {
	return fmt.Sprintf("%s/%s subscription %s revoked: %s", err.Type, err.Version, err.Subscription, err.Status)
}

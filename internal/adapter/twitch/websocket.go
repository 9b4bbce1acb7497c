package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/correlation"
)

const (
	defaultKeepalive    = 10 * time.Second
	keepaliveGrace      = 5 * time.Second
	reconnectMinBackoff = time.Second
	reconnectMaxBackoff = 30 * time.Second
	dialTimeout         = 15 * time.Second
	handoverTimeout     = 10 * time.Second
)

type wsMessage struct {
	Metadata struct {
		MessageID        string `json:"message_id"`
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload struct {
		Session *struct {
			ID                      string `json:"id"`
			KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
			ReconnectURL            string `json:"reconnect_url"`
		} `json:"session"`
		Subscription *struct {
			Type   string `json:"type"`
			Status string `json:"status"`
		} `json:"subscription"`
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

type subscriptionCreator interface {
	CreateWebSocketSubscription(ctx context.Context, sub Subscription, sessionID string) error
}

// WebSocketSource receives EventSub notifications over the EventSub
// websocket. Lost sessions are redialed with capped exponential backoff;
// each loss is emitted as a DisconnectedEvent.
type WebSocketSource struct {
	url     string
	creator subscriptionCreator
	emit    func(domain.Event)
	dialer  *websocket.Dialer

	// OnSession runs after every fresh session welcome, before ConnectedEvent.
	OnSession func(ctx context.Context) error
	// OnReconnect observes every redial after a lost session.
	OnReconnect func(backoff time.Duration)

	mu        sync.Mutex
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewWebSocketSource(url string, creator subscriptionCreator, emit func(domain.Event)) *WebSocketSource {
	return &WebSocketSource{
		url:     url,
		creator: creator,
		emit:    emit,
		dialer:  &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
}

// Start runs the session loop in the background until Stop or ctx ends.
func (s *WebSocketSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("websocket source already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(runCtx)
	}()
	return nil
}

func (s *WebSocketSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("websocket source stop: %w", ctx.Err())
	}
}

func (s *WebSocketSource) Subscribe(ctx context.Context, sub Subscription) error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID == "" {
		return errors.New("no active EventSub websocket session")
	}
	return s.creator.CreateWebSocketSubscription(ctx, sub, sessionID)
}

func (s *WebSocketSource) run(ctx context.Context) {
	backoff := reconnectMinBackoff

	for {
		welcomed, err := s.session(ctx, s.url)
		s.setSession("")
		if ctx.Err() != nil {
			return
		}

		if welcomed {
			backoff = reconnectMinBackoff
		}
		slog.Warn("EventSub websocket session lost", "error", err, "retry_in", backoff)
		s.emit(domain.DisconnectedEvent{Reason: errString(err)})
		if s.OnReconnect != nil {
			s.OnReconnect(backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, reconnectMaxBackoff)
	}
}

// session serves one EventSub session until it is lost, following
// reconnect requests onto new connections. It reports whether the session
// was welcomed.
func (s *WebSocketSource) session(ctx context.Context, url string) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial eventsub websocket: %w", err)
	}
	stop := closeOnDone(ctx, conn)
	defer func() {
		stop()
		_ = conn.Close()
	}()

	keepalive := defaultKeepalive
	welcomed := false
	for {
		msg, err := readMessage(conn, keepalive+keepaliveGrace)
		if err != nil {
			return welcomed, err
		}

		switch msg.Metadata.MessageType {
		case "session_welcome":
			if msg.Payload.Session == nil {
				return welcomed, errors.New("session_welcome without session")
			}
			keepalive = keepaliveOf(msg, keepalive)
			welcomed = true
			s.setSession(msg.Payload.Session.ID)
			slog.Info("EventSub websocket session started", "session_id", msg.Payload.Session.ID)
			s.startSession(ctx)

		case "session_reconnect":
			if msg.Payload.Session == nil || msg.Payload.Session.ReconnectURL == "" {
				return welcomed, errors.New("session_reconnect without url")
			}
			next, nextKeepalive, err := s.handover(ctx, conn, msg.Payload.Session.ReconnectURL)
			if err != nil {
				return welcomed, err
			}
			stop()
			conn, keepalive = next, nextKeepalive
			stop = closeOnDone(ctx, conn)

		default:
			s.handle(msg)
		}
	}
}

// handover moves the session to reconnectURL. The old connection keeps
// delivering notifications until the new connection is welcomed and
// Twitch closes the old one.
func (s *WebSocketSource) handover(ctx context.Context, old *websocket.Conn, reconnectURL string) (*websocket.Conn, time.Duration, error) {
	slog.Info("EventSub websocket reconnect requested", "url", reconnectURL)

	moved := false
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			msg, err := readMessage(old, handoverTimeout)
			if err != nil {
				return
			}
			s.handle(msg)
		}
	}()
	defer func() {
		if moved {
			select {
			case <-drained:
			case <-time.After(handoverTimeout):
			case <-ctx.Done():
			}
		}
		_ = old.Close()
		<-drained
	}()

	conn, _, err := s.dialer.DialContext(ctx, reconnectURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("dial eventsub reconnect url: %w", err)
	}
	stopNew := closeOnDone(ctx, conn)
	defer stopNew()

	msg, err := readMessage(conn, handoverTimeout)
	if err == nil && (msg.Metadata.MessageType != "session_welcome" || msg.Payload.Session == nil) {
		err = fmt.Errorf("expected session_welcome, got %q", msg.Metadata.MessageType)
	}
	if err != nil {
		_ = conn.Close()
		return nil, 0, fmt.Errorf("reconnect welcome: %w", err)
	}

	moved = true
	s.setSession(msg.Payload.Session.ID)
	slog.Info("EventSub websocket session started", "session_id", msg.Payload.Session.ID, "resumed", true)
	return conn, keepaliveOf(msg, defaultKeepalive), nil
}

// handle processes messages that need no session state.
func (s *WebSocketSource) handle(msg wsMessage) {
	switch msg.Metadata.MessageType {
	case "session_keepalive":

	case "notification":
		event, err := Normalize(msg.Metadata.SubscriptionType, msg.Payload.Event, time.Now())
		if err != nil {
			slog.Warn("Dropping EventSub notification", "type", msg.Metadata.SubscriptionType, "message_id", msg.Metadata.MessageID, "error", err)
			return
		}
		s.emit(event)

	case "revocation":
		if msg.Payload.Subscription != nil {
			slog.Warn("EventSub subscription revoked", "type", msg.Payload.Subscription.Type, "status", msg.Payload.Subscription.Status)
		}

	default:
		slog.Debug("Unknown EventSub websocket message", "type", msg.Metadata.MessageType)
	}
}

func readMessage(conn *websocket.Conn, timeout time.Duration) (wsMessage, error) {
	var msg wsMessage
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return msg, err
	}
	if err := conn.ReadJSON(&msg); err != nil {
		return msg, fmt.Errorf("read eventsub websocket: %w", err)
	}
	return msg, nil
}

func keepaliveOf(msg wsMessage, fallback time.Duration) time.Duration {
	if msg.Payload.Session != nil && msg.Payload.Session.KeepaliveTimeoutSeconds > 0 {
		return time.Duration(msg.Payload.Session.KeepaliveTimeoutSeconds) * time.Second
	}
	return fallback
}

func closeOnDone(ctx context.Context, conn *websocket.Conn) func() bool {
	return context.AfterFunc(ctx, func() { _ = conn.Close() })
}

func (s *WebSocketSource) startSession(ctx context.Context) {
	ctx = correlation.WithID(ctx, correlation.NewID())
	if s.OnSession != nil {
		if err := s.OnSession(ctx); err != nil {
			slog.ErrorContext(ctx, "EventSub session setup failed", "error", err)
		}
	}
	s.emit(domain.ConnectedEvent{})
}

func (s *WebSocketSource) setSession(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}

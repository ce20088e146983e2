// Package realtime pushes live operational state to dashboard clients over
// websockets. Clients authenticate with a bearer token, subscribe to
// (topic, params) pairs and receive the current state plus every later event
// the access policy lets them see.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/opsbridge/control-service/internal/core/events"
	"github.com/opsbridge/control-service/internal/pkg/auth"
	"github.com/opsbridge/control-service/internal/pkg/clock"
)

const (
	// DefaultIdleTimeout closes connections with no inbound traffic.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultSendBuffer is the per-connection outbound queue length.
	DefaultSendBuffer = 64

	maxMessageSize = 64 * 1024
	writeWait      = 10 * time.Second
)

// StateSource returns the current snapshot for a subscription. The bool is
// false when nothing is available for params.
type StateSource interface {
	State(ctx context.Context, params events.Params) (interface{}, bool)
}

// StateFunc adapts a function to StateSource.
type StateFunc func(ctx context.Context, params events.Params) (interface{}, bool)

// State implements StateSource.
func (f StateFunc) State(ctx context.Context, params events.Params) (interface{}, bool) {
	return f(ctx, params)
}

// Config holds the configuration for the broker.
type Config struct {
	Verifier       auth.Verifier
	Policy         Policy
	Audit          *AuditLog // optional
	Clock          clock.Clock
	IdleTimeout    time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

// Broker accepts dashboard connections and fans events out to them.
type Broker struct {
	verifier    auth.Verifier
	policy      Policy
	audit       *AuditLog
	clock       clock.Clock
	idleTimeout time.Duration
	sendBuffer  int
	upgrader    websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	sourcesMu sync.RWMutex
	sources   map[string]StateSource
}

// NewBroker creates a new broker.
func NewBroker(cfg *Config) (*Broker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}

	b := &Broker{
		verifier:    cfg.Verifier,
		policy:      cfg.Policy,
		audit:       cfg.Audit,
		clock:       cfg.Clock,
		idleTimeout: cfg.IdleTimeout,
		sendBuffer:  cfg.SendBuffer,
		clients:     make(map[string]*client),
		sources:     make(map[string]StateSource),
	}
	if b.policy == nil {
		b.policy = TopicPolicy{}
	}
	if b.clock == nil {
		b.clock = clock.SystemUTC{}
	}
	if b.idleTimeout <= 0 {
		b.idleTimeout = DefaultIdleTimeout
	}
	if b.sendBuffer <= 0 {
		b.sendBuffer = DefaultSendBuffer
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return b, nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[strings.TrimRight(origin, "/")]
	}
}

// RegisterStateSource sets the snapshot provider for a topic.
func (b *Broker) RegisterStateSource(topic string, source StateSource) {
	b.sourcesMu.Lock()
	b.sources[topic] = source
	b.sourcesMu.Unlock()
}

func (b *Broker) stateSource(topic string) StateSource {
	b.sourcesMu.RLock()
	defer b.sourcesMu.RUnlock()
	return b.sources[topic]
}

// ConnectedClients returns the number of open connections.
func (b *Broker) ConnectedClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// The token is read from the token query parameter.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		b.audit.Record(AuditAuthFailed, nil, map[string]interface{}{"reason": "missing token"})
		closeConn(conn, CloseMissingToken, "authentication required")
		return
	}
	claims, err := b.verifier.Verify(token)
	if err != nil {
		b.audit.Record(AuditAuthFailed, nil, map[string]interface{}{"reason": err.Error()})
		closeConn(conn, CloseInvalidToken, "invalid token")
		return
	}

	c := &client{
		broker: b,
		conn:   conn,
		principal: &Principal{
			ClientID:       uuid.NewString(),
			UserID:         claims.UserID,
			OrganizationID: claims.OrganizationID,
			Role:           claims.Role,
		},
		send:          make(chan []byte, b.sendBuffer),
		subscriptions: make(map[string]subscription),
	}
	c.touch(b.clock.NowUTC())

	b.mu.Lock()
	b.clients[c.principal.ClientID] = c
	b.mu.Unlock()

	log.Info().
		Str("client_id", c.principal.ClientID).
		Str("user_id", c.principal.UserID).
		Str("organization_id", c.principal.OrganizationID).
		Msg("realtime client connected")
	b.audit.Record(AuditConnection, c.principal, nil)

	go c.writePump()
	c.deliver(connectedEnvelope(c.principal.ClientID, b.clock.NowUTC()))
	c.readPump(r.Context())
}

// PublishEvent delivers data to every connection subscribed to exactly
// (topic, params). Access is re-checked for each recipient.
func (b *Broker) PublishEvent(topic string, params events.Params, data interface{}) int {
	key := subscriptionKey(topic, params)
	payload, err := encode(eventEnvelope(topic, params, data, b.clock.NowUTC()))
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to encode realtime event")
		return 0
	}

	delivered := 0
	for _, c := range b.snapshot() {
		if !c.subscribed(key) {
			continue
		}
		if !b.policy.Allow(c.principal, topic, params) {
			continue
		}
		if c.enqueue(payload) {
			delivered++
		}
	}
	return delivered
}

// SweepIdle closes connections idle longer than the idle timeout and
// returns how many were closed.
func (b *Broker) SweepIdle() int {
	now := b.clock.NowUTC()
	closed := 0
	for _, c := range b.snapshot() {
		if now.Sub(c.lastSeen()) <= b.idleTimeout {
			continue
		}
		log.Info().Str("client_id", c.principal.ClientID).Msg("closing inactive realtime client")
		b.audit.Record(AuditTimeout, c.principal, nil)
		c.close(CloseInactivity, "inactive")
		closed++
	}
	return closed
}

// Run sweeps idle connections every interval until ctx is done.
func (b *Broker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.SweepIdle(); n > 0 {
				log.Debug().Int("closed", n).Msg("swept idle realtime clients")
			}
		}
	}
}

// Shutdown closes every connection.
func (b *Broker) Shutdown() {
	for _, c := range b.snapshot() {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (b *Broker) snapshot() []*client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		out = append(out, c)
	}
	return out
}

func (b *Broker) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c.principal.ClientID)
	b.mu.Unlock()
}

func (b *Broker) handle(ctx context.Context, c *client, raw []byte) {
	now := b.clock.NowUTC()
	c.touch(now)

	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.deliver(errorEnvelope("invalid message format", now))
		return
	}

	switch msg.Type {
	case MessageSubscribe:
		b.subscribe(ctx, c, &msg)
	case MessageUnsubscribe:
		b.unsubscribe(c, &msg)
	case MessagePing:
		c.deliver(pongEnvelope(now))
	default:
		c.deliver(errorEnvelope(fmt.Sprintf("unknown message type: %s", msg.Type), now))
	}
}

func (b *Broker) subscribe(ctx context.Context, c *client, msg *Inbound) {
	now := b.clock.NowUTC()
	if msg.Topic == "" {
		c.deliver(errorEnvelope("topic is required", now))
		return
	}
	params := msg.TopicParams()
	if !b.policy.Allow(c.principal, msg.Topic, params) {
		deny := errorEnvelope("access denied", now)
		deny.Topic = msg.Topic
		c.deliver(deny)
		return
	}

	c.addSubscription(subscriptionKey(msg.Topic, params), subscription{topic: msg.Topic, params: params})
	b.audit.Record(AuditSubscribe, c.principal, map[string]interface{}{"topic": msg.Topic, "params": params})
	c.deliver(subscriptionEnvelope(MessageSubscribed, msg.Topic, params, now))

	if source := b.stateSource(msg.Topic); source != nil {
		if state, ok := source.State(ctx, params); ok {
			c.deliver(stateEnvelope(msg.Topic, params, state, b.clock.NowUTC()))
		}
	}
}

func (b *Broker) unsubscribe(c *client, msg *Inbound) {
	params := msg.TopicParams()
	c.removeSubscription(subscriptionKey(msg.Topic, params))
	b.audit.Record(AuditUnsubscribe, c.principal, map[string]interface{}{"topic": msg.Topic})
	c.deliver(subscriptionEnvelope(MessageUnsubscribed, msg.Topic, params, b.clock.NowUTC()))
}

type subscription struct {
	topic  string
	params events.Params
}

// client is one dashboard connection. Outbound frames go through send and
// are written by writePump only.
type client struct {
	broker    *Broker
	conn      *websocket.Conn
	principal *Principal
	send      chan []byte

	mu            sync.Mutex
	subscriptions map[string]subscription
	lastActivity  time.Time
	closed        bool
	closeOnce     sync.Once
}

func (c *client) touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

func (c *client) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *client) addSubscription(key string, s subscription) {
	c.mu.Lock()
	c.subscriptions[key] = s
	c.mu.Unlock()
}

func (c *client) removeSubscription(key string) {
	c.mu.Lock()
	delete(c.subscriptions, key)
	c.mu.Unlock()
}

func (c *client) subscribed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[key]
	return ok
}

// enqueue queues a frame without blocking. A full queue closes the client.
func (c *client) enqueue(payload []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	select {
	case c.send <- payload:
		c.mu.Unlock()
		return true
	default:
		c.mu.Unlock()
		log.Warn().Str("client_id", c.principal.ClientID).Msg("realtime client too slow, disconnecting")
		c.close(CloseInternalError, "send queue full")
		return false
	}
}

func (c *client) deliver(e *Envelope) {
	payload, err := encode(e)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode realtime message")
		return
	}
	c.enqueue(payload)
}

// close sends a close frame with code and tears the connection down once.
func (c *client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		c.broker.remove(c)
		closeConn(c.conn, code, reason)
	})
}

func (c *client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.broker.audit.Record(AuditError, c.principal, map[string]interface{}{"error": err.Error()})
			}
			break
		}
		c.broker.handle(ctx, c, raw)
	}

	log.Info().Str("client_id", c.principal.ClientID).Msg("realtime client disconnected")
	c.broker.audit.Record(AuditDisconnection, c.principal, nil)
	c.close(websocket.CloseNormalClosure, "")
}

func (c *client) writePump() {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Debug().Err(err).Str("client_id", c.principal.ClientID).Msg("realtime write failed")
			c.close(CloseInternalError, "write failed")
			return
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cg-del/filiup/quiz_client/auth"
	"github.com/cg-del/filiup/quiz_client/config"
	"github.com/cg-del/filiup/shared"
)

// Handler is a local observer invoked for every inbound notification.
type Handler func(shared.NotificationMessage)

// Channel maintains one long-lived broker connection for the student's
// session: a single logical subscription on the per-student queue, plus
// outbound presence announcements. One instance is constructed per owner
// (whichever view holds the active quiz session) and torn down with it.
type Channel struct {
	cfg    config.RabbitConfig
	tokens auth.TokenProvider
	log    *slog.Logger

	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	studentID    string
	consumerTag  string
	connected    bool
	reconnecting bool
	closed       bool

	hmu      sync.RWMutex
	handlers map[string]Handler
}

// NewChannel builds a disconnected channel. Connect must be called before any
// notifications are delivered.
func NewChannel(cfg config.RabbitConfig, tokens auth.TokenProvider, log *slog.Logger) *Channel {
	return &Channel{
		cfg:      cfg,
		tokens:   tokens,
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// Connect dials the broker, establishes the per-student subscription and
// announces the session. It is idempotent while connected. A missing or
// expired credential fails immediately, without any network attempt.
func (c *Channel) Connect(ctx context.Context, studentID string) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}
	if err := auth.CheckToken(token, time.Now()); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	// an in-flight redial owns the connection; dialing a second one here
	// would leave two live connections
	if c.connected || c.reconnecting {
		return nil
	}

	conn, err := c.dial(ctx, token)
	if err != nil {
		return err
	}

	c.conn = conn
	c.studentID = studentID
	if err := c.subscribeLocked(); err != nil {
		conn.Close()
		c.conn = nil
		return err
	}
	c.connected = true

	go c.watchClose(conn)

	c.log.Info("notification channel connected", "studentId", studentID)
	return nil
}

// dial performs the handshake inside the configured bounded wait. The bearer
// token is presented as the SASL password; the broker validates it.
func (c *Channel) dial(ctx context.Context, token string) (*amqp.Connection, error) {
	type dialResult struct {
		conn *amqp.Connection
		err  error
	}

	done := make(chan dialResult, 1)
	go func() {
		conn, err := amqp.DialConfig(c.cfg.URL(), amqp.Config{
			SASL: []amqp.Authentication{
				&amqp.PlainAuth{Username: c.cfg.User, Password: token},
			},
			Dial:      amqp.DefaultDial(c.cfg.ConnectTimeout),
			Heartbeat: 10 * time.Second,
		})
		done <- dialResult{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		// the dial goroutine will close the connection if it ever lands
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %v", ErrConnectTimeout, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, classifyDialError(r.err)
		}
		return r.conn, nil
	}
}

// subscribeLocked (re)establishes everything scoped to a live connection:
// channel, exchanges, the per-student queue, the consumer, and the joined
// announcement. It runs on every entry into the connected state, including
// redial-loop reconnects. Caller holds c.mu.
func (c *Channel) subscribeLocked() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	for _, exchange := range []string{shared.NotificationExchange, shared.SessionExchange} {
		if err := ch.ExchangeDeclare(
			exchange,
			"topic",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			ch.Close()
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	queueName := shared.StudentQueueName(c.studentID)
	queue, err := ch.QueueDeclare(
		queueName,
		false, // durable
		true,  // auto delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	if err := ch.QueueBind(
		queue.Name,
		shared.StudentRoutingKey(c.studentID),
		shared.NotificationExchange,
		false,
		nil,
	); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue %s: %w", queue.Name, err)
	}

	c.consumerTag = fmt.Sprintf("notify_%s_%s", c.studentID, uuid.NewString()[:8])
	msgs, err := ch.Consume(
		queue.Name,
		c.consumerTag,
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", queue.Name, err)
	}

	c.ch = ch

	go c.dispatch(msgs)

	if err := c.publishPresenceLocked(shared.SessionJoinedKey); err != nil {
		c.log.Warn("joined announcement failed", "studentId", c.studentID, "err", err)
	}

	return nil
}

// dispatch delivers inbound messages to all registered handlers. Payloads
// that fail to parse into a known notification kind are logged and dropped
// here, at the boundary.
func (c *Channel) dispatch(msgs <-chan amqp.Delivery) {
	for d := range msgs {
		msg, err := shared.ParseNotification(d.Body)
		if err != nil {
			c.log.Warn("dropping notification", "err", err)
			continue
		}
		c.fanout(msg)
	}
}

// fanout invokes every handler on a snapshot of the registry. A panicking
// handler must not prevent delivery to the others.
func (c *Channel) fanout(msg shared.NotificationMessage) {
	c.hmu.RLock()
	snapshot := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		snapshot = append(snapshot, h)
	}
	c.hmu.RUnlock()

	for _, h := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("notification handler panicked", "type", msg.Type, "panic", r)
				}
			}()
			h(msg)
		}()
	}
}

// watchClose redials on unexpected connection drops at the fixed reconnect
// interval, re-running the full subscription setup on every reentry into the
// connected state.
func (c *Channel) watchClose(conn *amqp.Connection) {
	amqpErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if amqpErr == nil {
		// deliberate teardown
		return
	}
	c.log.Warn("notification channel dropped", "err", amqpErr)

	c.mu.Lock()
	c.connected = false
	c.reconnecting = true
	c.mu.Unlock()

	for {
		time.Sleep(c.cfg.ReconnectInterval)

		c.mu.Lock()
		if c.closed {
			c.reconnecting = false
			c.mu.Unlock()
			return
		}
		token, err := c.tokens.Token()
		if err != nil {
			c.reconnecting = false
			c.mu.Unlock()
			c.log.Warn("reconnect aborted, no credential", "err", err)
			return
		}
		newConn, err := c.dial(context.Background(), token)
		if err != nil {
			c.mu.Unlock()
			c.log.Warn("reconnect failed", "err", err)
			continue
		}
		c.conn = newConn
		if err := c.subscribeLocked(); err != nil {
			newConn.Close()
			c.conn = nil
			c.mu.Unlock()
			c.log.Warn("resubscribe failed", "err", err)
			continue
		}
		c.connected = true
		c.reconnecting = false
		c.mu.Unlock()

		go c.watchClose(newConn)
		c.log.Info("notification channel reconnected", "studentId", c.studentID)
		return
	}
}

// RegisterHandler adds a local observer and returns its registration id.
func (c *Channel) RegisterHandler(h Handler) string {
	id := uuid.NewString()
	c.hmu.Lock()
	c.handlers[id] = h
	c.hmu.Unlock()
	return id
}

// UnregisterHandler removes a previously registered observer.
func (c *Channel) UnregisterHandler(id string) {
	c.hmu.Lock()
	delete(c.handlers, id)
	c.hmu.Unlock()
}

// SendHeartbeat publishes a best-effort liveness ping. No-op when the channel
// is not connected; failures are logged and swallowed.
func (c *Channel) SendHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	if err := c.publishPresenceLocked(shared.SessionHeartbeatKey); err != nil {
		c.log.Warn("heartbeat failed", "studentId", c.studentID, "err", err)
	}
}

// IsConnected reports the current connection status.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect tears the channel down: best-effort leaving announcement,
// consumer cancel, transport close, identity cleared. Every step's failure is
// logged and swallowed so teardown always completes. Never returns an error.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.connected {
		if err := c.publishPresenceLocked(shared.SessionLeavingKey); err != nil {
			c.log.Warn("leaving announcement failed", "err", err)
		}
	}
	if c.ch != nil {
		if err := c.ch.Cancel(c.consumerTag, false); err != nil {
			c.log.Warn("consumer cancel failed", "err", err)
		}
		if err := c.ch.Close(); err != nil {
			c.log.Warn("channel close failed", "err", err)
		}
		c.ch = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Warn("connection close failed", "err", err)
		}
		c.conn = nil
	}
	c.connected = false
	c.studentID = ""
	c.log.Info("notification channel disconnected")
}

// publishPresenceLocked sends one presence announcement. Caller holds c.mu.
func (c *Channel) publishPresenceLocked(routingKey string) error {
	if c.ch == nil {
		return fmt.Errorf("no open channel")
	}
	body, err := json.Marshal(shared.PresenceAnnouncement{
		StudentID: c.studentID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return c.ch.Publish(
		shared.SessionExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

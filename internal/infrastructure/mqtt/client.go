package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gree-bridge/internal/infrastructure/config"
)

// Client is the bridge's broker connection. It owns the retained
// greebridge/status topic, remembers subscriptions so they survive a
// reconnect, and keeps a count of outages for the status payload.
//
// All methods are safe for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	version string
	now     func() time.Time

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connMu     sync.RWMutex
	connected  bool
	lostAt     time.Time // zero while connected
	attempts   int       // reconnect attempts in the current outage
	reconnects int       // completed reconnects since Connect

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. Paho runs handlers on its own
// goroutines; a returned error is logged and the message is still acked.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and publishes "online" on StatusTopic. The first
// connection attempt is not retried: an unreachable broker is a startup
// error. Once connected, lost connections reconnect in the background.
// version is reported in every status payload.
func Connect(cfg config.MQTTConfig, version string) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID, version)

	c := newClient(cfg, version)
	c.options = opts

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting()
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

func newClient(cfg config.MQTTConfig, version string) *Client {
	return &Client{
		cfg:           cfg,
		version:       version,
		now:           time.Now,
		subscriptions: make(map[string]subscription),
	}
}

// brokerAddr is the host:port used in log lines.
func (c *Client) brokerAddr() string {
	return fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port)
}

func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	var outage time.Duration
	resumed := !c.lostAt.IsZero()
	if resumed {
		outage = c.now().Sub(c.lostAt)
		c.reconnects++
	}
	attempts, reconnects := c.attempts, c.reconnects
	c.lostAt = time.Time{}
	c.attempts = 0
	c.connMu.Unlock()

	restored := c.restoreSubscriptions()
	c.publishStatus(statusOnline, "")

	if resumed {
		if logger := c.getLogger(); logger != nil {
			logger.Info("MQTT reconnected",
				"broker", c.brokerAddr(),
				"outage", outage.Round(time.Millisecond).String(),
				"attempts", attempts,
				"reconnects", reconnects,
				"subscriptions_restored", restored,
			)
		}
	}

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.lostAt = c.now()
	c.attempts = 0
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost; device commands are paused until it returns",
			"broker", c.brokerAddr(),
			"error", err,
		)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) handleReconnecting() {
	c.connMu.Lock()
	c.attempts++
	attempt := c.attempts
	lostAt := c.lostAt
	c.connMu.Unlock()

	logger := c.getLogger()
	if logger == nil {
		return
	}
	args := []any{"broker", c.brokerAddr(), "attempt", attempt}
	if !lostAt.IsZero() {
		args = append(args, "down_for", c.now().Sub(lostAt).Round(time.Second).String())
	}
	logger.Info("MQTT reconnecting", args...)
}

// restoreSubscriptions re-subscribes every tracked topic and returns how
// many there were. Paho delivers the results asynchronously.
func (c *Client) restoreSubscriptions() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	return len(c.subscriptions)
}

// publishStatus sends a retained status message without waiting for the ack.
func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	return c.client.Publish(StatusTopic, 1, true, c.statusMessage(status, reason))
}

// Close publishes a graceful "offline" status and disconnects. It is safe
// to call on a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(statusOffline, reasonGraceful).WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Reconnects returns how many times the connection was lost and restored.
func (c *Client) Reconnects() int {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.reconnects
}

// SetOnConnect sets a callback run on the initial connect and every
// reconnect, after subscriptions are restored.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adds panic recovery and error logging to a handler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}

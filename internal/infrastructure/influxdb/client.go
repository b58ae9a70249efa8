package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gree-bridge/internal/infrastructure/config"
)

// Default timeouts and batch settings for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	defaultBatchSize      = 100
	defaultFlushSeconds   = 10

	millisecondsPerSecond = 1000
)

// pointWriter is the subset of api.WriteAPI the client depends on.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
	Errors() <-chan error
}

// Client writes climate telemetry to an InfluxDB v2 bucket.
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched by the underlying write API.
type Client struct {
	client influxdb2.Client
	writer pointWriter

	connected bool
	mu        sync.RWMutex

	onError func(err error)
}

// Connect establishes a connection to the InfluxDB server.
//
// The server is pinged before the write API is created, so a bridge
// configured with an unreachable InfluxDB fails at startup rather than
// silently dropping every sample.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushSeconds
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := newClient(client.WriteAPI(cfg.Org, cfg.Bucket))
	c.client = client
	return c, nil
}

// newClient wraps a writer and starts draining its error channel.
func newClient(w pointWriter) *Client {
	c := &Client{
		writer:    w,
		connected: true,
	}
	go c.handleWriteErrors(w.Errors())
	return c
}

// handleWriteErrors forwards async write errors to the callback.
func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes pending points and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if !wasConnected {
		return nil
	}

	if c.writer != nil {
		c.writer.Flush()
	}
	if c.client != nil {
		c.client.Close()
	}

	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.client == nil {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets a callback for async write errors.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush forces buffered points out. It is a no-op after Close.
func (c *Client) Flush() {
	if c.writer == nil || !c.IsConnected() {
		return
	}
	c.writer.Flush()
}

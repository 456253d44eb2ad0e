package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps go-redis with startup diagnostics.
type Client struct {
	*redis.Client
	log *zap.Logger
}

// NewClient builds the pooled client and probes the connection once.
// Startup proceeds even when the probe fails; individual commands carry
// their own timeouts and retries.
func NewClient(addr string, db int, log *zap.Logger) *Client {
	c := &Client{
		Client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DB:           db,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 5,
			MaxRetries:   3,
		}),
		log: log.Named("redis"),
	}
	c.probe()
	return c
}

func (c *Client) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	opts := c.Options()
	log := c.log.With(zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	start := time.Now()
	err := c.Ping(ctx).Err()
	rtt := time.Since(start)

	if err != nil {
		log.Warn("connection failed", zap.Error(err), zap.Duration("ping_rtt", rtt))
		return
	}
	log.Info("connection established", zap.Duration("ping_rtt", rtt))
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}

// Package redis backs the user service's short-lived state: rate-limit
// counters and revoked session ids. Every key lives under Namespace so the
// service can share a Redis database with its neighbours.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const Namespace = "user"

// Key joins parts under Namespace: Key("rl", "login") is "user:rl:login".
func Key(parts ...string) string {
	return Namespace + ":" + strings.Join(parts, ":")
}

const (
	dialTimeout  = 2 * time.Second
	ioTimeout    = 500 * time.Millisecond
	poolSize     = 20
	pingDeadline = 2 * time.Second
)

type Client struct {
	rdb  *goredis.Client
	addr string
}

// New builds a client with timeouts short enough that a slow Redis degrades
// rate limiting instead of stalling requests.
func New(addr, password string, db int) *Client {
	return &Client{
		addr: addr,
		rdb: goredis.NewClient(&goredis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			DialTimeout:  dialTimeout,
			ReadTimeout:  ioTimeout,
			WriteTimeout: ioTimeout,
			PoolSize:     poolSize,
		}),
	}
}

func (c *Client) Addr() string { return c.addr }

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingDeadline)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", c.addr, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

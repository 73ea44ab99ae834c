// Package delayscheduler converts a (event_id, retry_at) pair into a future
// wake-up on the delivery channel (spec component C4), using a redis key's
// expiration as the timer. Grounded on the go-redis v9 connection idiom
// shown in LerianStudio-midaz/common/mredis (lazy connect, singleton
// client), with the supervised reconnect loop shaped after the teacher's
// deleted escrow timer goroutine.
package delayscheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "webhook:retry:"

// minTTL is the floor the spec calls out: max(1 second, retry_at - now).
const minTTL = 1 * time.Second

// Connection is a thin singleton wrapper around a redis client, mirroring
// mredis.RedisConnection's lazy-connect shape.
type Connection struct {
	URL    string
	Logger *slog.Logger
	client *redis.Client
}

func (c *Connection) connect(ctx context.Context) error {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return fmt.Errorf("delayscheduler: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("delayscheduler: ping redis: %w", err)
	}
	c.client = client
	return nil
}

func (c *Connection) getClient(ctx context.Context) (*redis.Client, error) {
	if c.client == nil {
		if err := c.connect(ctx); err != nil {
			return nil, err
		}
	}
	return c.client, nil
}

// Scheduler arms and watches retry timers.
type Scheduler struct {
	conn   *Connection
	logger *slog.Logger
	db     int
}

// New builds a Scheduler against a redis connection URL (e.g.
// redis://host:6379/0). db is parsed from the URL's path component and used
// to build the keyspace-notification channel name.
func New(url string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		conn:   &Connection{URL: url, Logger: logger},
		logger: logger,
		db:     dbFromURL(url),
	}
}

func dbFromURL(url string) int {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return 0
	}
	return opts.DB
}

// Arm sets webhook:retry:{eventID} with an empty value and a TTL of
// max(1s, retryAt-now), rounded to whole seconds so the key is written with
// SET ... EX, per spec.md §4.4.
func (s *Scheduler) Arm(ctx context.Context, eventID string, retryAt time.Time) error {
	client, err := s.conn.getClient(ctx)
	if err != nil {
		return err
	}
	ttl := time.Until(retryAt)
	if ttl < minTTL {
		ttl = minTTL
	}
	ttl = ttl.Round(time.Second)
	return client.Set(ctx, keyPrefix+eventID, "", ttl).Err()
}

// Watch subscribes to the keyspace-expiration channel and pushes the parsed
// event id onto onExpire for every webhook:retry:* key that expires. It
// blocks until ctx is cancelled, reconnecting with a bounded 2s backoff on
// subscription or connection failure — losing a single expiry notification
// is tolerable; Recovery upper-bounds the loss (spec.md §4.4).
func (s *Scheduler) Watch(ctx context.Context, onExpire func(eventID string)) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", s.db)

	for {
		if ctx.Err() != nil {
			return
		}

		client, err := s.conn.getClient(ctx)
		if err != nil {
			s.logger.Error("delayscheduler: connect failed, retrying", "error", err)
			if !sleep(ctx, 2*time.Second) {
				return
			}
			continue
		}

		s.runPubSub(ctx, client, channel, onExpire)
		s.conn.client = nil // force reconnect on next loop iteration
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (s *Scheduler) runPubSub(ctx context.Context, client *redis.Client, channel string, onExpire func(eventID string)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("delayscheduler: recovered from panic in subscription loop", "panic", r)
		}
	}()

	sub := client.PSubscribe(ctx, channel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			eventID, matched := strings.CutPrefix(msg.Payload, keyPrefix)
			if !matched {
				continue // only keys with the reserved prefix are acted on
			}
			onExpire(eventID)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

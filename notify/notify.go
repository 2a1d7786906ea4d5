// Package notify publishes finished artifacts to Redis so a dashboard or
// another harness can follow a running batch.
//
// Each artifact is stored under r:<name>:i with a TTL and its name is
// published on the configured channel; subscribers fetch the body by key.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/thavlik/foldy-bench/artifact"
)

// DefaultChannel ...
const DefaultChannel = "foldy"

// DefaultTTL is how long a published artifact stays readable.
const DefaultTTL = time.Hour

// Notifier ...
type Notifier interface {
	Notify(ctx context.Context, name string, a *artifact.Artifact) error
}

// Message is what gets stored for each artifact.
type Message struct {
	Name     string             `json:"name"`
	Artifact *artifact.Artifact `json:"artifact"`
}

// Redis ...
type Redis struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

// NewRedis connects to addr and checks the connection.
func NewRedis(addr, channel string, ttl time.Duration) (*Redis, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})
	if _, err := client.Ping().Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return &Redis{client: client, channel: channel, ttl: ttl}, nil
}

// Key is where the artifact called name is stored.
func Key(name string) string {
	return fmt.Sprintf("r:%s:i", name)
}

// Notify ...
func (r *Redis) Notify(ctx context.Context, name string, a *artifact.Artifact) error {
	body, err := json.Marshal(&Message{Name: name, Artifact: a})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	p := r.client.WithContext(ctx).Pipeline()
	p.Set(Key(name), body, r.ttl)
	p.Publish(r.channel, name)
	if _, err := p.Exec(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close ...
func (r *Redis) Close() error {
	return r.client.Close()
}

// Multi fans out to several notifiers and returns the first error.
type Multi []Notifier

// Notify ...
func (m Multi) Notify(ctx context.Context, name string, a *artifact.Artifact) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, name, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

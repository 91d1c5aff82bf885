// Package cache carries lobby events to the historian over a Redis list.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// DefaultQueueName is the Redis list lobby events are pushed to.
const DefaultQueueName = "pugbot_events"

// Connect opens a client for addr and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher pushes lobby events onto a queue.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

func NewPublisher(rdb *redis.Client, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queue: queue}
}

// Publish serializes ev and RPushes it. Events without an id or timestamp get
// one here.
func (p *Publisher) Publish(ctx context.Context, ev models.LobbyEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// Queue is the list name events are pushed to.
func (p *Publisher) Queue() string {
	return p.queue
}

// Encode fills in missing ids and timestamps and marshals ev.
func Encode(ev models.LobbyEvent) ([]byte, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lobby event: %w", err)
	}
	return data, nil
}

// Decode parses a queued event. Events without a type or id are rejected.
func Decode(data []byte) (models.LobbyEvent, error) {
	var ev models.LobbyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.LobbyEvent{}, fmt.Errorf("invalid lobby event: %w", err)
	}
	if ev.Type == "" || ev.ID == uuid.Nil {
		return models.LobbyEvent{}, fmt.Errorf("invalid lobby event: missing id or type")
	}
	return ev, nil
}

// Queue pops raw events off a Redis list.
type Queue struct {
	rdb  *redis.Client
	name string
}

func NewQueue(rdb *redis.Client, name string) *Queue {
	if name == "" {
		name = DefaultQueueName
	}
	return &Queue{rdb: rdb, name: name}
}

// Pop blocks up to timeout for the next payload. It returns nil, nil when
// the queue stayed empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res[0] is the list name, res[1] the payload.
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Package queue implements the verification, delivery, and feedback
// queues on Redis: a ready list, a delayed sorted set for per-message
// send delays, and an in-flight sorted set giving at-least-once delivery
// with explicit per-message deletes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// MaxBatchSize is the largest number of messages one BatchSend call accepts.
	MaxBatchSize = 10

	// DefaultMaxDelaySeconds is the queue's cap on per-message delays.
	DefaultMaxDelaySeconds = 900

	defaultVisibility = time.Minute
)

// Message is a received queue message. Consumers must Delete it after
// processing; an undeleted message is redelivered once its visibility
// deadline passes.
type Message struct {
	ID   string
	Body []byte
}

// Outgoing is a message to enqueue with an optional delivery delay
type Outgoing struct {
	Body         []byte
	DelaySeconds int
}

// Queue is one named Redis-backed queue
type Queue struct {
	client          *redis.Client
	name            string
	maxDelaySeconds int
	visibility      time.Duration
}

// New creates a queue named name on the given Redis client
func New(client *redis.Client, name string, maxDelaySeconds int) *Queue {
	if maxDelaySeconds <= 0 {
		maxDelaySeconds = DefaultMaxDelaySeconds
	}
	return &Queue{
		client:          client,
		name:            name,
		maxDelaySeconds: maxDelaySeconds,
		visibility:      defaultVisibility,
	}
}

func (q *Queue) readyKey() string    { return "queue:" + q.name + ":ready" }
func (q *Queue) delayedKey() string  { return "queue:" + q.name + ":delayed" }
func (q *Queue) inflightKey() string { return "queue:" + q.name + ":inflight" }
func (q *Queue) msgKey(id string) string {
	return "queue:" + q.name + ":msg:" + id
}

// BatchSend enqueues up to MaxBatchSize messages in one call. Delays are
// capped at the queue maximum; a delayed message surfaces to consumers
// only after PromoteDue moves it to the ready list.
func (q *Queue) BatchSend(ctx context.Context, msgs []Outgoing) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds queue maximum %d", len(msgs), MaxBatchSize)
	}

	now := time.Now()
	pipe := q.client.TxPipeline()
	for _, m := range msgs {
		id := uuid.New().String()
		delay := m.DelaySeconds
		if delay > q.maxDelaySeconds {
			delay = q.maxDelaySeconds
		}

		pipe.Set(ctx, q.msgKey(id), m.Body, 0)
		if delay > 0 {
			due := now.Add(time.Duration(delay) * time.Second)
			pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(due.UnixMilli()), Member: id})
		} else {
			pipe.RPush(ctx, q.readyKey(), id)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch send to %s: %w", q.name, err)
	}
	return nil
}

// PromoteDue moves delayed messages whose due time has passed into the
// ready list. Returns how many were promoted.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.RPush(ctx, q.readyKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Receive pops up to max ready messages, placing each into the in-flight
// set with a visibility deadline. When wait is positive the call blocks
// up to that long for the first message.
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	if _, err := q.PromoteDue(ctx, time.Now(), int64(max)); err != nil {
		return nil, fmt.Errorf("promote due on %s: %w", q.name, err)
	}

	var ids []string
	if wait > 0 {
		res, err := q.client.BLPop(ctx, wait, q.readyKey()).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, res[1])
	}

	for len(ids) < max {
		id, err := q.client.LPop(ctx, q.readyKey()).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	deadline := time.Now().Add(q.visibility)
	msgs := make([]Message, 0, len(ids))
	for _, id := range ids {
		body, err := q.client.Get(ctx, q.msgKey(id)).Bytes()
		if err == redis.Nil {
			continue // body expired or deleted; drop the orphan id
		}
		if err != nil {
			return nil, err
		}
		if err := q.client.ZAdd(ctx, q.inflightKey(), redis.Z{
			Score:  float64(deadline.UnixMilli()),
			Member: id,
		}).Err(); err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{ID: id, Body: body})
	}
	return msgs, nil
}

// Delete acknowledges a processed message, removing it from in-flight
// tracking and deleting its body.
func (q *Queue) Delete(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), id)
	pipe.Del(ctx, q.msgKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueExpired returns in-flight messages whose visibility deadline
// passed to the ready list, re-delivering them to a consumer.
func (q *Queue) RequeueExpired(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey(), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey(), id)
		pipe.RPush(ctx, q.readyKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ApproxDepth returns the approximate number of messages waiting in the
// queue (ready plus delayed). Used by the backpressure gate.
func (q *Queue) ApproxDepth(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return ready.Val() + delayed.Val(), nil
}

// SendJSON marshals items and enqueues them in chunks of MaxBatchSize.
// Delays are taken per item via the delay callback.
func SendJSON[T any](ctx context.Context, q *Queue, items []T, delay func(T) int) error {
	for start := 0; start < len(items); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(items) {
			end = len(items)
		}

		batch := make([]Outgoing, 0, end-start)
		for _, item := range items[start:end] {
			body, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("marshal queue message: %w", err)
			}
			d := 0
			if delay != nil {
				d = delay(item)
			}
			batch = append(batch, Outgoing{Body: body, DelaySeconds: d})
		}

		if err := q.BatchSend(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

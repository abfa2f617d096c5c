package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, "test", 900), mr
}

func TestBatchSendAndReceive(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	msgs := []Outgoing{
		{Body: []byte(`{"n":1}`)},
		{Body: []byte(`{"n":2}`)},
		{Body: []byte(`{"n":3}`)},
	}
	if err := q.BatchSend(ctx, msgs); err != nil {
		t.Fatalf("BatchSend() error = %v", err)
	}

	got, err := q.Receive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("received %d messages, want 3", len(got))
	}
	if string(got[0].Body) != `{"n":1}` {
		t.Errorf("first body = %s, want FIFO order", got[0].Body)
	}
}

func TestBatchSendRejectsOversizedBatch(t *testing.T) {
	q, _ := setupQueue(t)

	msgs := make([]Outgoing, MaxBatchSize+1)
	for i := range msgs {
		msgs[i] = Outgoing{Body: []byte("x")}
	}
	if err := q.BatchSend(context.Background(), msgs); err == nil {
		t.Fatal("BatchSend() accepted oversized batch")
	}
}

func TestDelayedMessageNotVisibleUntilDue(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	if err := q.BatchSend(ctx, []Outgoing{{Body: []byte("later"), DelaySeconds: 300}}); err != nil {
		t.Fatalf("BatchSend() error = %v", err)
	}

	got, err := q.Receive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("delayed message visible immediately")
	}

	// Promoting with a future clock makes it visible.
	if _, err := q.PromoteDue(ctx, time.Now().Add(301*time.Second), 10); err != nil {
		t.Fatalf("PromoteDue() error = %v", err)
	}
	got, err = q.Receive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(got) != 1 || string(got[0].Body) != "later" {
		t.Fatalf("promoted message not received: %v", got)
	}
}

func TestDelayCappedAtQueueMaximum(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	if err := q.BatchSend(ctx, []Outgoing{{Body: []byte("capped"), DelaySeconds: 100000}}); err != nil {
		t.Fatalf("BatchSend() error = %v", err)
	}

	// Due within the 900s cap, not at 100000s.
	if _, err := q.PromoteDue(ctx, time.Now().Add(901*time.Second), 10); err != nil {
		t.Fatalf("PromoteDue() error = %v", err)
	}
	got, err := q.Receive(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatal("delay was not capped at queue maximum")
	}
}

func TestDeleteAcknowledgesMessage(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	if err := q.BatchSend(ctx, []Outgoing{{Body: []byte("once")}}); err != nil {
		t.Fatalf("BatchSend() error = %v", err)
	}

	got, err := q.Receive(ctx, 1, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("Receive() = %v, %v", got, err)
	}
	if err := q.Delete(ctx, got[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// Deleted message is never redelivered, even after its visibility expires.
	n, err := q.RequeueExpired(ctx, time.Now().Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("RequeueExpired() error = %v", err)
	}
	if n != 0 {
		t.Errorf("RequeueExpired() moved %d messages, want 0", n)
	}
}

func TestUnackedMessageRedelivered(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	if err := q.BatchSend(ctx, []Outgoing{{Body: []byte("retry-me")}}); err != nil {
		t.Fatalf("BatchSend() error = %v", err)
	}

	got, err := q.Receive(ctx, 1, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("Receive() = %v, %v", got, err)
	}

	// No Delete: after the visibility deadline the message comes back.
	n, err := q.RequeueExpired(ctx, time.Now().Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("RequeueExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("RequeueExpired() = %d, want 1", n)
	}

	again, err := q.Receive(ctx, 1, 0)
	if err != nil || len(again) != 1 {
		t.Fatalf("redelivery Receive() = %v, %v", again, err)
	}
	if string(again[0].Body) != "retry-me" {
		t.Errorf("redelivered body = %s", again[0].Body)
	}
}

func TestApproxDepthCountsReadyAndDelayed(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	msgs := []Outgoing{
		{Body: []byte("now")},
		{Body: []byte("later"), DelaySeconds: 300},
		{Body: []byte("latest"), DelaySeconds: 600},
	}
	if err := q.BatchSend(ctx, msgs); err != nil {
		t.Fatalf("BatchSend() error = %v", err)
	}

	depth, err := q.ApproxDepth(ctx)
	if err != nil {
		t.Fatalf("ApproxDepth() error = %v", err)
	}
	if depth != 3 {
		t.Errorf("ApproxDepth() = %d, want 3", depth)
	}
}

func TestSendJSONChunksLargeBatches(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	type item struct {
		N int `json:"n"`
	}
	items := make([]item, 25)
	for i := range items {
		items[i] = item{N: i}
	}

	if err := SendJSON(ctx, q, items, nil); err != nil {
		t.Fatalf("SendJSON() error = %v", err)
	}

	depth, err := q.ApproxDepth(ctx)
	if err != nil {
		t.Fatalf("ApproxDepth() error = %v", err)
	}
	if depth != 25 {
		t.Errorf("ApproxDepth() = %d, want 25", depth)
	}
}

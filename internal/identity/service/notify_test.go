package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Message
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

func TestNotifyQueueDeliversInOrder(t *testing.T) {
	sender := &captureSender{}
	q := NewNotifyQueue(sender, 10)
	q.Start(context.Background())

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, q.Enqueue(context.Background(), Message{
			Recipient: "+614", Body: body, Kind: "sms",
		}))
	}

	q.Stop()

	msgs := sender.messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "one", msgs[0].Body)
	require.Equal(t, "two", msgs[1].Body)
	require.Equal(t, "three", msgs[2].Body)
}

func TestNotifyQueueStopDrainsBacklog(t *testing.T) {
	sender := &captureSender{}
	q := NewNotifyQueue(sender, 10)

	// Enqueue before the worker starts so everything sits in the backlog.
	for range 5 {
		require.NoError(t, q.Enqueue(context.Background(), Message{Kind: "sms"}))
	}

	q.Start(context.Background())
	q.Stop()

	require.Len(t, sender.messages(), 5, "Stop must drain accepted messages")
}

func TestNotifyQueueBlocksWhenFull(t *testing.T) {
	q := NewNotifyQueue(&captureSender{}, 1)
	// No worker: the single slot fills and stays full.

	require.NoError(t, q.Enqueue(context.Background(), Message{Kind: "sms"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Message{Kind: "sms"})
	require.ErrorIs(t, err, context.DeadlineExceeded,
		"a full queue applies backpressure instead of dropping")
}

func TestNotifyQueueLogsSendFailures(t *testing.T) {
	failing := SenderFunc(func(context.Context, Message) error {
		return errors.New("gateway down")
	})
	q := NewNotifyQueue(failing, 10)
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), Message{Kind: "sms"}))

	// Delivery failure must not wedge the worker.
	require.NoError(t, q.Enqueue(context.Background(), Message{Kind: "sms"}))
	q.Stop()
}

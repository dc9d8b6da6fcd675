package service

import (
	"context"
	"sync"
	"time"

	"github.com/quorumsec/gatehouse/pkg/slogx"
)

// Message is a queued outbound notification.
type Message struct {
	Recipient string
	Body      string
	Kind      string // "sms" or "email"
}

// Sender delivers a single notification. Implementations talk to a gateway;
// LogSender is the development default.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	slogx.FromContext(ctx).Info("notification (log sender)",
		"kind", msg.Kind, "recipient", msg.Recipient, "body", msg.Body)
	return nil
}

const defaultQueueCapacity = 100

// NotifyQueue is a bounded in-process delivery queue with a single worker.
// Enqueue blocks when the queue is full, so a stalled gateway applies
// backpressure to producers instead of dropping messages.
type NotifyQueue struct {
	sender Sender
	ch     chan Message

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewNotifyQueue builds a queue with the given capacity. Zero or negative
// capacity falls back to the default.
func NewNotifyQueue(sender Sender, capacity int) *NotifyQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &NotifyQueue{
		sender: sender,
		ch:     make(chan Message, capacity),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the delivery worker. Safe to call once.
func (q *NotifyQueue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		go q.run(ctx)
	})
}

// Enqueue submits a message for delivery, blocking while the queue is full.
// It returns ctx.Err() if the context ends first.
func (q *NotifyQueue) Enqueue(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-q.stopCh:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains already queued messages and then stops the worker. It blocks
// until the worker has exited.
func (q *NotifyQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})
	<-q.doneCh
}

func (q *NotifyQueue) run(ctx context.Context) {
	defer close(q.doneCh)

	log := slogx.FromContext(ctx)
	for {
		select {
		case msg := <-q.ch:
			q.deliver(ctx, msg)
		case <-q.stopCh:
			// Drain whatever was accepted before Stop.
			for {
				select {
				case msg := <-q.ch:
					q.deliver(ctx, msg)
				default:
					log.Debug("notification queue stopped")
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (q *NotifyQueue) deliver(ctx context.Context, msg Message) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := q.sender.Send(sendCtx, msg); err != nil {
		slogx.FromContext(ctx).Error("notification delivery failed",
			"kind", msg.Kind, "recipient", msg.Recipient, "err", err)
	}
}

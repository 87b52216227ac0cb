package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/mizuki-commits/dashboard-template/domain"
)

// Message is a dequeued event. DecodeErr is set for payloads that are not a
// TodoistEvent; such messages should be deleted rather than retried.
type Message struct {
	ID         string
	PopReceipt string
	Event      domain.TodoistEvent
	DecodeErr  error
}

// EventQueue carries accepted webhook deliveries to the processor.
type EventQueue struct {
	queue *azqueue.QueueClient
}

func NewEventQueue(connStr, name string) (*EventQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &EventQueue{queue: q}, nil
}

func (q *EventQueue) Enqueue(ctx context.Context, ev domain.TodoistEvent) error {
	data, err := sonic.MarshalString(ev)
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, data, nil)
	return err
}

// Dequeue returns the next message or nil when the queue is empty.
func (q *EventQueue) Dequeue(ctx context.Context) (*Message, error) {
	resp, err := q.queue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	m := resp.Messages[0]
	msg := &Message{ID: deref(m.MessageID), PopReceipt: deref(m.PopReceipt)}
	msg.Event, msg.DecodeErr = decodeEvent(deref(m.MessageText))
	return msg, nil
}

func (q *EventQueue) Delete(ctx context.Context, id, receipt string) error {
	_, err := q.queue.DeleteMessage(ctx, id, receipt, nil)
	return err
}

func decodeEvent(text string) (domain.TodoistEvent, error) {
	var ev domain.TodoistEvent
	err := sonic.UnmarshalString(text, &ev)
	return ev, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

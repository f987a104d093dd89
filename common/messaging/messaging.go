// Package messaging defines the broker-neutral message bus used by the EDI
// gateway. The NATS implementation lives in messaging/nats.
package messaging

import (
	"context"
	"time"

	"github.com/telhawk-systems/edi-stack/common/middleware"
)

// Header keys set on published EDI events.
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderActorNumber = "X-Actor-Number"
	HeaderEventType   = "X-Event-Type"
)

// Message is one message on the bus. Metadata maps to broker headers.
type Message struct {
	Subject   string
	Data      []byte
	Reply     string
	Metadata  map[string]string
	Timestamp time.Time
}

// NewEvent builds an event message carrying the event type, the actor it
// concerns and the request id found in ctx.
func NewEvent(ctx context.Context, subject, actorNumber, eventType string, data []byte) *Message {
	headers := map[string]string{HeaderEventType: eventType}
	if actorNumber != "" {
		headers[HeaderActorNumber] = actorNumber
	}
	if id := middleware.GetRequestID(ctx); id != "" {
		headers[HeaderRequestID] = id
	}
	return &Message{Subject: subject, Data: data, Metadata: headers}
}

// EventType returns the X-Event-Type header.
func (m *Message) EventType() string { return m.Metadata[HeaderEventType] }

// ActorNumber returns the X-Actor-Number header.
func (m *Message) ActorNumber() string { return m.Metadata[HeaderActorNumber] }

// MessageHandler processes a received message. Returned errors are logged
// by the client.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher sends messages.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishMsg(ctx context.Context, msg *Message) error
	// Request publishes data and waits up to timeout for one reply.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)
	Close() error
}

// Subscriber receives messages.
type Subscriber interface {
	// Subscribe delivers every message on subject to handler.
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	// QueueSubscribe spreads messages on subject across members of queue.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client is a connected publisher and subscriber.
type Client interface {
	Publisher
	Subscriber
	// Drain closes the connection once in-flight messages are handled.
	Drain() error
	IsConnected() bool
}

// Package broker publishes and subscribes to log events over a pub/sub channel.
//
// Delivery is fire-and-forget: a message published while no subscriber is
// listening is lost, and nothing is acknowledged or replayed.
package broker

import "context"

// Message is one payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Publisher sends payloads to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber opens subscriptions on a named channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers messages until it is closed. Messages is closed after
// Close returns or when the underlying connection is torn down.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

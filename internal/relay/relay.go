// Package relay mirrors session events onto Redis Pub/Sub so processes other
// than the server, such as the watch command, can observe a board live.
//
// Channel pattern: agileboard:{namespace}:session:{session_id}:events
//
// Delivery follows Redis Pub/Sub: at-most-once, no history.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayodineji/Agile-Board/pkg/board"
)

// SessionEventsChannel returns the Pub/Sub channel for one session's events.
// Pattern: agileboard:{namespace}:session:{session_id}:events
func SessionEventsChannel(namespace, sessionID string) string {
	return fmt.Sprintf("agileboard:%s:session:%s:events", namespace, sessionID)
}

// sessionIDFromChannel extracts the session id from a channel name.
func sessionIDFromChannel(namespace, channel string) string {
	prefix := fmt.Sprintf("agileboard:%s:session:", namespace)
	return strings.TrimSuffix(strings.TrimPrefix(channel, prefix), ":events")
}

// Relay publishes and subscribes to session event channels.
// The relay is thread-safe.
type Relay struct {
	rdb       *redis.Client
	namespace string
	now       func() time.Time
}

// New returns a relay using rdb. The caller keeps ownership of rdb.
func New(rdb *redis.Client, namespace string) (*Relay, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &Relay{rdb: rdb, namespace: namespace, now: time.Now}, nil
}

// Message is one mirrored event as published.
type Message struct {
	SessionID string          `json:"sessionId"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	SentAt    time.Time       `json:"sentAt"`
}

// Publish mirrors an event. Implements broadcast.Mirror.
func (r *Relay) Publish(ctx context.Context, sessionID string, ev board.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", ev.Name, err)
	}
	payload, err := json.Marshal(Message{
		SessionID: sessionID,
		Event:     ev.Name,
		Data:      data,
		SentAt:    r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal relay message: %w", err)
	}

	channel := SessionEventsChannel(r.namespace, sessionID)
	if err := r.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscription represents an active subscription to mirrored events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Message
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of mirrored events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Message {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors. Malformed
// messages are reported here and skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe streams the events of one session, or of every session when
// sessionID is empty.
//
// Events are delivered on a buffered channel (size 10). A slow subscriber may
// miss events since Redis Pub/Sub does not queue for it.
func (r *Relay) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	var pubsub *redis.PubSub
	if sessionID == "" {
		pubsub = r.rdb.PSubscribe(ctx, SessionEventsChannel(r.namespace, "*"))
	} else {
		pubsub = r.rdb.Subscribe(ctx, SessionEventsChannel(r.namespace, sessionID))
	}

	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}

	eventsChan := make(chan *Message, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var m Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal relay message on %s: %w", msg.Channel, err):
					case <-subCtx.Done():
						return
					}
					continue
				}
				if m.SessionID == "" {
					m.SessionID = sessionIDFromChannel(r.namespace, msg.Channel)
				}

				select {
				case eventsChan <- &m:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

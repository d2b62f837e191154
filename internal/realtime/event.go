// Package realtime pushes tweet mutations to connected websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event names sent to clients.
const (
	EventTweetCreated = "tweet_created"
	EventTweetLiked   = "tweet_liked"
)

// Event is one notification. AuthorID and AuthorPrivate decide which
// subscribers receive it; only Name and Data reach the client.
type Event struct {
	Name          string          `json:"name"`
	Data          json.RawMessage `json:"data"`
	AuthorID      int64           `json:"author_id"`
	AuthorPrivate bool            `json:"author_private"`
}

func NewEvent(name string, authorID int64, authorPrivate bool, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Event{Name: name, Data: data, AuthorID: authorID, AuthorPrivate: authorPrivate}, nil
}

// frame is the wire format of a websocket message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (e Event) frame() ([]byte, error) {
	return json.Marshal(frame{Event: e.Name, Data: e.Data})
}

// Broadcaster accepts events for delivery. Publish must not block and never
// reports delivery failures.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event)
}

// NopBroadcaster discards every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, Event) {}

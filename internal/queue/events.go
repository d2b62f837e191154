package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timeline event types
const (
	EventTweetCreated   = "tweet_created"
	EventUserFollowed   = "user_followed"
	EventUserUnfollowed = "user_unfollowed"
)

const (
	StreamTimeline        = "stream:timeline"
	ConsumerGroupTimeline = "timeline_workers"
)

// TimelineEvent describes a change that following-feed caches must absorb.
// Timestamps are unix milliseconds so they can be used as cache scores.
type TimelineEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	TweetID  int64 `json:"tweet_id,omitempty"`
	AuthorID int64 `json:"author_id,omitempty"`

	FollowerID int64 `json:"follower_id,omitempty"`
	FolloweeID int64 `json:"followee_id,omitempty"`
}

// NewTweetCreatedEvent is fanned out to the author's followers and the author.
func NewTweetCreatedEvent(tweetID, authorID int64, createdAt time.Time) TimelineEvent {
	return TimelineEvent{
		Type:      EventTweetCreated,
		Timestamp: createdAt.UnixMilli(),
		TweetID:   tweetID,
		AuthorID:  authorID,
	}
}

// NewUserFollowedEvent is published when an edge becomes accepted, either
// immediately or through an accepted request.
func NewUserFollowedEvent(followerID, followeeID int64) TimelineEvent {
	return TimelineEvent{
		Type:       EventUserFollowed,
		Timestamp:  time.Now().UnixMilli(),
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
}

func NewUserUnfollowedEvent(followerID, followeeID int64) TimelineEvent {
	return TimelineEvent{
		Type:       EventUserUnfollowed,
		Timestamp:  time.Now().UnixMilli(),
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
}

// ToMap converts the event to XADD field-value pairs. The full event is
// stored as JSON in "data"; "type" is duplicated for stream inspection.
func (e TimelineEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseTimelineEvent parses an event from stream message values.
func ParseTimelineEvent(values map[string]interface{}) (TimelineEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return TimelineEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event TimelineEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return TimelineEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Type == "" {
		return TimelineEvent{}, fmt.Errorf("event has no type")
	}
	return event, nil
}

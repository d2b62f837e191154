package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tuweeter/internal/cache"
	"tuweeter/internal/logging"
	"tuweeter/internal/queue"
)

const (
	// BackfillLimit is how many of the followee's tweets are copied into a
	// follower's feed when an edge becomes accepted.
	BackfillLimit = 20
)

// FollowerProvider lists accepted followers of a user.
type FollowerProvider interface {
	GetFollowerIDs(ctx context.Context, userID int64) ([]int64, error)
}

// RecentTweetsProvider lists an author's newest tweets as cache entries.
type RecentTweetsProvider interface {
	GetRecentByAuthor(ctx context.Context, authorID int64, limit int) ([]cache.TweetScore, error)
}

// Handler applies timeline events to following-feed caches.
type Handler struct {
	feedCache cache.FeedCache
	followers FollowerProvider
	tweets    RecentTweetsProvider
	log       zerolog.Logger
}

func NewHandler(feedCache cache.FeedCache, followers FollowerProvider, tweets RecentTweetsProvider) *Handler {
	return &Handler{
		feedCache: feedCache,
		followers: followers,
		tweets:    tweets,
		log:       logging.Component("timeline_worker"),
	}
}

// HandleEvent routes an event by type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.TimelineEvent) error {
	start := time.Now()

	var err error
	switch event.Type {
	case queue.EventTweetCreated:
		err = h.handleTweetCreated(ctx, event)
	case queue.EventUserFollowed:
		err = h.handleUserFollowed(ctx, event)
	case queue.EventUserUnfollowed:
		err = h.handleUserUnfollowed(ctx, event)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", event.Type, err)
	}

	h.log.Debug().Str(logging.FieldEvent, event.Type).Dur("took", time.Since(start)).Msg("event handled")
	return nil
}

// handleTweetCreated adds the tweet to the author's feed and every accepted
// follower's feed. Per-user failures are logged and skipped.
func (h *Handler) handleTweetCreated(ctx context.Context, event queue.TimelineEvent) error {
	followers, err := h.followers.GetFollowerIDs(ctx, event.AuthorID)
	if err != nil {
		return fmt.Errorf("get followers: %w", err)
	}

	recipients := append(followers, event.AuthorID)
	var failed int
	for _, userID := range recipients {
		if _, err := h.feedCache.AddTweet(ctx, userID, event.TweetID, event.Timestamp); err != nil {
			h.log.Warn().Err(err).Int64(logging.FieldUserID, userID).Int64("tweet_id", event.TweetID).Msg("fan-out failed")
			failed++
		}
	}

	h.log.Info().
		Int64("tweet_id", event.TweetID).
		Int("fanout", len(recipients)).
		Int("failed", failed).
		Msg("tweet fanned out")
	return nil
}

func (h *Handler) handleUserFollowed(ctx context.Context, event queue.TimelineEvent) error {
	tweets, err := h.tweets.GetRecentByAuthor(ctx, event.FolloweeID, BackfillLimit)
	if err != nil {
		return fmt.Errorf("get recent tweets: %w", err)
	}
	if len(tweets) == 0 {
		return nil
	}

	warm, err := h.feedCache.AddTweets(ctx, event.FollowerID, tweets)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	h.log.Info().
		Int64("follower_id", event.FollowerID).
		Int64("followee_id", event.FolloweeID).
		Int("tweets", len(tweets)).
		Bool("warm", warm).
		Msg("feed backfilled")
	return nil
}

func (h *Handler) handleUserUnfollowed(ctx context.Context, event queue.TimelineEvent) error {
	tweets, err := h.tweets.GetRecentByAuthor(ctx, event.FolloweeID, cache.FeedCacheCap)
	if err != nil {
		return fmt.Errorf("get tweets to remove: %w", err)
	}
	if len(tweets) == 0 {
		return nil
	}

	ids := make([]int64, len(tweets))
	for i, t := range tweets {
		ids[i] = t.TweetID
	}
	if err := h.feedCache.RemoveTweets(ctx, event.FollowerID, ids); err != nil {
		return fmt.Errorf("remove tweets: %w", err)
	}

	h.log.Info().
		Int64("follower_id", event.FollowerID).
		Int64("followee_id", event.FolloweeID).
		Int("removed", len(ids)).
		Msg("feed pruned")
	return nil
}

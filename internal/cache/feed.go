package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tuweeter/internal/logging"
)

const (
	// FeedCachePrefix is the key prefix for following-feed caches
	FeedCachePrefix = "feed:user:"

	// FeedCacheCap is the maximum number of tweets cached per user
	FeedCacheCap = 500

	FeedCacheTTL = 7 * 24 * time.Hour
)

// TweetScore is a tweet id with its creation time in unix milliseconds.
type TweetScore struct {
	TweetID   int64 `db:"id"`
	Timestamp int64 `db:"ts"`
}

// FeedCache stores, per user, the ids of tweets in that user's following feed.
// A missing key means "not warmed"; readers must rebuild it from the database.
type FeedCache interface {
	// AddTweet inserts a tweet into an already warmed feed. It is a no-op when
	// the feed has not been warmed, so a cold feed is never left half filled.
	AddTweet(ctx context.Context, userID, tweetID, timestamp int64) (bool, error)

	// AddTweets is the bulk form of AddTweet, used for follow backfills.
	AddTweets(ctx context.Context, userID int64, tweets []TweetScore) (bool, error)

	RemoveTweets(ctx context.Context, userID int64, tweetIDs []int64) error

	// GetFeed returns tweet ids newest first, skipping offset entries.
	GetFeed(ctx context.Context, userID int64, offset, limit int) ([]int64, error)

	// Warm replaces a user's feed with tweets and sets the TTL.
	Warm(ctx context.Context, userID int64, tweets []TweetScore) error

	Size(ctx context.Context, userID int64) (int64, error)
	Exists(ctx context.Context, userID int64) (bool, error)
}

// addIfWarmScript adds members only when the key already exists, then trims
// to the cap and refreshes the TTL.
// KEYS[1] = feed key
// ARGV[1] = cap, ARGV[2] = ttl seconds, ARGV[3..] = score, member pairs
var addIfWarmScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
for i = 3, #ARGV, 2 do
	redis.call('ZADD', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('ZREMRANGEBYRANK', KEYS[1], 0, -tonumber(ARGV[1]) - 1)
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisFeedCache implements FeedCache using Redis sorted sets scored by
// creation time.
type RedisFeedCache struct {
	client redis.UniversalClient
	log    zerolog.Logger
}

func NewFeedCache(client redis.UniversalClient) *RedisFeedCache {
	return &RedisFeedCache{client: client, log: logging.Component("feed_cache")}
}

func feedKey(userID int64) string {
	return FeedCachePrefix + strconv.FormatInt(userID, 10)
}

func (c *RedisFeedCache) AddTweet(ctx context.Context, userID, tweetID, timestamp int64) (bool, error) {
	return c.AddTweets(ctx, userID, []TweetScore{{TweetID: tweetID, Timestamp: timestamp}})
}

func (c *RedisFeedCache) AddTweets(ctx context.Context, userID int64, tweets []TweetScore) (bool, error) {
	if len(tweets) == 0 {
		return false, nil
	}

	args := make([]interface{}, 0, 2+2*len(tweets))
	args = append(args, FeedCacheCap, int64(FeedCacheTTL/time.Second))
	for _, t := range tweets {
		args = append(args, t.Timestamp, strconv.FormatInt(t.TweetID, 10))
	}

	added, err := addIfWarmScript.Run(ctx, c.client, []string{feedKey(userID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("add tweets to feed: %w", err)
	}

	c.log.Debug().Int64("user_id", userID).Int("tweets", len(tweets)).Bool("warm", added == 1).Msg("add tweets")
	return added == 1, nil
}

func (c *RedisFeedCache) RemoveTweets(ctx context.Context, userID int64, tweetIDs []int64) error {
	if len(tweetIDs) == 0 {
		return nil
	}

	members := make([]interface{}, len(tweetIDs))
	for i, id := range tweetIDs {
		members[i] = strconv.FormatInt(id, 10)
	}

	removed, err := c.client.ZRem(ctx, feedKey(userID), members...).Result()
	if err != nil {
		return fmt.Errorf("remove tweets from feed: %w", err)
	}

	c.log.Debug().Int64("user_id", userID).Int64("removed", removed).Msg("remove tweets")
	return nil
}

func (c *RedisFeedCache) GetFeed(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	key := feedKey(userID)
	start := time.Now()

	members, err := c.client.ZRevRange(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}

	// Refresh TTL on access
	c.client.Expire(ctx, key, FeedCacheTTL)

	ids := make([]int64, len(members))
	for i, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse tweet id %q: %w", m, err)
		}
		ids[i] = id
	}

	c.log.Debug().
		Int64("user_id", userID).
		Int("offset", offset).
		Int("returned", len(ids)).
		Dur("took", time.Since(start)).
		Msg("get feed")
	return ids, nil
}

func (c *RedisFeedCache) Warm(ctx context.Context, userID int64, tweets []TweetScore) error {
	key := feedKey(userID)
	if len(tweets) == 0 {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clear feed: %w", err)
		}
		return nil
	}

	members := make([]redis.Z, len(tweets))
	for i, t := range tweets {
		members[i] = redis.Z{Score: float64(t.Timestamp), Member: strconv.FormatInt(t.TweetID, 10)}
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-FeedCacheCap-1))
	pipe.Expire(ctx, key, FeedCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warm feed: %w", err)
	}

	c.log.Info().Int64("user_id", userID).Int("tweets", len(tweets)).Msg("feed warmed")
	return nil
}

func (c *RedisFeedCache) Size(ctx context.Context, userID int64) (int64, error) {
	size, err := c.client.ZCard(ctx, feedKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("get feed size: %w", err)
	}
	return size, nil
}

func (c *RedisFeedCache) Exists(ctx context.Context, userID int64) (bool, error) {
	n, err := c.client.Exists(ctx, feedKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check feed exists: %w", err)
	}
	return n > 0, nil
}

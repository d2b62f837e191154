package service

import (
	"context"
	"math"
	"time"

	"tuweeter/internal/cache"
	"tuweeter/internal/logging"
	"tuweeter/internal/model"
	"tuweeter/internal/repository"
	"tuweeter/internal/visibility"
)

// FeedService assembles timelines. The following feed is served from the
// Redis feed cache when one is configured and from Postgres otherwise.
type FeedService struct {
	tweets    repository.TweetRepository
	follows   repository.FollowRepository
	feedCache cache.FeedCache
	timeout   storeTimeout
}

func NewFeedService(
	tweets repository.TweetRepository,
	follows repository.FollowRepository,
	feedCache cache.FeedCache,
	timeout time.Duration,
) *FeedService {
	return &FeedService{
		tweets:    tweets,
		follows:   follows,
		feedCache: feedCache,
		timeout:   storeTimeout(timeout),
	}
}

// maxFeedOffset is far past any real timeline; larger pages are empty anyway.
const maxFeedOffset = math.MaxInt32

// Page normalizes page and limit into an offset and limit. The offset never
// exceeds maxFeedOffset.
func Page(page, limit int) (offset, size int) {
	if page < 1 {
		page = model.DefaultFeedPage
	}
	if limit < 1 {
		limit = model.DefaultFeedLimit
	}
	if limit > model.MaxFeedLimit {
		limit = model.MaxFeedLimit
	}
	if maxPage := maxFeedOffset/limit + 1; page > maxPage {
		page = maxPage
	}
	return (page - 1) * limit, limit
}

// GetFeed returns one page of tweets, newest first. The global scope holds
// every tweet viewerID may see; the following scope holds the viewer's own
// tweets and those of accounts they follow.
func (s *FeedService) GetFeed(ctx context.Context, viewerID int64, scope model.FeedScope, page, limit int) ([]model.Tweet, error) {
	offset, limit := Page(page, limit)

	rctx, cancel := s.timeout.read(ctx)
	defer cancel()

	if scope != model.FeedFollowing {
		tweets, err := s.tweets.ListVisible(rctx, viewerID, offset, limit)
		if err != nil {
			return nil, storeErr(err)
		}
		return tweets, nil
	}

	if viewerID == visibility.Anonymous {
		return nil, model.ErrForbidden
	}

	if s.feedCache != nil && offset+limit <= cache.FeedCacheCap {
		tweets, err := s.fromCache(rctx, viewerID, offset, limit)
		if err == nil {
			return tweets, nil
		}
		logging.Ctx(ctx).Warn().Err(err).Int64(logging.FieldUserID, viewerID).Msg("feed cache unavailable, reading from database")
	}

	return s.fromDatabase(rctx, viewerID, offset, limit)
}

// fromCache serves a page from the cached feed. Entries whose author the
// viewer no longer follows are a sign of a missed cache update; the feed is
// then rebuilt and the page is read from the database.
func (s *FeedService) fromCache(ctx context.Context, viewerID int64, offset, limit int) ([]model.Tweet, error) {
	authors, err := s.authors(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	exists, err := s.feedCache.Exists(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.warm(ctx, viewerID, authors); err != nil {
			return nil, err
		}
	}

	ids, err := s.feedCache.GetFeed(ctx, viewerID, offset, limit)
	if err != nil {
		return nil, err
	}

	tweets, err := s.tweets.GetByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr(err)
	}

	allowed := make(map[int64]struct{}, len(authors))
	for _, id := range authors {
		allowed[id] = struct{}{}
	}
	for _, t := range tweets {
		if _, ok := allowed[t.AuthorID]; ok {
			continue
		}
		logging.Ctx(ctx).Warn().
			Int64(logging.FieldUserID, viewerID).
			Int64("author_id", t.AuthorID).
			Msg("stale following feed cache, rebuilding")
		if err := s.warm(ctx, viewerID, authors); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64(logging.FieldUserID, viewerID).Msg("feed cache rebuild failed")
		}
		return s.byAuthors(ctx, authors, offset, limit)
	}
	return tweets, nil
}

// warm rebuilds the viewer's cached feed from the database.
func (s *FeedService) warm(ctx context.Context, viewerID int64, authors []int64) error {
	scores, err := s.tweets.GetFeedTweetIDs(ctx, authors, cache.FeedCacheCap)
	if err != nil {
		return storeErr(err)
	}
	return s.feedCache.Warm(ctx, viewerID, scores)
}

func (s *FeedService) fromDatabase(ctx context.Context, viewerID int64, offset, limit int) ([]model.Tweet, error) {
	authors, err := s.authors(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return s.byAuthors(ctx, authors, offset, limit)
}

func (s *FeedService) byAuthors(ctx context.Context, authors []int64, offset, limit int) ([]model.Tweet, error) {
	tweets, err := s.tweets.ListByAuthors(ctx, authors, offset, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return tweets, nil
}

func (s *FeedService) authors(ctx context.Context, viewerID int64) ([]int64, error) {
	followees, err := s.follows.GetFolloweeIDs(ctx, viewerID)
	if err != nil {
		return nil, storeErr(err)
	}
	return append(followees, viewerID), nil
}

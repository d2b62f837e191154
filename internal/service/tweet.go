package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"tuweeter/internal/logging"
	"tuweeter/internal/metrics"
	"tuweeter/internal/model"
	"tuweeter/internal/queue"
	"tuweeter/internal/realtime"
	"tuweeter/internal/repository"
)

// TweetService handles tweet, like and comment mutations. Tweet creation and
// tweet likes are broadcast after commit; comments are not.
type TweetService struct {
	tweets      repository.TweetRepository
	comments    repository.CommentRepository
	broadcaster realtime.Broadcaster
	publisher   queue.Publisher
	media       MediaStore
	timeout     storeTimeout
}

func NewTweetService(
	tweets repository.TweetRepository,
	comments repository.CommentRepository,
	broadcaster realtime.Broadcaster,
	publisher queue.Publisher,
	media MediaStore,
	timeout time.Duration,
) *TweetService {
	if broadcaster == nil {
		broadcaster = realtime.NopBroadcaster{}
	}
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &TweetService{
		tweets:      tweets,
		comments:    comments,
		broadcaster: broadcaster,
		publisher:   publisher,
		media:       media,
		timeout:     storeTimeout(timeout),
	}
}

// Create posts a tweet. A tweet needs text, an image, or both.
func (s *TweetService) Create(ctx context.Context, authorID int64, content string, image *Upload) (*model.Tweet, error) {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) > model.MaxTweetLength {
		return nil, model.NewValidationError("content", fmt.Sprintf("Tweet cannot exceed %d characters", model.MaxTweetLength))
	}
	if content == "" && image == nil {
		return nil, model.NewValidationError("content", "Tweet content is required")
	}

	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	var imageURL, imageKey *string
	if image != nil {
		if s.media == nil {
			return nil, model.ErrMediaNotConfigured
		}
		uploaded, err := s.media.UploadTweetImage(wctx, *image)
		if err != nil {
			return nil, err
		}
		imageURL, imageKey = &uploaded.URL, &uploaded.Key
	}

	tweet, err := s.tweets.Create(wctx, authorID, content, imageURL, imageKey)
	metrics.ObserveMutation("tweet_create", err)
	if err != nil {
		if imageKey != nil {
			if derr := s.media.DeleteObject(wctx, *imageKey); derr != nil {
				logging.Ctx(ctx).Warn().Err(derr).Str("key", *imageKey).Msg("failed to delete orphaned tweet image")
			}
		}
		return nil, storeErr(err)
	}

	event := queue.NewTweetCreatedEvent(tweet.ID, tweet.AuthorID, tweet.CreatedAt)
	if _, err := s.publisher.Publish(wctx, queue.StreamTimeline, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("tweet_id", tweet.ID).Msg("failed to publish tweet_created")
	}
	s.broadcast(ctx, realtime.EventTweetCreated, tweet.AuthorID, tweet.AuthorPrivate, tweet)

	return tweet, nil
}

// ToggleLike adds userID to the tweet's likes, or removes it if present.
// The tweet is read before the toggle, so nothing can fail once it commits.
func (s *TweetService) ToggleLike(ctx context.Context, tweetID, userID int64) (*model.Tweet, error) {
	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	tweet, err := s.tweets.GetByID(wctx, tweetID)
	if err != nil {
		return nil, storeErr(err)
	}

	_, likes, err := s.tweets.ToggleLike(wctx, tweetID, userID)
	metrics.ObserveMutation("tweet_like", err)
	if err != nil {
		return nil, storeErr(err)
	}
	tweet.Likes = likes

	update := model.LikeUpdate{TweetID: tweetID, Likes: likes}
	s.broadcast(ctx, realtime.EventTweetLiked, tweet.AuthorID, tweet.AuthorPrivate, update)
	return tweet, nil
}

// AddComment prepends a comment and returns the tweet's comments, newest first.
func (s *TweetService) AddComment(ctx context.Context, tweetID, userID int64, text string) ([]model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewValidationError("text", "Comment text is required")
	}
	if utf8.RuneCountInString(text) > model.MaxCommentLength {
		return nil, model.NewValidationError("text", fmt.Sprintf("Comment cannot exceed %d characters", model.MaxCommentLength))
	}

	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	comment, err := s.comments.Create(wctx, tweetID, userID, text)
	metrics.ObserveMutation("comment_create", err)
	if err != nil {
		return nil, storeErr(err)
	}

	comments, err := s.comments.ListByTweet(wctx, tweetID)
	if err != nil {
		readAfterCommit(ctx, "comment_create", err)
		return []model.Comment{*comment}, nil
	}
	return comments, nil
}

func (s *TweetService) ToggleCommentLike(ctx context.Context, tweetID, commentID, userID int64) ([]model.Comment, error) {
	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	_, err := s.comments.ToggleLike(wctx, tweetID, commentID, userID)
	metrics.ObserveMutation("comment_like", err)
	if err != nil {
		return nil, storeErr(err)
	}

	comments, err := s.comments.ListByTweet(wctx, tweetID)
	if err != nil {
		readAfterCommit(ctx, "comment_like", err)
		return []model.Comment{}, nil
	}
	return comments, nil
}

// broadcast never fails the caller; the mutation is already committed.
func (s *TweetService) broadcast(ctx context.Context, name string, authorID int64, authorPrivate bool, payload interface{}) {
	ev, err := realtime.NewEvent(name, authorID, authorPrivate, payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str(logging.FieldEvent, name).Msg("failed to build realtime event")
		return
	}
	s.broadcaster.Publish(ctx, ev)
}

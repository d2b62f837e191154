package repository

import (
	"context"
	"time"

	"tuweeter/internal/cache"
	"tuweeter/internal/model"
)

type UserRepository interface {
	// Create returns model.ErrUsernameExists when the username or email is taken.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
	// UpdateProfile applies the non-nil fields. It returns model.ErrUsernameTaken
	// when the new username belongs to someone else.
	UpdateProfile(ctx context.Context, id int64, req *model.UpdateProfileRequest, dob *time.Time) (*model.User, error)
	SetPrivacy(ctx context.Context, id int64, isPrivate bool) (*model.User, error)
}

// FollowRepository owns the follows table. Every method that changes an edge
// runs in one transaction together with the counter updates of both users.
type FollowRepository interface {
	// Request creates a pending edge when the followee is private and an
	// accepted edge otherwise, deciding under a lock on both user rows.
	Request(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error)
	// Remove deletes the edge whatever its status and returns the prior status.
	Remove(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error)
	// Accept flips a pending edge to accepted.
	Accept(ctx context.Context, ownerID, requesterID int64) error
	// Reject deletes a pending edge.
	Reject(ctx context.Context, ownerID, requesterID int64) error
	Status(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error)

	GetFollowers(ctx context.Context, userID int64) ([]model.UserSummary, error)
	GetFollowing(ctx context.Context, userID int64) ([]model.UserSummary, error)
	// GetPendingRequests lists requesters oldest first.
	GetPendingRequests(ctx context.Context, ownerID int64) ([]model.UserSummary, error)

	GetFollowerIDs(ctx context.Context, userID int64) ([]int64, error)
	GetFolloweeIDs(ctx context.Context, userID int64) ([]int64, error)
}

// TweetRepository returns tweets hydrated with author summary, likes and
// comments unless noted otherwise.
type TweetRepository interface {
	Create(ctx context.Context, authorID int64, content string, image, imageKey *string) (*model.Tweet, error)
	GetByID(ctx context.Context, id int64) (*model.Tweet, error)
	// GetByIDs keeps the order of ids and skips missing ones.
	GetByIDs(ctx context.Context, ids []int64) ([]model.Tweet, error)
	// ListVisible is the global timeline as seen by viewerID (0 for anonymous).
	ListVisible(ctx context.Context, viewerID int64, offset, limit int) ([]model.Tweet, error)
	ListByAuthors(ctx context.Context, authorIDs []int64, offset, limit int) ([]model.Tweet, error)

	// GetRecentByAuthor and GetFeedTweetIDs return cache entries only.
	GetRecentByAuthor(ctx context.Context, authorID int64, limit int) ([]cache.TweetScore, error)
	GetFeedTweetIDs(ctx context.Context, authorIDs []int64, limit int) ([]cache.TweetScore, error)

	// ToggleLike adds or removes userID from the tweet's likes under a row
	// lock on the tweet and returns the resulting like set.
	ToggleLike(ctx context.Context, tweetID, userID int64) (liked bool, likes []int64, err error)
}

type CommentRepository interface {
	// Create stores a comment with the author's current username and avatar.
	Create(ctx context.Context, tweetID, userID int64, text string) (*model.Comment, error)
	// ListByTweet returns comments newest first with their likes.
	ListByTweet(ctx context.Context, tweetID int64) ([]model.Comment, error)
	ToggleLike(ctx context.Context, tweetID, commentID, userID int64) (liked bool, err error)
}

package model

import (
	"errors"
	"time"
)

// Tweet is a short post. Likes and Comments are hydrated from their own
// tables; Comments are ordered most recent first.
type Tweet struct {
	ID        int64     `db:"id" json:"id"`
	AuthorID  int64     `db:"author_id" json:"author_id"`
	Content   string    `db:"content" json:"content"`
	Image     *string   `db:"image" json:"image"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// AuthorPrivate is the author's privacy flag at read time.
	AuthorPrivate bool `db:"author_private" json:"-"`

	Author   *UserSummary `json:"author"`
	Likes    []int64      `json:"likes"`
	Comments []Comment    `json:"comments"`
}

type CreateTweetRequest struct {
	Content string `json:"content"`
}

// LikeUpdate is the payload of a tweet_liked event.
type LikeUpdate struct {
	TweetID int64   `json:"tweetId"`
	Likes   []int64 `json:"likes"`
}

// FeedScope selects which tweets a feed request returns.
type FeedScope string

const (
	FeedGlobal    FeedScope = "all"
	FeedFollowing FeedScope = "following"
)

// ParseFeedScope maps the type query parameter to a scope; unknown values
// select the global feed.
func ParseFeedScope(s string) FeedScope {
	if s == string(FeedFollowing) {
		return FeedFollowing
	}
	return FeedGlobal
}

// Tweet constraints
const (
	MaxTweetLength    = 280
	DefaultFeedPage   = 1
	DefaultFeedLimit  = 20
	MaxFeedLimit      = 50
	TweetImageFolder  = "tweets"
	MaxTweetImageSize = 10 * 1024 * 1024
	ProfileTweetLimit = 50
)

var (
	ErrTweetNotFound = errors.New("Tweet not found")
)

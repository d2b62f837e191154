package model

import (
	"errors"
	"time"
)

// Comment belongs to exactly one tweet. Username and AvatarURL are copied
// from the author when the comment is written and are not refreshed.
type Comment struct {
	ID        int64     `db:"id" json:"id"`
	TweetID   int64     `db:"tweet_id" json:"tweet_id"`
	UserID    int64     `db:"user_id" json:"-"`
	Username  string    `db:"username" json:"-"`
	AvatarURL *string   `db:"avatar_url" json:"-"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	User  UserSummary `db:"-" json:"user"`
	Likes []int64     `db:"-" json:"likes"`
}

type CreateCommentRequest struct {
	Text string `json:"text"`
}

const MaxCommentLength = 280

var ErrCommentNotFound = errors.New("Comment not found")

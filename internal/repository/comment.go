package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tuweeter/internal/model"
)

type commentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create copies username and avatar_url from the author row at insert time.
func (r *commentRepository) Create(ctx context.Context, tweetID, userID int64, text string) (*model.Comment, error) {
	query := `
		INSERT INTO comments (tweet_id, user_id, username, avatar_url, text)
		SELECT $1, u.id, u.username, u.avatar_url, $3
		FROM users u
		WHERE u.id = $2
		RETURNING id, tweet_id, user_id, username, avatar_url, text, created_at
	`
	var c model.Comment
	if err := r.db.GetContext(ctx, &c, query, tweetID, userID, text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrForbidden
		}
		if isForeignKeyViolation(err) {
			return nil, model.ErrTweetNotFound
		}
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	c.User = model.UserSummary{ID: c.UserID, Username: c.Username, AvatarURL: c.AvatarURL}
	c.Likes = []int64{}
	return &c, nil
}

func (r *commentRepository) ListByTweet(ctx context.Context, tweetID int64) ([]model.Comment, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tweets WHERE id = $1)`, tweetID); err != nil {
		return nil, fmt.Errorf("check tweet exists: %w", err)
	}
	if !exists {
		return nil, model.ErrTweetNotFound
	}
	return loadComments(ctx, r.db, []int64{tweetID})
}

func (r *commentRepository) ToggleLike(ctx context.Context, tweetID, commentID, userID int64) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockTweet(ctx, tx, tweetID); err != nil {
		return false, err
	}

	var id int64
	err = tx.GetContext(ctx, &id, `SELECT id FROM comments WHERE id = $1 AND tweet_id = $2`, commentID, tweetID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, model.ErrCommentNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get comment: %w", err)
	}

	liked, err := toggleRow(ctx, tx,
		`DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2`,
		`INSERT INTO comment_likes (comment_id, user_id) VALUES ($1, $2)`,
		commentID, userID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return liked, nil
}

// loadComments returns the comments of tweetIDs newest first, with likes.
func loadComments(ctx context.Context, db *sqlx.DB, tweetIDs []int64) ([]model.Comment, error) {
	comments := []model.Comment{}
	if err := db.SelectContext(ctx, &comments, `
		SELECT id, tweet_id, user_id, username, avatar_url, text, created_at
		FROM comments
		WHERE tweet_id = ANY($1)
		ORDER BY created_at DESC, id DESC
	`, pq.Array(tweetIDs)); err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	if len(comments) == 0 {
		return comments, nil
	}

	ids := make([]int64, len(comments))
	index := make(map[int64]int, len(comments))
	for i := range comments {
		c := &comments[i]
		ids[i] = c.ID
		index[c.ID] = i
		c.User = model.UserSummary{ID: c.UserID, Username: c.Username, AvatarURL: c.AvatarURL}
		c.Likes = []int64{}
	}

	type likeRow struct {
		CommentID int64 `db:"comment_id"`
		UserID    int64 `db:"user_id"`
	}
	var likes []likeRow
	if err := db.SelectContext(ctx, &likes, `
		SELECT comment_id, user_id FROM comment_likes
		WHERE comment_id = ANY($1)
		ORDER BY created_at, user_id
	`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load comment likes: %w", err)
	}
	for _, l := range likes {
		c := &comments[index[l.CommentID]]
		c.Likes = append(c.Likes, l.UserID)
	}
	return comments, nil
}

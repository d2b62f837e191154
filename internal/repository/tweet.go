package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tuweeter/internal/cache"
	"tuweeter/internal/model"
)

// tweetSelect joins the live author summary onto each tweet.
const tweetSelect = `
	SELECT t.id, t.author_id, t.content, t.image, t.created_at, t.updated_at,
	       u.is_private AS author_private,
	       u.username   AS author_username,
	       u.avatar_url AS author_avatar_url
	FROM tweets t
	JOIN users u ON u.id = t.author_id
`

type tweetRow struct {
	model.Tweet
	AuthorUsername  string  `db:"author_username"`
	AuthorAvatarURL *string `db:"author_avatar_url"`
}

func (row tweetRow) toTweet() model.Tweet {
	t := row.Tweet
	t.Author = &model.UserSummary{ID: t.AuthorID, Username: row.AuthorUsername, AvatarURL: row.AuthorAvatarURL}
	return t
}

type tweetRepository struct {
	db *sqlx.DB
}

func NewTweetRepository(db *sqlx.DB) TweetRepository {
	return &tweetRepository{db: db}
}

func (r *tweetRepository) Create(ctx context.Context, authorID int64, content string, image, imageKey *string) (*model.Tweet, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `
		INSERT INTO tweets (author_id, content, image, image_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, authorID, content, image, imageKey)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, model.ErrForbidden
		}
		return nil, fmt.Errorf("insert tweet: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *tweetRepository) GetByID(ctx context.Context, id int64) (*model.Tweet, error) {
	var row tweetRow
	if err := r.db.GetContext(ctx, &row, tweetSelect+` WHERE t.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTweetNotFound
		}
		return nil, fmt.Errorf("get tweet: %w", err)
	}

	tweets := []model.Tweet{row.toTweet()}
	if err := r.hydrate(ctx, tweets); err != nil {
		return nil, err
	}
	return &tweets[0], nil
}

func (r *tweetRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Tweet, error) {
	if len(ids) == 0 {
		return []model.Tweet{}, nil
	}

	tweets, err := r.selectTweets(ctx, tweetSelect+` WHERE t.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]model.Tweet, len(tweets))
	for _, t := range tweets {
		byID[t.ID] = t
	}
	ordered := make([]model.Tweet, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}

// ListVisible applies the same rule as visibility.CanView in SQL: public
// authors, the viewer's own tweets, and authors the viewer follows.
func (r *tweetRepository) ListVisible(ctx context.Context, viewerID int64, offset, limit int) ([]model.Tweet, error) {
	query := tweetSelect + `
		WHERE u.is_private = FALSE
		   OR t.author_id = $1
		   OR EXISTS (
		       SELECT 1 FROM follows f
		       WHERE f.follower_id = $1 AND f.followee_id = t.author_id AND f.status = 'accepted'
		   )
		ORDER BY t.created_at DESC, t.id DESC
		OFFSET $2 LIMIT $3
	`
	return r.selectTweets(ctx, query, viewerID, offset, limit)
}

func (r *tweetRepository) ListByAuthors(ctx context.Context, authorIDs []int64, offset, limit int) ([]model.Tweet, error) {
	if len(authorIDs) == 0 {
		return []model.Tweet{}, nil
	}
	query := tweetSelect + `
		WHERE t.author_id = ANY($1)
		ORDER BY t.created_at DESC, t.id DESC
		OFFSET $2 LIMIT $3
	`
	return r.selectTweets(ctx, query, pq.Array(authorIDs), offset, limit)
}

func (r *tweetRepository) selectTweets(ctx context.Context, query string, args ...interface{}) ([]model.Tweet, error) {
	var rows []tweetRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list tweets: %w", err)
	}

	tweets := make([]model.Tweet, len(rows))
	for i, row := range rows {
		tweets[i] = row.toTweet()
	}
	if err := r.hydrate(ctx, tweets); err != nil {
		return nil, err
	}
	return tweets, nil
}

func (r *tweetRepository) GetRecentByAuthor(ctx context.Context, authorID int64, limit int) ([]cache.TweetScore, error) {
	return r.GetFeedTweetIDs(ctx, []int64{authorID}, limit)
}

func (r *tweetRepository) GetFeedTweetIDs(ctx context.Context, authorIDs []int64, limit int) ([]cache.TweetScore, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	var scores []cache.TweetScore
	err := r.db.SelectContext(ctx, &scores, `
		SELECT id, (EXTRACT(EPOCH FROM created_at) * 1000)::BIGINT AS ts
		FROM tweets
		WHERE author_id = ANY($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, pq.Array(authorIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("get feed tweet ids: %w", err)
	}
	return scores, nil
}

func (r *tweetRepository) ToggleLike(ctx context.Context, tweetID, userID int64) (bool, []int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockTweet(ctx, tx, tweetID); err != nil {
		return false, nil, err
	}

	liked, err := toggleRow(ctx, tx,
		`DELETE FROM tweet_likes WHERE tweet_id = $1 AND user_id = $2`,
		`INSERT INTO tweet_likes (tweet_id, user_id) VALUES ($1, $2)`,
		tweetID, userID)
	if err != nil {
		return false, nil, err
	}

	likes := []int64{}
	if err := tx.SelectContext(ctx, &likes,
		`SELECT user_id FROM tweet_likes WHERE tweet_id = $1 ORDER BY created_at, user_id`, tweetID); err != nil {
		return false, nil, fmt.Errorf("list likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("commit transaction: %w", err)
	}
	return liked, likes, nil
}

// lockTweet serializes every like and comment-like toggle on one tweet.
func lockTweet(ctx context.Context, tx *sqlx.Tx, tweetID int64) error {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM tweets WHERE id = $1 FOR UPDATE`, tweetID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrTweetNotFound
	}
	if err != nil {
		return fmt.Errorf("lock tweet: %w", err)
	}
	return nil
}

// toggleRow deletes the row if present and inserts it otherwise. It reports
// whether the row exists afterwards.
func toggleRow(ctx context.Context, tx *sqlx.Tx, deleteQuery, insertQuery string, args ...interface{}) (bool, error) {
	res, err := tx.ExecContext(ctx, deleteQuery, args...)
	if err != nil {
		return false, fmt.Errorf("toggle delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
		if isForeignKeyViolation(err) {
			return false, model.ErrForbidden
		}
		return false, fmt.Errorf("toggle insert: %w", err)
	}
	return true, nil
}

// hydrate fills likes and comments for tweets with one query per table.
func (r *tweetRepository) hydrate(ctx context.Context, tweets []model.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}

	ids := make([]int64, len(tweets))
	for i := range tweets {
		ids[i] = tweets[i].ID
		tweets[i].Likes = []int64{}
		tweets[i].Comments = []model.Comment{}
	}

	type likeRow struct {
		TweetID int64 `db:"tweet_id"`
		UserID  int64 `db:"user_id"`
	}
	var likes []likeRow
	if err := r.db.SelectContext(ctx, &likes, `
		SELECT tweet_id, user_id FROM tweet_likes
		WHERE tweet_id = ANY($1)
		ORDER BY created_at, user_id
	`, pq.Array(ids)); err != nil {
		return fmt.Errorf("load tweet likes: %w", err)
	}

	comments, err := loadComments(ctx, r.db, ids)
	if err != nil {
		return err
	}

	index := make(map[int64]int, len(tweets))
	for i := range tweets {
		index[tweets[i].ID] = i
	}
	for _, l := range likes {
		t := &tweets[index[l.TweetID]]
		t.Likes = append(t.Likes, l.UserID)
	}
	for _, c := range comments {
		t := &tweets[index[c.TweetID]]
		t.Comments = append(t.Comments, c)
	}
	return nil
}

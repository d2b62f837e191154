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

type followRepository struct {
	db *sqlx.DB
}

func NewFollowRepository(db *sqlx.DB) FollowRepository {
	return &followRepository{db: db}
}

// lockPair locks both user rows in id order, so two transactions touching
// the same pair in opposite directions cannot deadlock. It returns the
// privacy flag of every user found.
func lockPair(ctx context.Context, tx *sqlx.Tx, a, b int64) (map[int64]bool, error) {
	rows, err := tx.QueryxContext(ctx,
		`SELECT id, is_private FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		pq.Array([]int64{a, b}))
	if err != nil {
		return nil, fmt.Errorf("lock users: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, 2)
	for rows.Next() {
		var id int64
		var private bool
		if err := rows.Scan(&id, &private); err != nil {
			return nil, fmt.Errorf("scan locked user: %w", err)
		}
		found[id] = private
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock users: %w", err)
	}
	return found, nil
}

func edgeStatus(ctx context.Context, q sqlx.QueryerContext, followerID, followeeID int64) (model.FollowStatus, error) {
	var status string
	err := sqlx.GetContext(ctx, q, &status,
		`SELECT status FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FollowNone, nil
	}
	if err != nil {
		return model.FollowNone, fmt.Errorf("get follow status: %w", err)
	}
	return model.StatusFromEdge(status), nil
}

func (r *followRepository) Request(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error) {
	if followerID == followeeID {
		return model.FollowNone, model.ErrCannotFollowSelf
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.FollowNone, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	users, err := lockPair(ctx, tx, followerID, followeeID)
	if err != nil {
		return model.FollowNone, err
	}
	targetPrivate, ok := users[followeeID]
	if !ok {
		return model.FollowNone, model.ErrUserNotFound
	}
	if _, ok := users[followerID]; !ok {
		return model.FollowNone, model.ErrForbidden
	}

	current, err := edgeStatus(ctx, tx, followerID, followeeID)
	if err != nil {
		return model.FollowNone, err
	}
	switch current {
	case model.FollowFollowing:
		return current, model.ErrAlreadyFollowing
	case model.FollowRequested:
		return current, model.ErrFollowRequestAlreadySent
	}

	edge := model.EdgeAccepted
	if targetPrivate {
		edge = model.EdgePending
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followee_id, status) VALUES ($1, $2, $3)`,
		followerID, followeeID, edge); err != nil {
		return model.FollowNone, fmt.Errorf("insert follow: %w", err)
	}

	if edge == model.EdgeAccepted {
		if err := adjustCounts(ctx, tx, followerID, followeeID, 1); err != nil {
			return model.FollowNone, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.FollowNone, fmt.Errorf("commit transaction: %w", err)
	}
	return model.StatusFromEdge(edge), nil
}

func (r *followRepository) Remove(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.FollowNone, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := lockPair(ctx, tx, followerID, followeeID); err != nil {
		return model.FollowNone, err
	}

	var status string
	err = tx.GetContext(ctx, &status,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2 RETURNING status`,
		followerID, followeeID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FollowNone, nil
	}
	if err != nil {
		return model.FollowNone, fmt.Errorf("delete follow: %w", err)
	}

	if status == model.EdgeAccepted {
		if err := adjustCounts(ctx, tx, followerID, followeeID, -1); err != nil {
			return model.FollowNone, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.FollowNone, fmt.Errorf("commit transaction: %w", err)
	}
	return model.StatusFromEdge(status), nil
}

func (r *followRepository) Accept(ctx context.Context, ownerID, requesterID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := lockPair(ctx, tx, requesterID, ownerID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE follows SET status = 'accepted', created_at = NOW()
		WHERE follower_id = $1 AND followee_id = $2 AND status = 'pending'
	`, requesterID, ownerID)
	if err != nil {
		return fmt.Errorf("accept follow request: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	} else if n == 0 {
		return model.ErrFollowRequestNotFound
	}

	if err := adjustCounts(ctx, tx, requesterID, ownerID, 1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *followRepository) Reject(ctx context.Context, ownerID, requesterID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2 AND status = 'pending'`,
		requesterID, ownerID)
	if err != nil {
		return fmt.Errorf("reject follow request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrFollowRequestNotFound
	}
	return nil
}

func (r *followRepository) Status(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error) {
	return edgeStatus(ctx, r.db, followerID, followeeID)
}

func (r *followRepository) GetFollowers(ctx context.Context, userID int64) ([]model.UserSummary, error) {
	return r.listUsers(ctx, `
		SELECT u.id, u.username, u.avatar_url
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = $1 AND f.status = 'accepted'
		ORDER BY f.created_at DESC, u.id
	`, userID)
}

func (r *followRepository) GetFollowing(ctx context.Context, userID int64) ([]model.UserSummary, error) {
	return r.listUsers(ctx, `
		SELECT u.id, u.username, u.avatar_url
		FROM follows f
		JOIN users u ON u.id = f.followee_id
		WHERE f.follower_id = $1 AND f.status = 'accepted'
		ORDER BY f.created_at DESC, u.id
	`, userID)
}

func (r *followRepository) GetPendingRequests(ctx context.Context, ownerID int64) ([]model.UserSummary, error) {
	return r.listUsers(ctx, `
		SELECT u.id, u.username, u.avatar_url
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = $1 AND f.status = 'pending'
		ORDER BY f.created_at ASC, u.id
	`, ownerID)
}

func (r *followRepository) listUsers(ctx context.Context, query string, userID int64) ([]model.UserSummary, error) {
	users := []model.UserSummary{}
	if err := r.db.SelectContext(ctx, &users, query, userID); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *followRepository) GetFollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT follower_id FROM follows WHERE followee_id = $1 AND status = 'accepted'`, userID)
	if err != nil {
		return nil, fmt.Errorf("get follower ids: %w", err)
	}
	return ids, nil
}

func (r *followRepository) GetFolloweeIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT followee_id FROM follows WHERE follower_id = $1 AND status = 'accepted'`, userID)
	if err != nil {
		return nil, fmt.Errorf("get followee ids: %w", err)
	}
	return ids, nil
}

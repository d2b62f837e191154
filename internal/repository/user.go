package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tuweeter/internal/model"
)

const userColumns = `id, username, email, password_hashed, bio, avatar_url, avatar_key, dob, gender,
	is_private, follower_count, following_count, created_at, updated_at`

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (username, email, password_hashed, bio, avatar_url, dob, gender)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_private, follower_count, following_count, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		u.Username, u.Email, u.PasswordHashed, u.Bio, u.AvatarURL, u.DOB, u.Gender,
	).Scan(&u.ID, &u.IsPrivate, &u.FollowerCount, &u.FollowingCount, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrUsernameExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *userRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var u model.User
	if err := r.db.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Search matches query as a case-insensitive substring of the username.
func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	searchQuery := `
		SELECT id, username, avatar_url
		FROM users
		WHERE username ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY follower_count DESC, id
		LIMIT $2
	`
	users := []model.UserSummary{}
	if err := r.db.SelectContext(ctx, &users, searchQuery, escapeLike(query), limit); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *userRepository) UpdateProfile(ctx context.Context, id int64, req *model.UpdateProfileRequest, dob *time.Time) (*model.User, error) {
	query := `
		UPDATE users SET
			username   = COALESCE($2, username),
			bio        = COALESCE($3, bio),
			dob        = COALESCE($4, dob),
			gender     = COALESCE($5, gender),
			avatar_url = COALESCE($6, avatar_url),
			avatar_key = COALESCE($7, avatar_key),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	var u model.User
	err := r.db.GetContext(ctx, &u, query, id, req.Username, req.Bio, dob, req.Gender, req.AvatarURL, req.AvatarKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return nil, model.ErrUsernameTaken
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &u, nil
}

// SetPrivacy only flips the flag; existing edges and pending requests stay.
func (r *userRepository) SetPrivacy(ctx context.Context, id int64, isPrivate bool) (*model.User, error) {
	query := `UPDATE users SET is_private = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns

	var u model.User
	if err := r.db.GetContext(ctx, &u, query, id, isPrivate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("set privacy: %w", err)
	}
	return &u, nil
}

// adjustCounts changes follower_count of followee and following_count of
// follower by delta inside tx.
func adjustCounts(ctx context.Context, tx *sqlx.Tx, followerID, followeeID int64, delta int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET follower_count = follower_count + $1 WHERE id = $2`, delta, followeeID); err != nil {
		return fmt.Errorf("update follower count: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET following_count = following_count + $1 WHERE id = $2`, delta, followerID); err != nil {
		return fmt.Errorf("update following count: %w", err)
	}
	return nil
}

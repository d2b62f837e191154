package model

import "errors"

// FollowStatus is the state of a directed (follower, followee) pair.
type FollowStatus string

const (
	FollowNone      FollowStatus = "none"
	FollowRequested FollowStatus = "requested"
	FollowFollowing FollowStatus = "following"
)

// Edge statuses as stored in follows.status.
const (
	EdgePending  = "pending"
	EdgeAccepted = "accepted"
)

// StatusFromEdge maps a stored edge status to its pair state.
func StatusFromEdge(edge string) FollowStatus {
	switch edge {
	case EdgePending:
		return FollowRequested
	case EdgeAccepted:
		return FollowFollowing
	default:
		return FollowNone
	}
}

type UserSummary struct {
	ID        int64   `db:"id" json:"id"`
	Username  string  `db:"username" json:"username"`
	AvatarURL *string `db:"avatar_url" json:"avatar_url"`
}

// FollowResult is returned by a follow request. Following is set only when
// the request was granted immediately.
type FollowResult struct {
	Status    FollowStatus  `json:"status"`
	Message   string        `json:"message"`
	Following []UserSummary `json:"following,omitempty"`
}

type FollowingResponse struct {
	Following []UserSummary `json:"following"`
}

var (
	ErrAlreadyFollowing         = errors.New("You are already following this user")
	ErrFollowRequestAlreadySent = errors.New("Follow request already sent")
	ErrCannotFollowSelf         = errors.New("You cannot follow yourself")
	ErrFollowRequestNotFound    = errors.New("No follow request found")
)

package service

import (
	"context"
	"time"

	"tuweeter/internal/logging"
	"tuweeter/internal/metrics"
	"tuweeter/internal/model"
	"tuweeter/internal/queue"
	"tuweeter/internal/repository"
)

// FollowService runs the follow state machine. Each transition is a single
// repository transaction; timeline events are published after it commits.
type FollowService struct {
	follows   repository.FollowRepository
	users     repository.UserRepository
	publisher queue.Publisher
	timeout   storeTimeout
}

func NewFollowService(
	follows repository.FollowRepository,
	users repository.UserRepository,
	publisher queue.Publisher,
	timeout time.Duration,
) *FollowService {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &FollowService{
		follows:   follows,
		users:     users,
		publisher: publisher,
		timeout:   storeTimeout(timeout),
	}
}

// RequestFollow follows a public target immediately and files a request
// with a private one.
func (s *FollowService) RequestFollow(ctx context.Context, requesterID, targetID int64) (*model.FollowResult, error) {
	if requesterID == targetID {
		return nil, model.ErrCannotFollowSelf
	}

	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	status, err := s.follows.Request(wctx, requesterID, targetID)
	metrics.ObserveMutation("follow_request", err)
	if err != nil {
		return nil, storeErr(err)
	}

	if status == model.FollowRequested {
		return &model.FollowResult{Status: status, Message: "Follow request sent"}, nil
	}

	s.publish(wctx, queue.NewUserFollowedEvent(requesterID, targetID))

	following, err := s.follows.GetFollowing(wctx, requesterID)
	if err != nil {
		readAfterCommit(ctx, "follow_request", err)
	}
	return &model.FollowResult{Status: status, Message: "Followed", Following: following}, nil
}

// Unfollow removes whatever edge exists from requester to target, which also
// withdraws a pending request. It is a no-op when there is none.
func (s *FollowService) Unfollow(ctx context.Context, requesterID, targetID int64) (*model.FollowingResponse, error) {
	if requesterID == targetID {
		return nil, model.ErrCannotFollowSelf
	}

	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	if _, err := s.users.GetByID(wctx, targetID); err != nil {
		return nil, storeErr(err)
	}

	prior, err := s.follows.Remove(wctx, requesterID, targetID)
	metrics.ObserveMutation("unfollow", err)
	if err != nil {
		return nil, storeErr(err)
	}

	if prior == model.FollowFollowing {
		s.publish(wctx, queue.NewUserUnfollowedEvent(requesterID, targetID))
	}

	following, err := s.follows.GetFollowing(wctx, requesterID)
	if err != nil {
		readAfterCommit(ctx, "unfollow", err)
		following = []model.UserSummary{}
	}
	return &model.FollowingResponse{Following: following}, nil
}

// AcceptRequest turns requesterID's pending request into a follow and
// returns the owner's remaining requests.
func (s *FollowService) AcceptRequest(ctx context.Context, ownerID, requesterID int64) ([]model.UserSummary, error) {
	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	err := s.follows.Accept(wctx, ownerID, requesterID)
	metrics.ObserveMutation("follow_accept", err)
	if err != nil {
		return nil, storeErr(err)
	}

	s.publish(wctx, queue.NewUserFollowedEvent(requesterID, ownerID))

	return s.pendingAfterCommit(wctx, "follow_accept", ownerID), nil
}

// RejectRequest drops requesterID's pending request and returns the owner's
// remaining requests.
func (s *FollowService) RejectRequest(ctx context.Context, ownerID, requesterID int64) ([]model.UserSummary, error) {
	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	err := s.follows.Reject(wctx, ownerID, requesterID)
	metrics.ObserveMutation("follow_reject", err)
	if err != nil {
		return nil, storeErr(err)
	}

	return s.pendingAfterCommit(wctx, "follow_reject", ownerID), nil
}

func (s *FollowService) PendingRequests(ctx context.Context, ownerID int64) ([]model.UserSummary, error) {
	rctx, cancel := s.timeout.read(ctx)
	defer cancel()
	return s.pending(rctx, ownerID)
}

// pendingAfterCommit lists the owner's remaining requests once a transition
// has committed; a failed read yields an empty list rather than an error.
func (s *FollowService) pendingAfterCommit(ctx context.Context, op string, ownerID int64) []model.UserSummary {
	requests, err := s.follows.GetPendingRequests(ctx, ownerID)
	if err != nil {
		readAfterCommit(ctx, op, err)
		return []model.UserSummary{}
	}
	return requests
}

func (s *FollowService) pending(ctx context.Context, ownerID int64) ([]model.UserSummary, error) {
	requests, err := s.follows.GetPendingRequests(ctx, ownerID)
	if err != nil {
		return nil, storeErr(err)
	}
	return requests, nil
}

// publish hands a committed change to the timeline workers. Failures only
// delay cache maintenance, so they are logged and swallowed.
func (s *FollowService) publish(ctx context.Context, event queue.TimelineEvent) {
	msgID, err := s.publisher.Publish(ctx, queue.StreamTimeline, event)
	log := logging.Ctx(ctx)
	if err != nil {
		log.Warn().Err(err).
			Str(logging.FieldEvent, event.Type).
			Int64("follower_id", event.FollowerID).
			Int64("followee_id", event.FolloweeID).
			Msg("failed to publish timeline event")
		return
	}
	log.Debug().Str(logging.FieldEvent, event.Type).Str("msg_id", msgID).Msg("timeline event published")
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tuweeter/internal/model"
	"tuweeter/internal/queue"
)

func newFollowService(g *memGraph, pub queue.Publisher) *FollowService {
	return NewFollowService(g, g, pub, 0)
}

func followerIDs(t *testing.T, g *memGraph, userID int64) []int64 {
	t.Helper()
	users, err := g.GetFollowers(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetFollowers: %v", err)
	}
	return ids(users)
}

func followingIDs(t *testing.T, g *memGraph, userID int64) []int64 {
	t.Helper()
	users, err := g.GetFollowing(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetFollowing: %v", err)
	}
	return ids(users)
}

func pendingIDs(t *testing.T, g *memGraph, ownerID int64) []int64 {
	t.Helper()
	users, err := g.GetPendingRequests(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("GetPendingRequests: %v", err)
	}
	return ids(users)
}

// =============================================================================
// REQUEST FOLLOW
// =============================================================================

func TestFollowService_RequestFollow_PublicTarget(t *testing.T) {
	// ARRANGE
	g := newMemGraph()
	a := g.addUser("alice", false)
	b := g.addUser("bob", false)
	pub := &recordingPublisher{}
	svc := newFollowService(g, pub)

	// ACT
	res, err := svc.RequestFollow(context.Background(), a.ID, b.ID)

	// ASSERT
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Status != model.FollowFollowing {
		t.Errorf("status = %q, want %q", res.Status, model.FollowFollowing)
	}
	if !sameIDs(ids(res.Following), []int64{b.ID}) {
		t.Errorf("following = %v, want [%d]", ids(res.Following), b.ID)
	}
	if !sameIDs(followerIDs(t, g, b.ID), []int64{a.ID}) {
		t.Errorf("bob's followers should be [alice]")
	}
	if !sameIDs(followingIDs(t, g, a.ID), []int64{b.ID}) {
		t.Errorf("alice's following should be [bob]")
	}
	if g.users[b.ID].FollowerCount != 1 || g.users[a.ID].FollowingCount != 1 {
		t.Errorf("counters not updated: follower_count=%d following_count=%d",
			g.users[b.ID].FollowerCount, g.users[a.ID].FollowingCount)
	}
	if got := pub.types(); len(got) != 1 || got[0] != queue.EventUserFollowed {
		t.Errorf("published %v, want [%s]", got, queue.EventUserFollowed)
	}

	// A second request in the same direction is a conflict.
	_, err = svc.RequestFollow(context.Background(), a.ID, b.ID)
	if !errors.Is(err, model.ErrAlreadyFollowing) {
		t.Errorf("error = %v, want %v", err, model.ErrAlreadyFollowing)
	}
}

func TestFollowService_RequestFollow_PrivateTarget(t *testing.T) {
	g := newMemGraph()
	a := g.addUser("alice", false)
	b := g.addUser("bob", true)
	pub := &recordingPublisher{}
	svc := newFollowService(g, pub)

	res, err := svc.RequestFollow(context.Background(), a.ID, b.ID)

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Status != model.FollowRequested {
		t.Errorf("status = %q, want %q", res.Status, model.FollowRequested)
	}
	if res.Following != nil {
		t.Errorf("following should be omitted for a request, got %v", res.Following)
	}
	if !sameIDs(pendingIDs(t, g, b.ID), []int64{a.ID}) {
		t.Errorf("bob's requests should be [alice]")
	}
	if len(followerIDs(t, g, b.ID)) != 0 {
		t.Errorf("alice must not be a follower before acceptance")
	}
	if g.users[b.ID].FollowerCount != 0 {
		t.Errorf("follower_count = %d, want 0", g.users[b.ID].FollowerCount)
	}
	if len(pub.types()) != 0 {
		t.Errorf("no timeline event expected for a pending request, got %v", pub.types())
	}
}

func TestFollowService_RequestFollow_Errors(t *testing.T) {
	g := newMemGraph()
	a := g.addUser("alice", false)
	svc := newFollowService(g, nil)

	tests := []struct {
		name    string
		target  int64
		wantErr error
	}{
		{"self", a.ID, model.ErrCannotFollowSelf},
		{"missing target", 9999, model.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RequestFollow(context.Background(), a.ID, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFollowService_RequestFollow_StoreFailureIsRetryable(t *testing.T) {
	g := newMemGraph()
	a := g.addUser("alice", false)
	b := g.addUser("bob", false)
	g.failWith = context.DeadlineExceeded
	svc := newFollowService(g, nil)

	_, err := svc.RequestFollow(context.Background(), a.ID, b.ID)

	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Errorf("error = %v, want %v", err, model.ErrStoreUnavailable)
	}
}

// =============================================================================
// ACCEPT / REJECT
// =============================================================================

func TestFollowService_CarolAcceptsDave(t *testing.T) {
	g := newMemGraph()
	carol := g.addUser("carol", true)
	dave := g.addUser("dave", false)
	pub := &recordingPublisher{}
	svc := newFollowService(g, pub)
	ctx := context.Background()

	if _, err := svc.RequestFollow(ctx, dave.ID, carol.ID); err != nil {
		t.Fatalf("RequestFollow: %v", err)
	}
	pending, err := svc.PendingRequests(ctx, carol.ID)
	if err != nil {
		t.Fatalf("PendingRequests: %v", err)
	}
	if !sameIDs(ids(pending), []int64{dave.ID}) {
		t.Fatalf("carol's requests = %v, want [dave]", ids(pending))
	}

	// A duplicate request while one is pending is a conflict.
	_, err = svc.RequestFollow(ctx, dave.ID, carol.ID)
	if !errors.Is(err, model.ErrFollowRequestAlreadySent) {
		t.Errorf("error = %v, want %v", err, model.ErrFollowRequestAlreadySent)
	}
	if err != nil && err.Error() != "Follow request already sent" {
		t.Errorf("message = %q", err.Error())
	}

	remaining, err := svc.AcceptRequest(ctx, carol.ID, dave.ID)
	if err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}

	if len(remaining) != 0 {
		t.Errorf("remaining requests = %v, want none", ids(remaining))
	}
	if !sameIDs(followerIDs(t, g, carol.ID), []int64{dave.ID}) {
		t.Errorf("carol's followers should be [dave]")
	}
	if !sameIDs(followingIDs(t, g, dave.ID), []int64{carol.ID}) {
		t.Errorf("dave's following should be [carol]")
	}
	if g.users[carol.ID].FollowerCount != 1 || g.users[dave.ID].FollowingCount != 1 {
		t.Errorf("counters not updated on accept")
	}
	if got := pub.types(); len(got) != 1 || got[0] != queue.EventUserFollowed {
		t.Errorf("published %v, want [%s]", got, queue.EventUserFollowed)
	}
}

func TestFollowService_RejectNeverAddsFollower(t *testing.T) {
	g := newMemGraph()
	b := g.addUser("bob", true)
	a := g.addUser("alice", false)
	c := g.addUser("chris", false)
	svc := newFollowService(g, nil)
	ctx := context.Background()

	svc.RequestFollow(ctx, a.ID, b.ID)
	svc.RequestFollow(ctx, c.ID, b.ID)

	remaining, err := svc.RejectRequest(ctx, b.ID, a.ID)

	if err != nil {
		t.Fatalf("RejectRequest: %v", err)
	}
	if !sameIDs(ids(remaining), []int64{c.ID}) {
		t.Errorf("remaining = %v, want [chris]", ids(remaining))
	}
	if len(followerIDs(t, g, b.ID)) != 0 {
		t.Errorf("reject must not add a follower")
	}
	if g.users[b.ID].FollowerCount != 0 {
		t.Errorf("follower_count = %d, want 0", g.users[b.ID].FollowerCount)
	}
}

func TestFollowService_AcceptRejectWithoutRequest(t *testing.T) {
	g := newMemGraph()
	b := g.addUser("bob", true)
	a := g.addUser("alice", false)
	svc := newFollowService(g, nil)

	if _, err := svc.AcceptRequest(context.Background(), b.ID, a.ID); !errors.Is(err, model.ErrFollowRequestNotFound) {
		t.Errorf("accept error = %v, want %v", err, model.ErrFollowRequestNotFound)
	}
	if _, err := svc.RejectRequest(context.Background(), b.ID, a.ID); !errors.Is(err, model.ErrFollowRequestNotFound) {
		t.Errorf("reject error = %v, want %v", err, model.ErrFollowRequestNotFound)
	}
}

func TestFollowService_AcceptAfterPrivacyFlipStillWorks(t *testing.T) {
	g := newMemGraph()
	b := g.addUser("bob", true)
	a := g.addUser("alice", false)
	svc := newFollowService(g, nil)
	ctx := context.Background()

	svc.RequestFollow(ctx, a.ID, b.ID)
	g.SetPrivacy(ctx, b.ID, false)

	if _, err := svc.AcceptRequest(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("pending requests must survive a privacy flip: %v", err)
	}
	if !sameIDs(followerIDs(t, g, b.ID), []int64{a.ID}) {
		t.Errorf("alice should follow bob")
	}
}

// =============================================================================
// UNFOLLOW
// =============================================================================

func TestFollowService_UnfollowIsIdempotent(t *testing.T) {
	g := newMemGraph()
	a := g.addUser("alice", false)
	b := g.addUser("bob", false)
	pub := &recordingPublisher{}
	svc := newFollowService(g, pub)
	ctx := context.Background()
	svc.RequestFollow(ctx, a.ID, b.ID)

	first, err := svc.Unfollow(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("first Unfollow: %v", err)
	}
	afterOnce := *g.users[b.ID]

	second, err := svc.Unfollow(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("second Unfollow: %v", err)
	}

	if len(first.Following) != 0 || len(second.Following) != 0 {
		t.Errorf("following should be empty after unfollow")
	}
	if g.users[b.ID].FollowerCount != afterOnce.FollowerCount || afterOnce.FollowerCount != 0 {
		t.Errorf("follower_count = %d after twice, %d after once; want 0",
			g.users[b.ID].FollowerCount, afterOnce.FollowerCount)
	}
	want := []string{queue.EventUserFollowed, queue.EventUserUnfollowed}
	got := pub.types()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("published %v, want %v", got, want)
	}
}

func TestFollowService_UnfollowCancelsPendingRequest(t *testing.T) {
	g := newMemGraph()
	b := g.addUser("bob", true)
	a := g.addUser("alice", false)
	pub := &recordingPublisher{}
	svc := newFollowService(g, pub)
	ctx := context.Background()
	svc.RequestFollow(ctx, a.ID, b.ID)

	if _, err := svc.Unfollow(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}

	if len(pendingIDs(t, g, b.ID)) != 0 {
		t.Errorf("pending request should be withdrawn")
	}
	if len(pub.types()) != 0 {
		t.Errorf("withdrawing a request publishes nothing, got %v", pub.types())
	}
	if _, err := svc.RequestFollow(ctx, a.ID, b.ID); err != nil {
		t.Errorf("a new request after withdrawal should succeed: %v", err)
	}
}

func TestFollowService_UnfollowErrors(t *testing.T) {
	g := newMemGraph()
	a := g.addUser("alice", false)
	svc := newFollowService(g, nil)

	if _, err := svc.Unfollow(context.Background(), a.ID, a.ID); !errors.Is(err, model.ErrCannotFollowSelf) {
		t.Errorf("self error = %v, want %v", err, model.ErrCannotFollowSelf)
	}
	if _, err := svc.Unfollow(context.Background(), a.ID, 9999); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("missing error = %v, want %v", err, model.ErrUserNotFound)
	}
}

func TestFollowService_PublishFailureDoesNotFailFollow(t *testing.T) {
	g := newMemGraph()
	a := g.addUser("alice", false)
	b := g.addUser("bob", false)
	svc := newFollowService(g, &recordingPublisher{err: errors.New("redis down")})

	res, err := svc.RequestFollow(context.Background(), a.ID, b.ID)

	if err != nil {
		t.Fatalf("publish failure must not surface: %v", err)
	}
	if res.Status != model.FollowFollowing {
		t.Errorf("status = %q, want %q", res.Status, model.FollowFollowing)
	}
}

func TestFollowService_ConcurrentRequestsCreateOneEdge(t *testing.T) {
	g := newMemGraph()
	a := g.addUser("alice", false)
	b := g.addUser("bob", false)
	svc := newFollowService(g, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RequestFollow(context.Background(), a.ID, b.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrAlreadyFollowing):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflicts != 19 {
		t.Errorf("ok=%d conflicts=%d, want 1 and 19", ok, conflicts)
	}
	if g.users[b.ID].FollowerCount != 1 {
		t.Errorf("follower_count = %d, want 1", g.users[b.ID].FollowerCount)
	}
}

// failingListReads fails the list queries a transition runs after commit.
type failingListReads struct {
	*memGraph
	err error
}

func (f failingListReads) GetFollowing(ctx context.Context, userID int64) ([]model.UserSummary, error) {
	return nil, f.err
}

func (f failingListReads) GetPendingRequests(ctx context.Context, ownerID int64) ([]model.UserSummary, error) {
	return nil, f.err
}

func TestFollowService_ReadFailureAfterCommitIsNotAnError(t *testing.T) {
	// ARRANGE
	g := newMemGraph()
	alice := g.addUser("alice", false)
	bob := g.addUser("bob", false)
	carol := g.addUser("carol", true)
	pub := &recordingPublisher{}
	svc := NewFollowService(failingListReads{g, context.DeadlineExceeded}, g, pub, 0)
	ctx := context.Background()

	// ACT
	followed, followErr := svc.RequestFollow(ctx, alice.ID, bob.ID)
	if _, err := svc.RequestFollow(ctx, alice.ID, carol.ID); err != nil {
		t.Fatalf("RequestFollow private: %v", err)
	}
	remaining, acceptErr := svc.AcceptRequest(ctx, carol.ID, alice.ID)
	unfollowed, unfollowErr := svc.Unfollow(ctx, alice.ID, bob.ID)

	// ASSERT
	if followErr != nil || acceptErr != nil || unfollowErr != nil {
		t.Fatalf("errors = %v / %v / %v, want none", followErr, acceptErr, unfollowErr)
	}
	if followed.Status != model.FollowFollowing {
		t.Errorf("status = %q, want %q", followed.Status, model.FollowFollowing)
	}
	if remaining == nil || len(remaining) != 0 {
		t.Errorf("remaining = %v, want empty list", remaining)
	}
	if unfollowed.Following == nil {
		t.Error("following should be an empty list, not nil")
	}
	if got, _ := g.Status(ctx, alice.ID, carol.ID); got != model.FollowFollowing {
		t.Errorf("alice -> carol = %q, want %q", got, model.FollowFollowing)
	}
	if got := pub.types(); len(got) != 3 {
		t.Errorf("published %v, want followed, followed, unfollowed", got)
	}
}

package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tuweeter/internal/cache"
	"tuweeter/internal/model"
	"tuweeter/internal/queue"
	"tuweeter/internal/realtime"
	"tuweeter/internal/visibility"
)

// =============================================================================
// IN-MEMORY GRAPH
// =============================================================================
//
// memGraph implements every repository interface over maps, with the same
// error contract as the Postgres repositories. One mutex plays the role of
// the row locks, so each call is atomic like a transaction.

type edgeKey struct{ follower, followee int64 }

type memEdge struct {
	status string
	seq    int64
}

type memGraph struct {
	mu  sync.Mutex
	seq int64

	users        map[int64]*model.User
	edges        map[edgeKey]memEdge
	tweets       map[int64]*model.Tweet
	comments     map[int64][]model.Comment
	commentLikes map[int64][]int64

	// failWith, when set, is returned by every call.
	failWith error
}

func newMemGraph() *memGraph {
	return &memGraph{
		users:        map[int64]*model.User{},
		edges:        map[edgeKey]memEdge{},
		tweets:       map[int64]*model.Tweet{},
		comments:     map[int64][]model.Comment{},
		commentLikes: map[int64][]int64{},
	}
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (g *memGraph) next() (int64, time.Time) {
	g.seq++
	return g.seq, baseTime.Add(time.Duration(g.seq) * time.Second)
}

// addUser is a test helper that bypasses validation.
func (g *memGraph) addUser(username string, private bool) *model.User {
	u := &model.User{Username: username, Email: username + "@example.com", IsPrivate: private}
	if err := g.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

// ---- UserRepository ----

func (g *memGraph) Create(ctx context.Context, u *model.User) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	for _, existing := range g.users {
		if strings.EqualFold(existing.Username, u.Username) || existing.Email == u.Email {
			return model.ErrUsernameExists
		}
	}
	u.ID, u.CreatedAt = g.next()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	g.users[u.ID] = &stored
	return nil
}

func (g *memGraph) GetByID(ctx context.Context, id int64) (*model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	u, ok := g.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (g *memGraph) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return g.findUser(func(u *model.User) bool { return u.Username == username })
}

func (g *memGraph) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return g.findUser(func(u *model.User) bool { return u.Email == email })
}

func (g *memGraph) findUser(match func(*model.User) bool) (*model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	for _, u := range g.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (g *memGraph) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	out := []model.UserSummary{}
	for _, id := range g.sortedUserIDs() {
		u := g.users[id]
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			out = append(out, u.Summary())
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (g *memGraph) sortedUserIDs() []int64 {
	ids := make([]int64, 0, len(g.users))
	for id := range g.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *memGraph) UpdateProfile(ctx context.Context, id int64, req *model.UpdateProfileRequest, dob *time.Time) (*model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	u, ok := g.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	if req.Username != nil {
		for otherID, other := range g.users {
			if otherID != id && strings.EqualFold(other.Username, *req.Username) {
				return nil, model.ErrUsernameTaken
			}
		}
		u.Username = *req.Username
	}
	if req.Bio != nil {
		u.Bio = req.Bio
	}
	if dob != nil {
		u.DOB = dob
	}
	if req.Gender != nil {
		u.Gender = req.Gender
	}
	if req.AvatarURL != nil {
		u.AvatarURL = req.AvatarURL
	}
	if req.AvatarKey != nil {
		u.AvatarKey = req.AvatarKey
	}
	cp := *u
	return &cp, nil
}

func (g *memGraph) SetPrivacy(ctx context.Context, id int64, isPrivate bool) (*model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	u, ok := g.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	u.IsPrivate = isPrivate
	cp := *u
	return &cp, nil
}

// ---- FollowRepository ----

func (g *memGraph) Request(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return model.FollowNone, g.failWith
	}
	if followerID == followeeID {
		return model.FollowNone, model.ErrCannotFollowSelf
	}
	target, ok := g.users[followeeID]
	if !ok {
		return model.FollowNone, model.ErrUserNotFound
	}
	if _, ok := g.users[followerID]; !ok {
		return model.FollowNone, model.ErrForbidden
	}

	key := edgeKey{followerID, followeeID}
	if e, ok := g.edges[key]; ok {
		if e.status == model.EdgeAccepted {
			return model.FollowFollowing, model.ErrAlreadyFollowing
		}
		return model.FollowRequested, model.ErrFollowRequestAlreadySent
	}

	status := model.EdgeAccepted
	if target.IsPrivate {
		status = model.EdgePending
	}
	seq, _ := g.next()
	g.edges[key] = memEdge{status: status, seq: seq}
	if status == model.EdgeAccepted {
		g.adjust(followerID, followeeID, 1)
	}
	return model.StatusFromEdge(status), nil
}

func (g *memGraph) adjust(followerID, followeeID int64, delta int) {
	g.users[followeeID].FollowerCount += delta
	g.users[followerID].FollowingCount += delta
}

func (g *memGraph) Remove(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return model.FollowNone, g.failWith
	}
	key := edgeKey{followerID, followeeID}
	e, ok := g.edges[key]
	if !ok {
		return model.FollowNone, nil
	}
	delete(g.edges, key)
	if e.status == model.EdgeAccepted {
		g.adjust(followerID, followeeID, -1)
	}
	return model.StatusFromEdge(e.status), nil
}

func (g *memGraph) Accept(ctx context.Context, ownerID, requesterID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	key := edgeKey{requesterID, ownerID}
	e, ok := g.edges[key]
	if !ok || e.status != model.EdgePending {
		return model.ErrFollowRequestNotFound
	}
	seq, _ := g.next()
	g.edges[key] = memEdge{status: model.EdgeAccepted, seq: seq}
	g.adjust(requesterID, ownerID, 1)
	return nil
}

func (g *memGraph) Reject(ctx context.Context, ownerID, requesterID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	key := edgeKey{requesterID, ownerID}
	e, ok := g.edges[key]
	if !ok || e.status != model.EdgePending {
		return model.ErrFollowRequestNotFound
	}
	delete(g.edges, key)
	return nil
}

func (g *memGraph) Status(ctx context.Context, followerID, followeeID int64) (model.FollowStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return model.FollowNone, g.failWith
	}
	return model.StatusFromEdge(g.edges[edgeKey{followerID, followeeID}].status), nil
}

// listEdges returns the users on the far side of matching edges, ordered by
// edge sequence.
func (g *memGraph) listEdges(match func(edgeKey, memEdge) (int64, bool), newestFirst bool) []model.UserSummary {
	type hit struct {
		user int64
		seq  int64
	}
	var hits []hit
	for k, e := range g.edges {
		if id, ok := match(k, e); ok {
			hits = append(hits, hit{id, e.seq})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if newestFirst {
			return hits[i].seq > hits[j].seq
		}
		return hits[i].seq < hits[j].seq
	})
	out := []model.UserSummary{}
	for _, h := range hits {
		out = append(out, g.users[h.user].Summary())
	}
	return out
}

func (g *memGraph) GetFollowers(ctx context.Context, userID int64) ([]model.UserSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	return g.listEdges(func(k edgeKey, e memEdge) (int64, bool) {
		return k.follower, k.followee == userID && e.status == model.EdgeAccepted
	}, true), nil
}

func (g *memGraph) GetFollowing(ctx context.Context, userID int64) ([]model.UserSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	return g.listEdges(func(k edgeKey, e memEdge) (int64, bool) {
		return k.followee, k.follower == userID && e.status == model.EdgeAccepted
	}, true), nil
}

func (g *memGraph) GetPendingRequests(ctx context.Context, ownerID int64) ([]model.UserSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	return g.listEdges(func(k edgeKey, e memEdge) (int64, bool) {
		return k.follower, k.followee == ownerID && e.status == model.EdgePending
	}, false), nil
}

func (g *memGraph) GetFollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	followers, err := g.GetFollowers(ctx, userID)
	return summaryIDs(followers), err
}

func (g *memGraph) GetFolloweeIDs(ctx context.Context, userID int64) ([]int64, error) {
	following, err := g.GetFollowing(ctx, userID)
	return summaryIDs(following), err
}

func summaryIDs(users []model.UserSummary) []int64 {
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

// ---- TweetRepository ----

func (g *memGraph) hydrate(t *model.Tweet) model.Tweet {
	author := g.users[t.AuthorID]
	cp := *t
	summary := author.Summary()
	cp.Author = &summary
	cp.AuthorPrivate = author.IsPrivate
	cp.Likes = append([]int64{}, t.Likes...)
	cp.Comments = g.commentsOf(t.ID)
	return cp
}

func (g *memGraph) commentsOf(tweetID int64) []model.Comment {
	out := []model.Comment{}
	for _, c := range g.comments[tweetID] {
		c.Likes = append([]int64{}, g.commentLikes[c.ID]...)
		out = append(out, c)
	}
	return out
}

// newestTweets returns hydrated tweets matching keep, newest first.
func (g *memGraph) newestTweets(keep func(*model.Tweet) bool) []model.Tweet {
	out := []model.Tweet{}
	for _, t := range g.tweets {
		if keep(t) {
			out = append(out, g.hydrate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func window(tweets []model.Tweet, offset, limit int) []model.Tweet {
	if offset >= len(tweets) {
		return []model.Tweet{}
	}
	end := offset + limit
	if end > len(tweets) {
		end = len(tweets)
	}
	return tweets[offset:end]
}

// tweetRepo and commentRepo expose memGraph under the method names of the
// tweet and comment interfaces, which clash with the user repository's.
type tweetRepo struct{ g *memGraph }

func (r tweetRepo) Create(ctx context.Context, authorID int64, content string, image, imageKey *string) (*model.Tweet, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	if _, ok := g.users[authorID]; !ok {
		return nil, model.ErrForbidden
	}
	id, at := g.next()
	t := &model.Tweet{ID: id, AuthorID: authorID, Content: content, Image: image, CreatedAt: at, UpdatedAt: at, Likes: []int64{}}
	g.tweets[id] = t
	out := g.hydrate(t)
	return &out, nil
}

func (r tweetRepo) GetByID(ctx context.Context, id int64) (*model.Tweet, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	t, ok := g.tweets[id]
	if !ok {
		return nil, model.ErrTweetNotFound
	}
	out := g.hydrate(t)
	return &out, nil
}

func (r tweetRepo) GetByIDs(ctx context.Context, ids []int64) ([]model.Tweet, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	out := []model.Tweet{}
	for _, id := range ids {
		if t, ok := g.tweets[id]; ok {
			out = append(out, g.hydrate(t))
		}
	}
	return out, nil
}

func (r tweetRepo) ListVisible(ctx context.Context, viewerID int64, offset, limit int) ([]model.Tweet, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	all := g.newestTweets(func(t *model.Tweet) bool {
		author := visibility.Author{ID: t.AuthorID, IsPrivate: g.users[t.AuthorID].IsPrivate}
		follows := g.edges[edgeKey{viewerID, t.AuthorID}].status == model.EdgeAccepted
		return visibility.CanView(viewerID, author, follows)
	})
	return window(all, offset, limit), nil
}

func (r tweetRepo) ListByAuthors(ctx context.Context, authorIDs []int64, offset, limit int) ([]model.Tweet, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	set := map[int64]bool{}
	for _, id := range authorIDs {
		set[id] = true
	}
	all := g.newestTweets(func(t *model.Tweet) bool { return set[t.AuthorID] })
	return window(all, offset, limit), nil
}

func (r tweetRepo) GetRecentByAuthor(ctx context.Context, authorID int64, limit int) ([]cache.TweetScore, error) {
	return r.GetFeedTweetIDs(ctx, []int64{authorID}, limit)
}

func (r tweetRepo) GetFeedTweetIDs(ctx context.Context, authorIDs []int64, limit int) ([]cache.TweetScore, error) {
	tweets, err := r.ListByAuthors(ctx, authorIDs, 0, limit)
	if err != nil {
		return nil, err
	}
	scores := make([]cache.TweetScore, len(tweets))
	for i, t := range tweets {
		scores[i] = cache.TweetScore{TweetID: t.ID, Timestamp: t.CreatedAt.UnixMilli()}
	}
	return scores, nil
}

func (r tweetRepo) ToggleLike(ctx context.Context, tweetID, userID int64) (bool, []int64, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return false, nil, g.failWith
	}
	t, ok := g.tweets[tweetID]
	if !ok {
		return false, nil, model.ErrTweetNotFound
	}
	var liked bool
	t.Likes, liked = toggle(t.Likes, userID)
	return liked, append([]int64{}, t.Likes...), nil
}

func toggle(set []int64, id int64) ([]int64, bool) {
	for i, v := range set {
		if v == id {
			return append(set[:i:i], set[i+1:]...), false
		}
	}
	return append(set, id), true
}

// ---- CommentRepository ----

type commentRepo struct{ g *memGraph }

func (r commentRepo) Create(ctx context.Context, tweetID, userID int64, text string) (*model.Comment, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	u, ok := g.users[userID]
	if !ok {
		return nil, model.ErrForbidden
	}
	if _, ok := g.tweets[tweetID]; !ok {
		return nil, model.ErrTweetNotFound
	}
	id, at := g.next()
	c := model.Comment{
		ID: id, TweetID: tweetID, UserID: userID, Username: u.Username, AvatarURL: u.AvatarURL,
		Text: text, CreatedAt: at, User: u.Summary(), Likes: []int64{},
	}
	g.comments[tweetID] = append([]model.Comment{c}, g.comments[tweetID]...)
	return &c, nil
}

func (r commentRepo) ListByTweet(ctx context.Context, tweetID int64) ([]model.Comment, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	if _, ok := g.tweets[tweetID]; !ok {
		return nil, model.ErrTweetNotFound
	}
	return g.commentsOf(tweetID), nil
}

func (r commentRepo) ToggleLike(ctx context.Context, tweetID, commentID, userID int64) (bool, error) {
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return false, g.failWith
	}
	if _, ok := g.tweets[tweetID]; !ok {
		return false, model.ErrTweetNotFound
	}
	found := false
	for _, c := range g.comments[tweetID] {
		if c.ID == commentID {
			found = true
		}
	}
	if !found {
		return false, model.ErrCommentNotFound
	}
	var liked bool
	g.commentLikes[commentID], liked = toggle(g.commentLikes[commentID], userID)
	return liked, nil
}

// =============================================================================
// RECORDERS AND MOCKS
// =============================================================================

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.TimelineEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, stream string, event queue.TimelineEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "1-0", nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *recordingBroadcaster) Publish(ctx context.Context, ev realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

type mockMediaStore struct {
	uploadAvatarFn     func(ctx context.Context, up Upload) (*model.UploadResult, error)
	uploadTweetImageFn func(ctx context.Context, up Upload) (*model.UploadResult, error)
	deleted            []string
}

func (m *mockMediaStore) UploadAvatar(ctx context.Context, up Upload) (*model.UploadResult, error) {
	if m.uploadAvatarFn != nil {
		return m.uploadAvatarFn(ctx, up)
	}
	return &model.UploadResult{URL: "https://cdn.example.com/avatars/new.jpg", Key: "avatars/new.jpg"}, nil
}

func (m *mockMediaStore) UploadTweetImage(ctx context.Context, up Upload) (*model.UploadResult, error) {
	if m.uploadTweetImageFn != nil {
		return m.uploadTweetImageFn(ctx, up)
	}
	return &model.UploadResult{URL: "https://cdn.example.com/tweets/img.jpg", Key: "tweets/img.jpg"}, nil
}

func (m *mockMediaStore) DeleteObject(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

type stubTokens struct{}

func (stubTokens) IssueToken(userID int64) (string, error) { return "token", nil }

func ids(users []model.UserSummary) []int64 { return summaryIDs(users) }

func sameIDs(got, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

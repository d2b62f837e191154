// Package visibility decides whether a viewer may see an author's content.
package visibility

// Anonymous is the viewer id used for requests without an identity.
const Anonymous int64 = 0

// Author is the part of a user record the decision depends on.
type Author struct {
	ID        int64
	IsPrivate bool
}

// CanView reports whether viewer may see author's tweets, follower lists and
// profile details. viewerFollows must be true only when an accepted follow
// edge from viewer to author exists; pending requests do not grant access.
func CanView(viewer int64, author Author, viewerFollows bool) bool {
	if viewer != Anonymous && viewer == author.ID {
		return true
	}
	if !author.IsPrivate {
		return true
	}
	return viewer != Anonymous && viewerFollows
}

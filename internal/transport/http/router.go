package http

import (
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tuweeter/internal/handler"
	"tuweeter/internal/logging"
	"tuweeter/internal/metrics"
	authmw "tuweeter/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	AuthHandler   *handler.AuthHandler
	UserHandler   *handler.UserHandler
	FollowHandler *handler.FollowHandler
	TweetHandler  *handler.TweetHandler
	FeedHandler   *handler.FeedHandler
	WSHandler     *handler.WSHandler
	RateLimiter   *authmw.RateLimiter
	JWTSecret     string

	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(authmw.TrustedRealIP(cfg.TrustedProxies))
	r.Use(logging.HTTPMiddleware)
	r.Use(chimw.Recoverer)

	// Operational endpoints are not rate limited
	r.Get("/health", handler.Health)
	r.Method("GET", "/metrics", metrics.Handler())

	optional := authmw.OptionalAuthMiddleware(cfg.JWTSecret)
	required := authmw.AuthMiddleware(cfg.JWTSecret)

	r.With(optional).Get("/ws", cfg.WSHandler.Serve)

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", cfg.AuthHandler.Signup)
			r.Post("/login", cfg.AuthHandler.Login)
			r.With(required).Get("/me", cfg.AuthHandler.Me)
			r.With(required).Put("/profile", cfg.AuthHandler.UpdateProfile)
		})

		r.Route("/tweets", func(r chi.Router) {
			r.With(optional).Get("/", cfg.FeedHandler.GetFeed)

			r.Group(func(r chi.Router) {
				r.Use(required)
				r.Post("/", cfg.TweetHandler.Create)
				r.Post("/{id}/like", cfg.TweetHandler.ToggleLike)
				r.Post("/{id}/comment", cfg.TweetHandler.AddComment)
				r.Post("/{tweetId}/comments/{commentId}/like", cfg.TweetHandler.ToggleCommentLike)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.With(optional).Get("/search", cfg.UserHandler.Search)

			r.Group(func(r chi.Router) {
				r.Use(required)
				r.Get("/requests/pending", cfg.FollowHandler.PendingRequests)
				r.Put("/requests/{id}/accept", cfg.FollowHandler.AcceptRequest)
				r.Put("/requests/{id}/reject", cfg.FollowHandler.RejectRequest)
				r.Put("/privacy", cfg.UserHandler.SetPrivacy)
				r.Put("/{id}/follow", cfg.FollowHandler.Follow)
				r.Put("/{id}/unfollow", cfg.FollowHandler.Unfollow)
			})

			r.With(optional).Get("/{username}", cfg.UserHandler.GetProfile)
		})
	})

	return r
}

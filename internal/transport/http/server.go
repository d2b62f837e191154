package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tuweeter/internal/cache"
	"tuweeter/internal/config"
	"tuweeter/internal/database"
	"tuweeter/internal/handler"
	"tuweeter/internal/logging"
	"tuweeter/internal/queue"
	"tuweeter/internal/realtime"
	redisclient "tuweeter/internal/redis"
	"tuweeter/internal/repository"
	"tuweeter/internal/service"
	authmw "tuweeter/internal/transport/http/middleware"
	"tuweeter/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Run wires every component and serves until SIGINT or SIGTERM.
func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log := logging.Component("server")

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	trusted, err := authmw.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	tweetRepo := repository.NewTweetRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	// 3. Realtime hub, relayed through Redis when available
	hub := realtime.NewHub(followRepo, realtime.HubConfig{})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	var broadcaster realtime.Broadcaster = hub
	var feedCache cache.FeedCache
	var publisher queue.Publisher = queue.NopPublisher{}

	// 4. Optional Redis: feed cache, timeline workers, event relay
	if cfg.RedisURL != "" {
		rdb, err := redisclient.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, following feeds read from postgres")
		} else {
			defer rdb.Close()

			redisCache := cache.NewFeedCache(rdb)
			feedCache = redisCache
			publisher = queue.NewPublisher(rdb)

			manager := worker.NewManager(
				queue.NewConsumer(rdb),
				worker.NewHandler(redisCache, followRepo, tweetRepo),
				worker.DefaultManagerConfig(),
			)
			if err := manager.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("timeline workers not started")
			} else {
				defer manager.Stop()
			}

			relay := realtime.NewRedisRelay(rdb, hub)
			go relay.Run(ctx)
			broadcaster = relay
		}
	}

	// 5. Optional media storage
	var media service.MediaStore
	if mediaService, err := service.NewMediaService(ctx, cfg); err != nil {
		log.Warn().Err(err).Msg("image uploads disabled")
	} else {
		media = mediaService
	}

	// 6. Services and handlers
	authService := service.NewAuthService(cfg)
	userService := service.NewUserService(userRepo, followRepo, tweetRepo, authService, media, cfg.DefaultAvatarURL, cfg.StoreTimeout)
	followService := service.NewFollowService(followRepo, userRepo, publisher, cfg.StoreTimeout)
	tweetService := service.NewTweetService(tweetRepo, commentRepo, broadcaster, publisher, media, cfg.StoreTimeout)
	feedService := service.NewFeedService(tweetRepo, followRepo, feedCache, cfg.StoreTimeout)

	router := NewRouter(RouterConfig{
		AuthHandler:   handler.NewAuthHandler(userService),
		UserHandler:   handler.NewUserHandler(userService),
		FollowHandler: handler.NewFollowHandler(followService),
		TweetHandler:  handler.NewTweetHandler(tweetService),
		FeedHandler:   handler.NewFeedHandler(feedService),
		WSHandler: handler.NewWSHandler(hub, realtime.ClientConfig{
			WriteWait:      cfg.WSWriteWait,
			PongWait:       cfg.WSPongWait,
			MaxMessageSize: cfg.WSMaxMessageSize,
			SendBuffer:     cfg.WSSendBuffer,
		}),
		RateLimiter: authmw.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		JWTSecret:   cfg.JWTSecret,

		TrustedProxies: trusted,
	})

	// 7. Serve until a signal arrives
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Websocket connections are hijacked, so Shutdown does not wait for them;
	// the hub closes them once ctx is done.
	stop()
	<-hubDone
	return nil
}

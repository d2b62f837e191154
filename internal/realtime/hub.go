package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tuweeter/internal/logging"
	"tuweeter/internal/metrics"
	"tuweeter/internal/visibility"
)

const (
	DefaultEventBuffer    = 256
	DefaultResolveTimeout = 2 * time.Second
)

// FollowerResolver returns the accepted followers of a user.
type FollowerResolver interface {
	GetFollowerIDs(ctx context.Context, userID int64) ([]int64, error)
}

type HubConfig struct {
	EventBuffer    int
	ResolveTimeout time.Duration
}

// delivery is an encoded event together with its resolved audience.
type delivery struct {
	name    string
	msg     []byte
	canView func(viewer int64) bool
}

// Hub is the registry of live connections. It is created at server start,
// driven by Run and drained when Run's context is cancelled. Audiences are
// resolved on a separate goroutine so follower lookups never stall the
// registry loop.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	events     chan Event
	ready      chan delivery
	done       chan struct{}

	followers      FollowerResolver
	resolveTimeout time.Duration

	mu     sync.RWMutex
	logger zerolog.Logger
}

func NewHub(followers FollowerResolver, cfg HubConfig) *Hub {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultResolveTimeout
	}
	return &Hub{
		clients:        make(map[*Client]struct{}),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		events:         make(chan Event, cfg.EventBuffer),
		ready:          make(chan delivery),
		done:           make(chan struct{}),
		followers:      followers,
		resolveTimeout: cfg.ResolveTimeout,
		logger:         logging.Component("hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	go h.resolve(ctx)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info().Msg("hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			metrics.WSConnections.Inc()
			h.logger.Debug().Str("client_id", c.ID).Int64(logging.FieldUserID, c.UserID).Msg("client registered")

		case c := <-h.unregister:
			h.remove(c)

		case d := <-h.ready:
			h.dispatch(d)
		}
	}
}

// resolve encodes queued events and works out who may see them, in order.
func (h *Hub) resolve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			msg, err := ev.frame()
			if err != nil {
				h.logger.Error().Err(err).Str(logging.FieldEvent, ev.Name).Msg("encode frame")
				continue
			}
			d := delivery{name: ev.Name, msg: msg, canView: h.audience(ctx, ev)}
			select {
			case h.ready <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Register adds c to the hub. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish enqueues ev, dropping it when the buffer is full.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	select {
	case h.events <- ev:
		metrics.BroadcastEvents.WithLabelValues(ev.Name).Inc()
	default:
		metrics.IncDropped("hub_full")
		logging.Ctx(ctx).Warn().Str(logging.FieldEvent, ev.Name).Msg("realtime buffer full, event dropped")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dispatch(d delivery) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if !d.canView(c.UserID) {
			continue
		}
		select {
		case c.send <- d.msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.IncDropped("slow_client")
		h.logger.Warn().Str("client_id", c.ID).Str(logging.FieldEvent, d.name).Msg("send buffer full, dropping client")
		h.remove(c)
	}
}

// audience returns the per-viewer filter for ev. Followers of a private
// author are resolved once per event; if that fails only the author gets it.
func (h *Hub) audience(ctx context.Context, ev Event) func(viewer int64) bool {
	author := visibility.Author{ID: ev.AuthorID, IsPrivate: ev.AuthorPrivate}
	if !author.IsPrivate {
		return func(viewer int64) bool { return visibility.CanView(viewer, author, false) }
	}

	followers := map[int64]bool{}
	if h.followers != nil {
		rctx, cancel := context.WithTimeout(ctx, h.resolveTimeout)
		ids, err := h.followers.GetFollowerIDs(rctx, ev.AuthorID)
		cancel()
		if err != nil {
			metrics.IncDropped("resolve_failed")
			h.logger.Warn().Err(err).Int64(logging.FieldUserID, ev.AuthorID).Msg("resolve followers")
		}
		for _, id := range ids {
			followers[id] = true
		}
	}
	return func(viewer int64) bool {
		return visibility.CanView(viewer, author, followers[viewer])
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.WSConnections.Dec()
		h.logger.Debug().Str("client_id", c.ID).Msg("client unregistered")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		metrics.WSConnections.Dec()
	}
}

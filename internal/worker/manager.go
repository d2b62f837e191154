package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tuweeter/internal/logging"
	"tuweeter/internal/queue"
)

const (
	DefaultWorkerCount  = 2
	DefaultBatchSize    = 10
	DefaultBlockTimeout = 5 * time.Second
	readBackoff         = time.Second
)

// Manager runs worker goroutines that consume the timeline stream.
type Manager struct {
	consumer    queue.Consumer
	handler     *Handler
	workerCount int
	batchSize   int64
	blockTime   time.Duration
	instance    string
	log         zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type ManagerConfig struct {
	WorkerCount  int
	BatchSize    int64
	BlockTimeout time.Duration
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:  DefaultWorkerCount,
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
	}
}

func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}

	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "local"
	}

	return &Manager{
		consumer:    consumer,
		handler:     handler,
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,
		instance:    instance,
		log:         logging.Component("worker_manager"),
	}
}

// Start ensures the consumer group exists and launches the workers.
// Stop must be called to release them.
func (m *Manager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(ctx, queue.StreamTimeline, queue.ConsumerGroupTimeline); err != nil {
		m.cancel()
		return err
	}

	for i := 1; i <= m.workerCount; i++ {
		name := m.consumerName(i)
		m.wg.Add(1)
		go m.runWorker(ctx, name)
	}

	m.log.Info().
		Int("workers", m.workerCount).
		Str("stream", queue.StreamTimeline).
		Msg("workers started")
	return nil
}

// Stop cancels the workers and waits for in-flight batches to finish.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.log.Info().Msg("workers stopped")
}

func (m *Manager) runWorker(ctx context.Context, consumerName string) {
	defer m.wg.Done()

	m.processPending(ctx, consumerName)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			m.processMessages(ctx, consumerName)
		}
	}
}

// processPending replays messages delivered to this consumer before a crash.
func (m *Manager) processPending(ctx context.Context, consumerName string) {
	for ctx.Err() == nil {
		messages, err := m.consumer.ReadPending(ctx, queue.StreamTimeline, queue.ConsumerGroupTimeline, consumerName, m.batchSize)
		if err != nil {
			m.log.Warn().Err(err).Str("consumer", consumerName).Msg("read pending")
			return
		}
		if len(messages) == 0 {
			return
		}
		m.handleMessages(ctx, consumerName, messages)
	}
}

func (m *Manager) processMessages(ctx context.Context, consumerName string) {
	messages, err := m.consumer.Read(ctx, queue.StreamTimeline, queue.ConsumerGroupTimeline, consumerName, m.batchSize, m.blockTime)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warn().Err(err).Str("consumer", consumerName).Msg("read")
		select {
		case <-ctx.Done():
		case <-time.After(readBackoff):
		}
		return
	}

	m.handleMessages(ctx, consumerName, messages)
}

// handleMessages acknowledges every message, including failed ones, so a
// poison message cannot stall the group.
func (m *Manager) handleMessages(ctx context.Context, consumerName string, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handler.HandleEvent(ctx, msg.Event); err != nil {
			m.log.Error().Err(err).Str("consumer", consumerName).Str("msg_id", msg.ID).Msg("handle event")
		}
		if err := m.consumer.Ack(ctx, queue.StreamTimeline, queue.ConsumerGroupTimeline, msg.ID); err != nil {
			m.log.Warn().Err(err).Str("msg_id", msg.ID).Msg("ack")
		}
	}
}

func (m *Manager) consumerName(workerID int) string {
	return fmt.Sprintf("%s-worker-%d", m.instance, workerID)
}

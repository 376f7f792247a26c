package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tapfile/tapfile/internal/model"
)

// DefaultUsageQueueSize is the number of usage entries a UsageSink buffers
// before it starts dropping them.
const DefaultUsageQueueSize = 1024

const usageWriteTimeout = 5 * time.Second

// UsageStore persists usage log entries.
type UsageStore interface {
	AppendUsageLog(ctx context.Context, entry *model.UsageLog) error
}

// usageItem is either an entry to write or a flush marker.
type usageItem struct {
	entry   *model.UsageLog
	flushed chan struct{}
}

// UsageSink writes usage log entries on a background goroutine so request
// handlers never wait for the metadata store. The queue is bounded: when it
// is full, Record drops the entry and reports false.
type UsageSink struct {
	store  UsageStore
	logger *slog.Logger
	queue  chan usageItem
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewUsageSink starts a sink buffering up to size entries. Call Close to
// write out what is queued and stop it.
func NewUsageSink(store UsageStore, size int, logger *slog.Logger) *UsageSink {
	if size <= 0 {
		size = DefaultUsageQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &UsageSink{
		store:  store,
		logger: logger,
		queue:  make(chan usageItem, size),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Record queues entry without blocking. It returns false when the entry was
// dropped because the queue is full or the sink is closed.
func (s *UsageSink) Record(entry *model.UsageLog) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- usageItem{entry: entry}:
		return true
	default:
		return false
	}
}

// Flush blocks until every entry queued before the call has been written.
func (s *UsageSink) Flush() {
	flushed := make(chan struct{})

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.queue <- usageItem{flushed: flushed}
	s.mu.RUnlock()

	<-flushed
}

// Close stops accepting entries, writes the ones still queued and returns
// once the background goroutine has exited. It is safe to call twice.
func (s *UsageSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
}

func (s *UsageSink) run() {
	defer close(s.done)

	for item := range s.queue {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), usageWriteTimeout)
		err := s.store.AppendUsageLog(ctx, item.entry)
		cancel()
		if err != nil {
			s.logger.Warn("failed to record usage", "api_key_id", item.entry.APIKeyID, "error", err)
		}
	}
}

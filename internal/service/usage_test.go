package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/tapfile/tapfile/internal/model"
)

// memUsage collects usage entries. When started is set, every write
// announces itself there and then waits for release.
type memUsage struct {
	mu      sync.Mutex
	entries []*model.UsageLog
	err     error

	started chan struct{}
	release chan struct{}
}

func (m *memUsage) AppendUsageLog(_ context.Context, entry *model.UsageLog) error {
	if m.started != nil {
		m.started <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memUsage) keyIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, len(m.entries))
	for i, e := range m.entries {
		ids[i] = e.APIKeyID
	}
	return ids
}

// ---------------------------------------------------------------------------
// Usage sink
// ---------------------------------------------------------------------------

func TestUsageSinkWritesInOrder(t *testing.T) {
	store := &memUsage{}
	sink := NewUsageSink(store, 16, discardLogger())
	defer sink.Close()

	for id := int64(1); id <= 5; id++ {
		if !sink.Record(&model.UsageLog{APIKeyID: id}) {
			t.Fatalf("entry %d dropped", id)
		}
	}
	sink.Flush()

	got := store.keyIDs()
	if len(got) != 5 {
		t.Fatalf("entries = %v, want 5", got)
	}
	for i, id := range got {
		if id != int64(i+1) {
			t.Errorf("entry %d has key %d, want %d", i, id, i+1)
		}
	}
}

func TestUsageSinkDropsWhenFull(t *testing.T) {
	store := &memUsage{started: make(chan struct{}, 4), release: make(chan struct{})}
	sink := NewUsageSink(store, 1, discardLogger())

	if !sink.Record(&model.UsageLog{APIKeyID: 1}) {
		t.Fatal("first entry dropped")
	}
	<-store.started // the writer holds entry 1

	if !sink.Record(&model.UsageLog{APIKeyID: 2}) {
		t.Fatal("second entry should fit in the queue")
	}
	if sink.Record(&model.UsageLog{APIKeyID: 3}) {
		t.Error("third entry should be dropped while the queue is full")
	}

	close(store.release)
	sink.Close()
	if got := store.keyIDs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("written = %v, want [1 2]", got)
	}
}

func TestUsageSinkCloseDrains(t *testing.T) {
	store := &memUsage{}
	sink := NewUsageSink(store, 8, discardLogger())

	for id := int64(1); id <= 3; id++ {
		sink.Record(&model.UsageLog{APIKeyID: id})
	}
	sink.Close()
	sink.Close()

	if got := store.keyIDs(); len(got) != 3 {
		t.Errorf("written = %v, want 3 entries after Close", got)
	}
	if sink.Record(&model.UsageLog{APIKeyID: 4}) {
		t.Error("Record after Close should report a drop")
	}
	sink.Flush() // no-op once closed
}

func TestUsageSinkLogsWriteFailures(t *testing.T) {
	var buf bytes.Buffer
	store := &memUsage{err: errors.New("disk I/O error")}
	sink := NewUsageSink(store, 4, slog.New(slog.NewTextHandler(&buf, nil)))
	defer sink.Close()

	sink.Record(&model.UsageLog{APIKeyID: 7})
	sink.Flush()

	out := buf.String()
	if !strings.Contains(out, "failed to record usage") || !strings.Contains(out, "disk I/O error") {
		t.Errorf("expected the failure to be logged, got %q", out)
	}
}

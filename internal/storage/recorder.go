package storage

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"go.uber.org/zap"
)

// HistoryReader is the query side of the history store.
type HistoryReader interface {
	LatestSnapshots(ctx context.Context, name string, limit int) ([]SnapshotRecord, error)
	ListCommands(ctx context.Context, name string, limit int) ([]CommandRecord, error)
}

// HistoryWriter is the write side of the history store.
type HistoryWriter interface {
	SaveSnapshot(ctx context.Context, name string, s *procon.Snapshot) error
	SaveCommand(ctx context.Context, ev controller.CommandEvent) error
}

const (
	recorderQueueSize    = 256
	recorderWriteTimeout = 5 * time.Second
)

type record struct {
	name     string
	snapshot *procon.Snapshot
	command  *controller.CommandEvent
}

// Recorder persists controller events in the background. It implements
// controller.Listener and never blocks the caller; events are dropped when
// the queue is full.
type Recorder struct {
	writer   HistoryWriter
	interval time.Duration
	logger   *zap.Logger

	queue chan record
	wg    sync.WaitGroup

	mu       sync.Mutex
	lastSave map[string]time.Time
	closed   bool
}

// NewRecorder starts the writer goroutine. Snapshots of the same controller
// closer together than interval are skipped; commands are always stored.
func NewRecorder(writer HistoryWriter, interval time.Duration, logger *zap.Logger) *Recorder {
	r := &Recorder{
		writer:   writer,
		interval: interval,
		logger:   logger,
		queue:    make(chan record, recorderQueueSize),
		lastSave: make(map[string]time.Time),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) SnapshotUpdated(c *controller.Controller, s *procon.Snapshot) {
	now := time.Now()

	r.mu.Lock()
	if last, ok := r.lastSave[c.Name]; ok && now.Sub(last) < r.interval {
		r.mu.Unlock()
		return
	}
	r.lastSave[c.Name] = now
	r.mu.Unlock()

	r.enqueue(record{name: c.Name, snapshot: s})
}

func (r *Recorder) RefreshFailed(c *controller.Controller, err error) {}

func (r *Recorder) CommandExecuted(c *controller.Controller, ev controller.CommandEvent) {
	r.enqueue(record{name: c.Name, command: &ev})
}

func (r *Recorder) enqueue(rec record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("History queue full, dropping record", zap.String("controller", rec.name))
	}
}

// Close flushes queued records and stops the writer goroutine.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
		var err error
		if rec.command != nil {
			err = r.writer.SaveCommand(ctx, *rec.command)
		} else {
			err = r.writer.SaveSnapshot(ctx, rec.name, rec.snapshot)
		}
		cancel()

		if err != nil {
			r.logger.Error("Failed to persist history",
				zap.String("controller", rec.name),
				zap.Error(err))
		}
	}
}

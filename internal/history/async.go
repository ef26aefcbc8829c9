package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize = 512
	writeTimeout     = 250 * time.Millisecond
)

var (
	ErrClosed    = errors.New("history recorder is closed")
	ErrQueueFull = errors.New("history queue is full")
)

// QueueStats reports what became of the entries handed to an AsyncRecorder
// since it started. Dropped entries never reached the queue; failed ones were
// rejected by the database.
type QueueStats struct {
	Pending  int   `json:"pending"`
	Capacity int   `json:"capacity"`
	Written  int64 `json:"written"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// AsyncRecorder hands entries to a single writer goroutine so a slow
// database never delays a connection test response. When the queue is full
// the new entry is dropped and counted rather than blocking the test.
type AsyncRecorder struct {
	sink    Recorder
	onError func(Entry, error)
	queue   chan Entry
	done    chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	inflight  sync.WaitGroup

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncRecorder starts the writer. onError, when set, is called from the
// writer goroutine for every entry the sink rejects.
func NewAsyncRecorder(sink Recorder, queueSize int, onError func(Entry, error)) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &AsyncRecorder{
		sink:    sink,
		onError: onError,
		queue:   make(chan Entry, queueSize),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for entry := range r.queue {
			r.write(entry)
		}
	}()
	return r
}

func (r *AsyncRecorder) write(entry Entry) {
	defer r.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.sink.Record(ctx, entry); err != nil {
		r.failed.Add(1)
		if r.onError != nil {
			r.onError(entry, err)
		}
		return
	}
	r.written.Add(1)
}

// Record queues entry without waiting for the database.
func (r *AsyncRecorder) Record(_ context.Context, entry Entry) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	r.inflight.Add(1)
	select {
	case r.queue <- entry:
		return nil
	default:
		r.inflight.Done()
		r.dropped.Add(1)
		return fmt.Errorf("%w: dropped %s run for %s", ErrQueueFull, entry.Outcome, entry.Host)
	}
}

func (r *AsyncRecorder) Query(ctx context.Context, filter Filter) (QueryResult, error) {
	return r.sink.Query(ctx, filter)
}

func (r *AsyncRecorder) Stats() QueueStats {
	return QueueStats{
		Pending:  len(r.queue),
		Capacity: cap(r.queue),
		Written:  r.written.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
	}
}

// WaitIdle blocks until every queued entry has been written or has failed.
func (r *AsyncRecorder) WaitIdle(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for the queue to drain. It may be
// called again after ctx expired to keep waiting.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package audit

import (
	"context"
	"sync"
	"time"
)

// AsyncOptions tunes AsyncWriter batching. Zero fields take defaults.
type AsyncOptions struct {
	BufferSize     int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`
	BatchSize      int           `env:"AUDIT_BATCH_SIZE" envDefault:"100"`
	BatchTimeout   time.Duration `env:"AUDIT_BATCH_TIMEOUT" envDefault:"100ms"`
	StorageTimeout time.Duration `env:"AUDIT_STORAGE_TIMEOUT" envDefault:"5s"`
}

func (o AsyncOptions) withDefaults() AsyncOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 100 * time.Millisecond
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = 5 * time.Second
	}
	return o
}

// AsyncWriter is a Storage that groups events into batches for a
// BatchWriter. When the buffer is full it writes synchronously instead of
// dropping the event.
type AsyncWriter struct {
	writer  BatchWriter
	queue   chan pendingEvent
	done    chan struct{}
	closed  sync.Once
	wg      sync.WaitGroup
	options AsyncOptions
}

type pendingEvent struct {
	event  Event
	result chan error
}

// NewAsyncWriter starts the batching worker. Call Close on shutdown to flush.
func NewAsyncWriter(w BatchWriter, opts AsyncOptions) *AsyncWriter {
	if w == nil {
		panic("audit: batch writer cannot be nil")
	}
	opts = opts.withDefaults()
	aw := &AsyncWriter{
		writer:  w,
		queue:   make(chan pendingEvent, opts.BufferSize),
		done:    make(chan struct{}),
		options: opts,
	}
	aw.wg.Add(1)
	go aw.run()
	return aw
}

// Store queues the event and waits for its batch to be written.
func (aw *AsyncWriter) Store(ctx context.Context, event Event) error {
	select {
	case <-aw.done:
		return ErrStorageNotAvailable
	default:
	}

	p := pendingEvent{event: event, result: make(chan error, 1)}
	select {
	case aw.queue <- p:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return aw.writer.StoreBatch(ctx, []Event{event})
	}

	select {
	case err := <-p.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (aw *AsyncWriter) run() {
	defer aw.wg.Done()

	batch := make([]pendingEvent, 0, aw.options.BatchSize)
	ticker := time.NewTicker(aw.options.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		events := make([]Event, len(batch))
		for i, p := range batch {
			events[i] = p.event
		}
		// Detached from callers so one request's deadline cannot fail a shared batch.
		ctx, cancel := context.WithTimeout(context.Background(), aw.options.StorageTimeout)
		err := aw.writer.StoreBatch(ctx, events)
		cancel()
		for _, p := range batch {
			p.result <- err
		}
		batch = batch[:0]
	}

	for {
		select {
		case p := <-aw.queue:
			batch = append(batch, p)
			if len(batch) >= aw.options.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-aw.done:
			for {
				select {
				case p := <-aw.queue:
					batch = append(batch, p)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting events and flushes what is queued. ctx bounds the wait.
func (aw *AsyncWriter) Close(ctx context.Context) error {
	aw.closed.Do(func() { close(aw.done) })

	flushed := make(chan struct{})
	go func() {
		aw.wg.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

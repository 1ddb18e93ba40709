// Package syncq is the write-behind queue between the game session and the
// store. Jobs run one at a time, in enqueue order, on a single goroutine.
package syncq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

const DefaultCapacity = 256

// Job is one deferred store write.
type Job struct {
	Name string
	Run  func(ctx context.Context) error

	barrier chan struct{}
}

type Writer struct {
	log  *slog.Logger
	jobs chan Job

	mu     sync.Mutex
	closed bool

	stop chan struct{}
	done chan struct{}
}

func NewWriter(logger *slog.Logger, capacity int) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	w := &Writer{
		log:  logger,
		jobs: make(chan Job, capacity),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Enqueue never blocks. It reports false when the job was dropped because the
// queue is full or closed.
func (w *Writer) Enqueue(name string, run func(ctx context.Context) error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.log.Warn("write dropped, queue closed", "job", name)
		return false
	}
	select {
	case w.jobs <- Job{Name: name, Run: run}:
		return true
	default:
		w.log.Warn("write dropped, queue full", "job", name)
		return false
	}
}

// Flush waits until every job enqueued before the call has run.
func (w *Writer) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	select {
	case <-w.done:
		return nil
	default:
	}
	select {
	case w.jobs <- Job{Name: "flush", barrier: barrier}:
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and drains the queue until ctx expires. Jobs
// still queued after that are abandoned.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.Flush(ctx)
	close(w.stop)
	<-w.done
	return err
}

func (w *Writer) loop() {
	defer close(w.done)
	for {
		select {
		case job := <-w.jobs:
			w.run(job)
		case <-w.stop:
			w.abandon()
			return
		}
	}
}

func (w *Writer) run(job Job) {
	if job.barrier != nil {
		close(job.barrier)
		return
	}
	if err := job.Run(context.Background()); err != nil {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		w.log.Log(context.Background(), level, "write-behind job failed", "job", job.Name, "err", err)
	}
}

func (w *Writer) abandon() {
	for {
		select {
		case job := <-w.jobs:
			if job.barrier != nil {
				close(job.barrier)
				continue
			}
			w.log.Warn("write abandoned at shutdown", "job", job.Name)
		default:
			return
		}
	}
}

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler drives the market tick and autosave from one goroutine. Callbacks
// never overlap each other.
type Scheduler struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func StartScheduler(logger *slog.Logger, marketEvery, autosaveEvery time.Duration, onMarketTick, onAutosave func()) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cancel: cancel, done: make(chan struct{})}

	marketTicker := time.NewTicker(marketEvery)
	autosaveTicker := time.NewTicker(autosaveEvery)
	go func() {
		defer close(s.done)
		defer marketTicker.Stop()
		defer autosaveTicker.Stop()

		logger.Debug("scheduler started", "tick_every", marketEvery.String(), "autosave_every", autosaveEvery.String())
		for {
			select {
			case <-ctx.Done():
				logger.Debug("scheduler stopped")
				return
			case <-marketTicker.C:
				onMarketTick()
			case <-autosaveTicker.C:
				onAutosave()
			}
		}
	}()
	return s
}

// Stop cancels both timers and waits for a running callback to return. Safe
// to call more than once.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
	<-s.done
}

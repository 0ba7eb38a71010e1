package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"recordkeeper-auth/internal/repository"
	"recordkeeper-auth/internal/util"
)

// Sweeper periodically purges audit entries past their retention
// horizon.
type Sweeper struct {
	store    repository.AuditStore
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(store repository.AuditStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. An initial sweep runs immediately so a
// restarted instance does not wait a full interval.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)

		s.sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight sweep.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.store.PurgeExpired(ctx, time.Now().UTC()); err != nil {
		util.Warn("Audit retention sweep failed", zap.Error(err))
	}
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"go.uber.org/zap"
)

const defaultExpirerInterval = 1 * time.Hour

// ExpirerService drops stored runs older than the retention window.
type ExpirerService struct {
	runs      domain.RunStore
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewExpirerService(runs domain.RunStore, retention time.Duration, logger *zap.Logger) *ExpirerService {
	return &ExpirerService{
		runs:      runs,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		interval:  defaultExpirerInterval,
		stopCh:    make(chan struct{}),
	}
}

func (s *ExpirerService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the expirer on a periodic schedule in a background goroutine.
func (s *ExpirerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("run expirer started",
			zap.Duration("interval", s.interval),
			zap.Duration("retention", s.retention),
		)

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, _ = s.Expire(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("run expirer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the expirer.
func (s *ExpirerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Expire deletes the runs that ended before the retention window. A zero
// retention keeps everything.
func (s *ExpirerService) Expire(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	deleted, err := s.runs.DeleteEndedBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.logger.Error("failed to delete expired runs", zap.Error(err))
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("deleted expired runs", zap.Int64("count", deleted))
	}
	return deleted, nil
}

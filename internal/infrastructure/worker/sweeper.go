package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// TimeoutReason is recorded on transactions whose assessment never arrived
const TimeoutReason = "risk assessment timed out"

// SweeperConfig holds configuration for the assessment sweeper
type SweeperConfig struct {
	Interval       time.Duration
	StaleAfter     time.Duration
	BatchSize      int
	ProcessTimeout time.Duration
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:       time.Minute,
		StaleAfter:     5 * time.Minute,
		BatchSize:      50,
		ProcessTimeout: 30 * time.Second,
	}
}

// FallbackApplier moves a transaction with an outstanding assessment to manual review
type FallbackApplier interface {
	FallbackToManualReview(ctx context.Context, id int64, tag, reason string) (*entity.EscrowTransaction, error)
}

// AssessmentSweeper periodically routes transactions whose risk assessment
// has been outstanding too long to manual review
type AssessmentSweeper struct {
	config   SweeperConfig
	txRepo   port.TransactionRepository
	fallback FallbackApplier
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	swept     int
	failed    int
	lastSweep time.Time
	lastError error
}

// NewAssessmentSweeper creates a new sweeper
func NewAssessmentSweeper(config SweeperConfig, txRepo port.TransactionRepository, fallback FallbackApplier, logger *zap.Logger) *AssessmentSweeper {
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = defaults.ProcessTimeout
	}

	return &AssessmentSweeper{
		config:   config,
		txRepo:   txRepo,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins the sweep loop
func (s *AssessmentSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("assessment sweeper already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("AssessmentSweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("stale_after", s.config.StaleAfter),
		zap.Int("batch_size", s.config.BatchSize))

	go s.pollLoop(runCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight sweep to finish
func (s *AssessmentSweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.RLock()
	s.logger.Info("AssessmentSweeper stopped",
		zap.Int("swept_count", s.swept),
		zap.Int("failed_count", s.failed))
	s.mu.RUnlock()
	return nil
}

// Name returns the worker name for identification
func (s *AssessmentSweeper) Name() string {
	return "AssessmentSweeper"
}

func (s *AssessmentSweeper) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sweep loop context cancelled")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Assessment sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce applies the fallback to one batch of stale transactions and
// returns how many were moved to manual review
func (s *AssessmentSweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.StaleAfter)

	stale, err := s.txRepo.ListAwaitingAssessment(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		s.recordSweep(0, 0, err)
		return 0, fmt.Errorf("failed to list stale assessments: %w", err)
	}

	var moved, failed int
	for _, tx := range stale {
		if ctx.Err() != nil {
			break
		}

		itemCtx, cancel := context.WithTimeout(ctx, s.config.ProcessTimeout)
		_, err := s.fallback.FallbackToManualReview(itemCtx, tx.ID, tx.AssessmentTag, TimeoutReason)
		cancel()

		switch {
		case err == nil:
			moved++
			s.logger.Info("Stale assessment routed to manual review",
				zap.Int64("transaction_id", tx.ID),
				zap.Timep("requested_at", tx.AssessmentRequestedAt))
		case errors.Is(err, entity.ErrInvalidState), errors.Is(err, entity.ErrNotFound):
			// The assessment landed or an admin decided since the listing.
			s.logger.Debug("Skipping transaction no longer awaiting assessment",
				zap.Int64("transaction_id", tx.ID),
				zap.Error(err))
		default:
			failed++
			s.logger.Error("Failed to apply assessment fallback",
				zap.Int64("transaction_id", tx.ID),
				zap.Error(err))
		}
	}

	var sweepErr error
	if failed > 0 {
		sweepErr = fmt.Errorf("%d of %d fallbacks failed", failed, len(stale))
	}
	s.recordSweep(moved, failed, sweepErr)
	return moved, sweepErr
}

func (s *AssessmentSweeper) recordSweep(moved, failed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swept += moved
	s.failed += failed
	s.lastSweep = s.now()
	s.lastError = err
}

// SweeperStats is a snapshot of the sweeper's counters
type SweeperStats struct {
	IsRunning bool
	Swept     int
	Failed    int
	LastSweep time.Time
	LastError error
}

// Stats returns the sweeper's counters
func (s *AssessmentSweeper) Stats() SweeperStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SweeperStats{
		IsRunning: s.isRunning,
		Swept:     s.swept,
		Failed:    s.failed,
		LastSweep: s.lastSweep,
		LastError: s.lastError,
	}
}

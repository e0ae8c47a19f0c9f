package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

type mockTxRepo struct {
	port.TransactionRepository

	mu       sync.Mutex
	cutoffs  []time.Time
	listFunc func(before time.Time, limit int) ([]*entity.EscrowTransaction, error)
}

func (m *mockTxRepo) ListAwaitingAssessment(ctx context.Context, before time.Time, limit int) ([]*entity.EscrowTransaction, error) {
	m.mu.Lock()
	m.cutoffs = append(m.cutoffs, before)
	m.mu.Unlock()
	return m.listFunc(before, limit)
}

type fallbackCall struct {
	id     int64
	tag    string
	reason string
}

type mockFallback struct {
	mu    sync.Mutex
	calls []fallbackCall
	errs  map[int64]error
}

func (m *mockFallback) FallbackToManualReview(ctx context.Context, id int64, tag, reason string) (*entity.EscrowTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fallbackCall{id, tag, reason})
	if err := m.errs[id]; err != nil {
		return nil, err
	}
	return &entity.EscrowTransaction{ID: id, AIStatus: entity.AIStatusManualReview}, nil
}

func (m *mockFallback) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestAssessmentSweeper_SweepOnce(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &mockTxRepo{listFunc: func(before time.Time, limit int) ([]*entity.EscrowTransaction, error) {
		assert.Equal(t, 10, limit)
		return []*entity.EscrowTransaction{
			{ID: 1, AssessmentTag: "t1"},
			{ID: 2, AssessmentTag: "t2"},
			{ID: 3, AssessmentTag: "t3"},
			{ID: 4, AssessmentTag: "t4"},
		}, nil
	}}
	fallback := &mockFallback{errs: map[int64]error{
		2: fmt.Errorf("%w: %w", entity.ErrInvalidState, entity.ErrStaleAssessment),
		3: errors.New("database is locked"),
	}}

	s := NewAssessmentSweeper(SweeperConfig{StaleAfter: 5 * time.Minute, BatchSize: 10}, repo, fallback, zap.NewNop())
	s.now = func() time.Time { return now }

	moved, err := s.SweepOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, moved)

	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, now.Add(-5*time.Minute), repo.cutoffs[0])

	require.Len(t, fallback.calls, 4)
	assert.Equal(t, fallbackCall{1, "t1", TimeoutReason}, fallback.calls[0])
	assert.Equal(t, "t4", fallback.calls[3].tag)

	stats := s.Stats()
	assert.Equal(t, 2, stats.Swept)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, now, stats.LastSweep)
	assert.Error(t, stats.LastError)
}

func TestAssessmentSweeper_ListError(t *testing.T) {
	boom := errors.New("boom")
	repo := &mockTxRepo{listFunc: func(time.Time, int) ([]*entity.EscrowTransaction, error) { return nil, boom }}
	s := NewAssessmentSweeper(SweeperConfig{}, repo, &mockFallback{}, zap.NewNop())

	moved, err := s.SweepOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, moved)
	assert.Equal(t, DefaultSweeperConfig(), s.config)
}

func TestAssessmentSweeper_RunsOnTicker(t *testing.T) {
	var once sync.Once
	repo := &mockTxRepo{listFunc: func(time.Time, int) ([]*entity.EscrowTransaction, error) {
		var out []*entity.EscrowTransaction
		once.Do(func() { out = []*entity.EscrowTransaction{{ID: 9, AssessmentTag: "t9"}} })
		return out, nil
	}}
	fallback := &mockFallback{}
	s := NewAssessmentSweeper(SweeperConfig{Interval: 5 * time.Millisecond}, repo, fallback, zap.NewNop())

	m := NewWorkerManager(zap.NewNop())
	m.Register(s)
	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	assert.Eventually(t, func() bool { return fallback.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.False(t, s.Stats().IsRunning)
	assert.NoError(t, m.StopAll())
}

type recordingWorker struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (w *recordingWorker) Start(ctx context.Context) error {
	*w.log = append(*w.log, "start "+w.name)
	return w.startErr
}

func (w *recordingWorker) Stop() error {
	*w.log = append(*w.log, "stop "+w.name)
	return w.stopErr
}

func (w *recordingWorker) Name() string { return w.name }

func TestWorkerManager_OrderAndFailures(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&recordingWorker{name: "a", log: &log})
	m.Register(&recordingWorker{name: "b", log: &log, startErr: errors.New("no")})
	m.Register(&recordingWorker{name: "c", log: &log, stopErr: errors.New("stuck")})
	assert.Equal(t, 3, m.GetWorkerCount())

	require.NoError(t, m.StartAll(context.Background()))
	err := m.StopAll()
	require.Error(t, err)
	assert.ErrorContains(t, err, "c: stuck")

	assert.Equal(t, []string{"start a", "start b", "start c", "stop c", "stop a"}, log)
}

package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/application/workflow"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

var reportStatuses = []string{
	entity.StatusPending,
	entity.StatusActive,
	entity.StatusDisputed,
	entity.StatusCompleted,
	entity.StatusCancelled,
}

// ReportService exports transaction reports for admins
type ReportService interface {
	// Export writes a report of transactions with the given status, or of all
	// transactions when status is empty
	Export(ctx context.Context, caller entity.Caller, status string, w io.Writer) error
	ContentType() string
	FileName(now time.Time) string
}

type reportServiceImpl struct {
	engine workflow.EscrowEngine
	writer port.ReportWriter
	logger Logger
}

// NewReportService creates a new ReportService
func NewReportService(engine workflow.EscrowEngine, writer port.ReportWriter, logger Logger) ReportService {
	return &reportServiceImpl{engine: engine, writer: writer, logger: logger}
}

func (s *reportServiceImpl) Export(ctx context.Context, caller entity.Caller, status string, w io.Writer) error {
	if err := workflow.Authorize(caller, workflow.ActionExport, workflow.Subject{}); err != nil {
		return err
	}

	statuses := reportStatuses
	if status != "" {
		statuses = []string{status}
	}

	var stats *entity.Stats
	lists := make([][]*entity.EscrowTransaction, len(statuses))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.engine.GetStats(gctx, caller)
		return err
	})
	for i, st := range statuses {
		g.Go(func() error {
			list, err := s.engine.ListByStatus(gctx, caller, st)
			lists[i] = list
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var rows []*entity.EscrowTransaction
	for _, list := range lists {
		rows = append(rows, list...)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	report := &port.Report{
		GeneratedAt:  time.Now(),
		GeneratedBy:  caller,
		Stats:        stats,
		Transactions: rows,
	}
	if err := s.writer.Write(ctx, w, report); err != nil {
		s.logger.Error("Failed to write report", "error", err, "rows", len(rows))
		return fmt.Errorf("write report: %w", err)
	}

	s.logger.Info("Report exported", "actor_id", caller.ID, "rows", len(rows), "status", status)
	return nil
}

func (s *reportServiceImpl) ContentType() string {
	return s.writer.ContentType()
}

func (s *reportServiceImpl) FileName(now time.Time) string {
	return fmt.Sprintf("escrow-transactions-%s.%s", now.Format("20060102-150405"), s.writer.Extension())
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
	"golang.org/x/sync/errgroup"
)

// Case is one unit of batch work: the observations filed under a case number.
type Case struct {
	Number       string
	Observations []model.TrafficObservation
}

// BatchProcessor analyzes independent cases concurrently.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on a single report
// 2. The factory decides whether cases share one engine or get their own
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each case.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of cases analyzed at once.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent cases.
// Values below 1 are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// DefaultConcurrency is the number of cases analyzed at once by default.
const DefaultConcurrency = 4

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch analyzes every case and returns the reports in input order.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because errgroup handles the limit and the first cancellation for us.
// A failing case does not stop the others; its error is in its report.
//
// The returned error is non-nil only when ctx was cancelled. Cases that
// never started have a nil report.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, cases []Case) ([]*model.AnalysisReport, error) {
	results := make([]*model.AnalysisReport, len(cases))
	err := bp.ProcessBatchWithCallback(ctx, cases, func(report *model.AnalysisReport, index int) {
		// Each goroutine writes its own index.
		results[index] = report
	})
	return results, err
}

// ProcessBatchWithCallback analyzes every case and calls callback as each
// one completes. The callback runs on the worker goroutine and must be safe
// for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	cases []Case,
	callback func(report *model.AnalysisReport, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_cases", len(cases),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, c := range cases {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			report := model.NewAnalysisReport(c.Number, c.Observations)
			if err := bp.pipelineFactory().Execute(ctx, report); err != nil {
				bp.logger.Warn("case analysis failed",
					"index", i+1,
					"run_id", report.RunID,
					"error", err,
				)
			}

			callback(report, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch processing complete",
		"total_cases", len(cases),
		"elapsed", time.Since(startTime),
	)
	return err
}

package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bitesbytes/internal/cache"
	"bitesbytes/internal/core"
	"bitesbytes/internal/log"
	"bitesbytes/internal/pipeline"
	"bitesbytes/internal/store"
)

// ReportService reads record batches from a store and runs them through the
// aggregation pipeline. Raw batches are cached per category and dropped on
// every write through Add; reports are always recomputed.
type ReportService struct {
	store  store.RecordStore
	opts   pipeline.Options
	cache  *cache.LRUCache[[]core.RawRecord]
	logger *log.Logger
}

// NewReportService caches batches for ttl; zero disables the cache.
func NewReportService(s store.RecordStore, opts pipeline.Options, ttl time.Duration, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.Default(log.ComponentPipeline)
	}
	return &ReportService{
		store:  s,
		opts:   opts,
		cache:  cache.NewLRUCache[[]core.RawRecord](8, ttl),
		logger: logger.WithComponent(log.ComponentPipeline),
	}
}

// Cache exposes the batch cache so it can be registered for cleanup.
func (s *ReportService) Cache() *cache.LRUCache[[]core.RawRecord] {
	return s.cache
}

// Options returns the pipeline options reports are built with.
func (s *ReportService) Options() pipeline.Options {
	return s.opts
}

// Add stores an entry and invalidates the cached batch of its category.
func (s *ReportService) Add(ctx context.Context, e core.Entry) (string, error) {
	ref, err := s.store.Append(ctx, e)
	if err != nil {
		return "", err
	}
	s.cache.Delete(string(e.Category))
	return ref, nil
}

// Records returns the raw batch for one category.
func (s *ReportService) Records(ctx context.Context, category core.Category) ([]core.RawRecord, error) {
	if batch, ok := s.cache.Get(string(category)); ok {
		return batch, nil
	}
	batch, err := s.store.ListRecords(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", category, err)
	}
	s.cache.Set(string(category), batch)
	return batch, nil
}

// Build fetches the Income and Expense batches concurrently and reports on
// their concatenation, income first.
func (s *ReportService) Build(ctx context.Context) (pipeline.Report, error) {
	var income, expense []core.RawRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		income, err = s.Records(gctx, core.Income)
		return err
	})
	g.Go(func() error {
		var err error
		expense, err = s.Records(gctx, core.Expense)
		return err
	})
	if err := g.Wait(); err != nil {
		return pipeline.Report{}, err
	}

	batch := make([]core.RawRecord, 0, len(income)+len(expense))
	batch = append(batch, income...)
	batch = append(batch, expense...)
	report, _ := s.run(ctx, batch)
	return report, nil
}

// BuildCategory reports on a single category and returns its normalized
// records for listing.
func (s *ReportService) BuildCategory(ctx context.Context, category core.Category) (pipeline.Report, []core.Record, error) {
	batch, err := s.Records(ctx, category)
	if err != nil {
		return pipeline.Report{}, nil, err
	}
	report, records := s.run(ctx, batch)
	return report, records, nil
}

// Summarize reports on a batch that did not come from the store.
func (s *ReportService) Summarize(ctx context.Context, batch []core.RawRecord) pipeline.Report {
	report, _ := s.run(ctx, batch)
	return report
}

func (s *ReportService) run(ctx context.Context, batch []core.RawRecord) (pipeline.Report, []core.Record) {
	records, warnings := pipeline.Normalize(batch)
	report := pipeline.Summarize(records, s.opts)
	report.Warnings = warnings
	for _, w := range report.Warnings {
		s.logger.WarnContext(ctx, "Record field degraded",
			log.FieldOperation, log.OpReport,
			log.FieldRecordIndex, w.Index,
			log.FieldField, w.Field,
			log.FieldReason, w.Reason)
	}
	s.logger.DebugContext(ctx, "Report built",
		log.FieldRecordCount, report.Totals.Records,
		log.FieldWarningCount, len(report.Warnings))
	return report, records
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"screener_backend/models"
	"screener_backend/services/broadcast"
	"screener_backend/services/marketdata"
	"screener_backend/services/synclock"
	"screener_backend/services/syncstate"
)

// Job types. Each owns one lock, one checkpoint slot and one staleness
// threshold.
const (
	JobSnapshot   = "snapshot"
	JobDaily      = "daily"
	JobFinancials = "financials"
	JobRatios     = "ratios"
	JobDividends  = "dividends"
	JobSplits     = "splits"
	JobNews       = "news"
	JobDetails    = "details"
	JobRefresh    = "refresh"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

const (
	defaultLockTTL         = 10 * time.Minute
	defaultBatchSize       = 10
	defaultCheckpointEvery = 50
	defaultSymbolLimit     = 500
	newsPerSymbol          = 10
)

// MarketData is the consumer-side view of the upstream client. Jobs
// depend on this interface rather than the concrete client so tests
// can drive them with scripted sources.
type MarketData interface {
	ListTickers(ctx context.Context) ([]marketdata.TickerRef, error)
	FullSnapshot(ctx context.Context) ([]marketdata.SnapshotTicker, error)
	PrevDay(ctx context.Context, symbol string) (*marketdata.DayBar, error)
	IndicatorSet(ctx context.Context, symbol string) (*marketdata.IndicatorSet, error)
	Financials(ctx context.Context, symbol, timeframe string) ([]marketdata.FinancialRecord, error)
	Dividends(ctx context.Context, symbol string) ([]marketdata.DividendRecord, error)
	Splits(ctx context.Context, symbol string) ([]marketdata.SplitRecord, error)
	TickerNews(ctx context.Context, symbol string, limit int) ([]marketdata.NewsRecord, error)
	Details(ctx context.Context, symbol string) (*marketdata.TickerDetails, error)
	Targets(ctx context.Context, symbol string) (*marketdata.AnalystTargets, error)
}

// Publisher is the broadcast contract the orchestrator publishes to
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Invalidator drops derived result caches after a sync rewrites the
// underlying data
type Invalidator interface {
	InvalidateResults(ctx context.Context)
}

// JobResult is the structured outcome every job entry point returns.
// No error escapes RunJob; failures surface here and in the job log.
type JobResult struct {
	JobType   string `json:"job_type"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Reason    string `json:"reason,omitempty"`
}

// jobSpec fixes per-type behavior inside the shared run skeleton.
// prepare may pull bulk data up front and returns the per-symbol
// worker plus, when no explicit list was given, the full work set.
type jobSpec struct {
	dataType       string
	staleThreshold time.Duration
	batchSize      int
	prepare        func(ctx context.Context, explicit []string) (worker, []string, error)
}

type worker func(ctx context.Context, symbol string) error

// Orchestrator owns the sync job lifecycle: locking, checkpointing,
// batched fan-out, per-symbol outcome tracking and job logs.
type Orchestrator struct {
	db          *gorm.DB
	source      MarketData
	locks       *synclock.Manager
	tracker     *syncstate.Tracker
	checkpoints *syncstate.CheckpointStore
	publisher   Publisher
	invalidator Invalidator

	lockTTL         time.Duration
	checkpointEvery int
	symbolLimit     int

	jobs map[string]*jobSpec
}

func NewOrchestrator(db *gorm.DB, source MarketData, locks *synclock.Manager,
	tracker *syncstate.Tracker, checkpoints *syncstate.CheckpointStore, publisher Publisher) *Orchestrator {

	o := &Orchestrator{
		db:              db,
		source:          source,
		locks:           locks,
		tracker:         tracker,
		checkpoints:     checkpoints,
		publisher:       publisher,
		lockTTL:         defaultLockTTL,
		checkpointEvery: defaultCheckpointEvery,
		symbolLimit:     defaultSymbolLimit,
	}
	o.jobs = map[string]*jobSpec{
		JobSnapshot: {
			dataType:       syncstate.DataTypeSnapshot,
			staleThreshold: 5 * time.Minute,
			batchSize:      50,
			prepare:        o.prepareSnapshot,
		},
		JobDaily: {
			dataType:       syncstate.DataTypeDaily,
			staleThreshold: 20 * time.Hour,
			batchSize:      defaultBatchSize,
			prepare:        o.perSymbol(o.syncDaily),
		},
		JobFinancials: {
			dataType:       syncstate.DataTypeFinancials,
			staleThreshold: 24 * time.Hour,
			batchSize:      defaultBatchSize,
			prepare:        o.perSymbol(o.syncFinancials),
		},
		JobRatios: {
			dataType:       syncstate.DataTypeRatios,
			staleThreshold: 24 * time.Hour,
			batchSize:      defaultBatchSize,
			prepare:        o.perSymbol(o.syncRatios),
		},
		JobDividends: {
			dataType:       syncstate.DataTypeDividends,
			staleThreshold: 24 * time.Hour,
			batchSize:      defaultBatchSize,
			prepare:        o.perSymbol(o.syncDividends),
		},
		JobSplits: {
			dataType:       syncstate.DataTypeSplits,
			staleThreshold: 24 * time.Hour,
			batchSize:      defaultBatchSize,
			prepare:        o.perSymbol(o.syncSplits),
		},
		JobNews: {
			dataType:       syncstate.DataTypeNews,
			staleThreshold: 6 * time.Hour,
			batchSize:      defaultBatchSize,
			prepare:        o.perSymbol(o.syncNews),
		},
		JobDetails: {
			dataType:       syncstate.DataTypeDetails,
			staleThreshold: 7 * 24 * time.Hour,
			batchSize:      defaultBatchSize,
			prepare:        o.prepareDetails,
		},
		JobRefresh: {
			dataType:       syncstate.DataTypeSnapshot,
			staleThreshold: 0,
			batchSize:      defaultBatchSize,
			prepare:        o.perSymbol(o.refreshSymbol),
		},
	}
	return o
}

// SetInvalidator wires the screener cache invalidation hook
func (o *Orchestrator) SetInvalidator(inv Invalidator) {
	o.invalidator = inv
}

// RefreshSymbol re-syncs a single symbol end to end
func (o *Orchestrator) RefreshSymbol(ctx context.Context, symbol string) JobResult {
	return o.RunJob(ctx, JobRefresh, []string{symbol})
}

// RunJob executes one job run. If symbols is empty the work set comes
// from staleness selection (or the upstream universe, per job type).
// The result is always structured; errors land in the job log.
func (o *Orchestrator) RunJob(ctx context.Context, jobType string, symbols []string) JobResult {
	spec, ok := o.jobs[jobType]
	if !ok {
		return JobResult{JobType: jobType, Status: StatusFailed, Reason: "unknown job type"}
	}

	lockName := "sync:" + jobType
	if jobType == JobRefresh && len(symbols) == 1 {
		lockName += ":" + symbols[0]
	}

	acquired, err := o.locks.Acquire(lockName, o.lockTTL)
	if err != nil {
		return JobResult{JobType: jobType, Status: StatusFailed, Reason: fmt.Sprintf("lock acquire: %v", err)}
	}
	if !acquired {
		log.Printf("Sync job %s skipped, lock held by another instance", jobType)
		return JobResult{JobType: jobType, Status: StatusSkipped, Reason: "lock held by another instance"}
	}
	defer func() {
		if err := o.locks.Release(lockName); err != nil {
			log.Printf("Failed to release lock %s: %v", lockName, err)
		}
	}()

	jobLog := models.SyncJobLog{JobType: jobType, Status: models.JobStatusStarted, StartedAt: time.Now()}
	if err := o.db.Create(&jobLog).Error; err != nil {
		return JobResult{JobType: jobType, Status: StatusFailed, Reason: fmt.Sprintf("job log create: %v", err)}
	}

	result := o.runLocked(ctx, jobType, spec, symbols, &jobLog)
	o.finalize(&jobLog, result)

	if result.Status == StatusCompleted {
		o.afterCompletion(ctx, jobType, result, symbols)
	}
	return result
}

func (o *Orchestrator) runLocked(ctx context.Context, jobType string, spec *jobSpec,
	explicit []string, jobLog *models.SyncJobLog) JobResult {

	result := JobResult{JobType: jobType}

	work, process, resumable, err := o.workSet(ctx, jobType, spec, explicit)
	if err != nil {
		result.Status = StatusFailed
		result.Reason = err.Error()
		return result
	}

	lastKey := ""
	sinceCheckpoint := 0
	lockName := "sync:" + jobType
	if jobType == JobRefresh && len(explicit) == 1 {
		lockName += ":" + explicit[0]
	}

	for start := 0; start < len(work); start += spec.batchSize {
		end := start + spec.batchSize
		if end > len(work) {
			end = len(work)
		}
		batch := work[start:end]

		errs := runBatch(ctx, batch, process)

		abort := error(nil)
		for i, symbol := range batch {
			if errs[i] == nil {
				result.Processed++
				if err := o.tracker.RecordOutcome(symbol, spec.dataType, true, nil); err != nil {
					log.Printf("Failed to record sync success for %s/%s: %v", symbol, spec.dataType, err)
				}
				continue
			}
			if errors.Is(errs[i], marketdata.ErrCircuitOpen) || errors.Is(errs[i], context.Canceled) {
				if abort == nil {
					abort = errs[i]
				}
				continue
			}
			result.Failed++
			log.Printf("Sync %s failed for %s: %v", jobType, symbol, errs[i])
			if err := o.tracker.RecordOutcome(symbol, spec.dataType, false, errs[i]); err != nil {
				log.Printf("Failed to record sync failure for %s/%s: %v", symbol, spec.dataType, err)
			}
			if err := o.tracker.ScheduleRetry(symbol, spec.dataType); err != nil {
				log.Printf("Failed to schedule retry for %s/%s: %v", symbol, spec.dataType, err)
			}
		}

		if abort != nil {
			// orchestration-level failure: keep the checkpoint at the
			// last fully handled item so the next run resumes there
			if resumable && lastKey != "" {
				if err := o.checkpoints.Save(jobType, lastKey, result.Processed, len(work)); err != nil {
					log.Printf("Failed to save checkpoint for %s: %v", jobType, err)
				}
			}
			result.Status = StatusFailed
			result.Reason = abort.Error()
			return result
		}

		lastKey = batch[len(batch)-1]
		sinceCheckpoint += len(batch)
		if resumable && sinceCheckpoint >= o.checkpointEvery {
			sinceCheckpoint = 0
			if err := o.checkpoints.Save(jobType, lastKey, result.Processed, len(work)); err != nil {
				log.Printf("Failed to save checkpoint for %s: %v", jobType, err)
			}
			if extended, err := o.locks.Extend(lockName, o.lockTTL); err != nil || !extended {
				log.Printf("Failed to extend lock %s (extended=%v): %v", lockName, extended, err)
			}
		}
	}

	if resumable {
		if err := o.checkpoints.Clear(jobType); err != nil {
			log.Printf("Failed to clear checkpoint for %s: %v", jobType, err)
		}
	}
	result.Status = StatusCompleted
	return result
}

// workSet resolves the symbols a run will process and whether the run
// participates in checkpoint resume. Explicit lists never resume: the
// caller asked for exactly those symbols.
func (o *Orchestrator) workSet(ctx context.Context, jobType string, spec *jobSpec,
	explicit []string) ([]string, worker, bool, error) {

	process, work, err := spec.prepare(ctx, explicit)
	if err != nil {
		return nil, nil, false, err
	}

	if len(explicit) > 0 {
		return explicit, process, false, nil
	}

	if work == nil {
		work, err = o.tracker.SelectStaleSymbols(spec.dataType, spec.staleThreshold, o.symbolLimit)
		if err != nil {
			return nil, nil, false, fmt.Errorf("stale symbol selection: %w", err)
		}
	}

	cp, err := o.checkpoints.Load(jobType)
	if err != nil {
		log.Printf("Failed to load checkpoint for %s: %v", jobType, err)
	} else if cp != nil {
		log.Printf("Resuming %s after checkpoint %s (%d/%d done)", jobType, cp.LastKey, cp.ProcessedCount, cp.TotalCount)
		work = syncstate.ResumeAfter(work, cp.LastKey)
	}
	return work, process, true, nil
}

// runBatch fans a batch out concurrently and waits for every item.
// One failed item never cancels its siblings.
func runBatch(ctx context.Context, batch []string, process worker) []error {
	errs := make([]error, len(batch))
	var wg sync.WaitGroup
	for i, symbol := range batch {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			errs[i] = process(ctx, symbol)
		}(i, symbol)
	}
	wg.Wait()
	return errs
}

// finalize closes the job log exactly once
func (o *Orchestrator) finalize(jobLog *models.SyncJobLog, result JobResult) {
	now := time.Now()
	jobLog.CompletedAt = &now
	jobLog.ProcessedCount = result.Processed
	jobLog.FailedCount = result.Failed
	if result.Status == StatusCompleted {
		jobLog.Status = models.JobStatusCompleted
	} else {
		jobLog.Status = models.JobStatusFailed
		jobLog.ErrorMessage = result.Reason
	}
	if err := o.db.Save(jobLog).Error; err != nil {
		log.Printf("Failed to finalize job log %d: %v", jobLog.ID, err)
	}
}

func (o *Orchestrator) afterCompletion(ctx context.Context, jobType string, result JobResult, symbols []string) {
	if o.invalidator != nil {
		o.invalidator.InvalidateResults(ctx)
	}
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(broadcast.TopicSyncCompleted, result)
	switch jobType {
	case JobSnapshot, JobDaily:
		o.publisher.Publish(broadcast.TopicScreenerUpdated, map[string]interface{}{
			"job_type":  jobType,
			"processed": result.Processed,
		})
	case JobRefresh:
		for _, symbol := range symbols {
			o.publisher.Publish(broadcast.TopicTickerUpdated, map[string]interface{}{"symbol": symbol})
		}
	}
}

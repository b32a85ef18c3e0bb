package tagging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/webdevcody/youtube-video-suggestions/internal/events"
	"github.com/webdevcody/youtube-video-suggestions/internal/metrics"
	"github.com/webdevcody/youtube-video-suggestions/internal/models"
)

// Store is the persistence the worker needs.
type Store interface {
	ReserveQuota(ctx context.Context, ceiling int) (bool, error)
	ReleaseQuota(ctx context.Context) error
	UpsertTags(ctx context.Context, names []string) ([]models.Tag, error)
	AttachTags(ctx context.Context, ideaID string, tagIDs []string) error
}

// Publisher receives the tags-generated event.
type Publisher interface {
	Publish(e events.Event)
}

// Job identifies an idea that was just committed.
type Job struct {
	IdeaID      string
	UserID      string
	Title       string
	Description *string
}

// Config tunes the worker.
type Config struct {
	QuotaCeiling  int
	Timeout       time.Duration
	MaxConcurrent int
}

// Worker runs tagging jobs detached from the request that created the idea.
// A nil oracle disables tagging; jobs are then accepted and skipped.
type Worker struct {
	store  Store
	oracle Oracle
	bus    Publisher
	cfg    Config
	logger *slog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu       sync.Mutex
	inFlight int           // reserved slots whose oracle call has not returned
	settled  chan struct{} // closed when inFlight drops to zero
}

// NewWorker creates a worker.
func NewWorker(store Store, oracle Oracle, bus Publisher, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  store,
		oracle: oracle,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "tagging")),
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Enabled reports whether an oracle is configured.
func (w *Worker) Enabled() bool { return w.oracle != nil }

// Enqueue starts job in the background and returns immediately. The job is
// not tied to any caller context and always runs to completion.
func (w *Worker) Enqueue(job Job) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("tagging: job panicked",
					slog.String("idea_id", job.IdeaID),
					slog.String("panic", fmt.Sprint(r)))
			}
		}()
		_ = w.sem.Acquire(context.Background(), 1)
		defer w.sem.Release(1)
		w.Process(context.Background(), job)
	}()
}

// Wait blocks until every enqueued job has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Process runs one job synchronously and returns its outcome label.
// Every failure is logged and swallowed.
func (w *Worker) Process(ctx context.Context, job Job) (outcome string) {
	log := w.logger.With(slog.String("idea_id", job.IdeaID))
	defer func() {
		metrics.TaggingRuns.WithLabelValues(outcome).Inc()
	}()

	if w.oracle == nil {
		log.Debug("tagging: disabled, skipping")
		return metrics.OutcomeDisabled
	}

	reserved, err := w.reserve(ctx)
	if err != nil {
		log.Warn("tagging: reserve quota failed", slog.String("error", err.Error()))
		return metrics.OutcomeStoreError
	}
	if !reserved {
		log.Info("tagging: quota exhausted, skipping", slog.Int("ceiling", w.cfg.QuotaCeiling))
		return metrics.OutcomeQuotaExhausted
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	timer := metrics.NewTimer()
	raw, err := w.oracle.SuggestTags(callCtx, job.Title, job.Description)
	cancel()
	timer.ObserveDuration(metrics.OracleLatency)
	if err != nil {
		if relErr := w.store.ReleaseQuota(ctx); relErr != nil {
			log.Warn("tagging: release quota failed", slog.String("error", relErr.Error()))
		}
		w.settle()
		log.Warn("tagging: oracle call failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", timer.Duration()))
		return metrics.OutcomeOracleError
	}

	w.settle()

	names := NormalizeTags(raw)
	if len(names) == 0 {
		log.Info("tagging: oracle returned no usable tags")
		return metrics.OutcomeEmpty
	}

	tags, err := w.store.UpsertTags(ctx, names)
	if err != nil {
		log.Warn("tagging: upsert tags failed", slog.String("error", err.Error()))
		return metrics.OutcomeStoreError
	}
	ids := make([]string, len(tags))
	refs := make([]events.TagRef, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
		refs[i] = events.TagRef{ID: t.ID, Name: t.Name}
	}
	if err := w.store.AttachTags(ctx, job.IdeaID, ids); err != nil {
		log.Warn("tagging: attach tags failed", slog.String("error", err.Error()))
		return metrics.OutcomeStoreError
	}

	w.bus.Publish(events.TagsGenerated(job.IdeaID, job.UserID, refs))
	log.Info("tagging: tags generated", slog.Int("count", len(refs)))
	return metrics.OutcomeTagged
}

// reserve takes one quota slot. A full quota is not final while calls from
// this worker are in flight, because a failed call hands its slot back; in
// that case reserve waits for them to return and tries again.
func (w *Worker) reserve(ctx context.Context) (bool, error) {
	for {
		w.mu.Lock()
		pending := w.settled
		if w.inFlight == 0 {
			pending = nil
		}
		w.mu.Unlock()

		ok, err := w.store.ReserveQuota(ctx, w.cfg.QuotaCeiling)
		if err != nil {
			return false, err
		}
		if ok {
			w.mu.Lock()
			if w.inFlight == 0 {
				w.settled = make(chan struct{})
			}
			w.inFlight++
			w.mu.Unlock()
			return true, nil
		}
		if pending == nil {
			return false, nil
		}
		select {
		case <-pending:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// settle marks one reserved call as returned, after any release.
func (w *Worker) settle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight--
	if w.inFlight == 0 {
		close(w.settled)
	}
}

package run

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/progress"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/source"
)

// errStop ends the drive loop successfully before the strategy is exhausted.
var errStop = errors.New("stop rule matched")

// drive executes one run to a terminal state. It is the only writer of the
// run's machine after StartRun returns.
func (m *Manager) drive(ctx context.Context, ar *activeRun) {
	defer m.release(ar)

	logger := m.logger.With(
		zap.String("run_id", ar.machine.ID().String()),
		zap.String("source", ar.plan.Source.ID),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scrape run panicked", zap.Any("panic", r))
			m.finish(ar, scraper.RunStatusFailed, fmt.Sprintf("panic: %v", r), logger)
		}
	}()

	pctx, cancel := m.persistContext(ctx)
	err := ar.machine.Create(pctx)
	cancel()
	if err != nil {
		logger.Error("persist run start failed", zap.Error(err))
		m.finish(ar, scraper.RunStatusFailed, err.Error(), logger)
		return
	}
	m.emit(ar.machine.Snapshot(), progress.TypeStarted, "")

	err = m.walk(ctx, ar, logger)
	switch {
	case err == nil || errors.Is(err, errStop):
		m.finish(ar, scraper.RunStatusCompleted, "", logger)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		m.finish(ar, scraper.RunStatusCancelled, "", logger)
	default:
		logger.Error("scrape run failed", zap.Error(err))
		m.finish(ar, scraper.RunStatusFailed, err.Error(), logger)
	}
}

// walk pulls work items until the strategy is exhausted, a stop rule fires,
// the run is cancelled or an unrecoverable error occurs.
func (m *Manager) walk(ctx context.Context, ar *activeRun, logger *zap.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, ok := ar.strategy.Next()
		if !ok {
			return nil
		}
		var err error
		if item.Listing() {
			err = m.processListing(ctx, ar, item, logger)
		} else {
			err = m.processID(ctx, ar, item, logger)
		}
		if err != nil {
			return err
		}
	}
}

func (m *Manager) processListing(ctx context.Context, ar *activeRun, item scraper.WorkItem, logger *zap.Logger) error {
	src := ar.plan.Source.ID
	ids, err := fetchWithRetry(ctx, m, item.String(), logger, func(fctx context.Context) ([]string, error) {
		return m.fetcher.List(fctx, src, item)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !recoverable(err) {
			return err
		}
		logger.Warn("listing failed", zap.Stringer("item", item), zap.Error(err))
		return m.record(ctx, ar, scraper.Delta{
			ErrorCount: 1,
			LastError:  fmt.Sprintf("%s: %v", item, err),
		})
	}
	if len(ids) == 0 {
		ar.strategy.Exhaust()
		logger.Debug("listing exhausted", zap.Stringer("item", item))
		return nil
	}
	if err := m.record(ctx, ar, scraper.Delta{ArticlesFound: len(ids)}); err != nil {
		return err
	}

	known := 0
	stopAtKnown := false
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		exists, err := m.exists(ctx, src, id)
		if err != nil {
			return err
		}
		if exists {
			known++
			if ar.plan.StopRule == source.StopOnFirstKnown {
				stopAtKnown = true
				break
			}
			if !ar.plan.Config.ForceRescrape {
				continue
			}
		}
		delta, err := m.processArticle(ctx, ar, id, exists, logger)
		if err != nil {
			return err
		}
		if err := m.record(ctx, ar, delta); err != nil {
			return err
		}
	}

	if err := m.record(ctx, ar, scraper.Delta{PagesScraped: 1}); err != nil {
		return err
	}
	if stopAtKnown || (ar.plan.StopRule == source.StopOnKnownBatch && known == len(ids)) {
		logger.Info("stopping at known articles", zap.Stringer("item", item), zap.Int("known", known))
		return errStop
	}
	return nil
}

func (m *Manager) processID(ctx context.Context, ar *activeRun, item scraper.WorkItem, logger *zap.Logger) error {
	id := strconv.FormatInt(item.ID, 10)
	exists, err := m.exists(ctx, ar.plan.Source.ID, id)
	if err != nil {
		return err
	}
	delta := scraper.Delta{CurrentArticle: id}
	if !exists || ar.plan.Config.ForceRescrape {
		delta, err = m.processArticle(ctx, ar, id, exists, logger)
		if err != nil {
			return err
		}
		if delta.ArticlesNew+delta.ArticlesUpdated > 0 {
			delta.ArticlesFound = 1
		}
	}
	delta.PagesScraped = 1
	return m.record(ctx, ar, delta)
}

// processArticle fetches and stores one article and returns the counter delta
// for it. A non-nil error ends the run.
func (m *Manager) processArticle(ctx context.Context, ar *activeRun, id string, exists bool, logger *zap.Logger) (scraper.Delta, error) {
	src := ar.plan.Source.ID
	delta := scraper.Delta{CurrentArticle: id}
	article, err := fetchWithRetry(ctx, m, id, logger, func(fctx context.Context) (scraper.Article, error) {
		return m.fetcher.Fetch(fctx, src, id)
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return delta, ctx.Err()
	case errors.Is(err, scraper.ErrNotFound):
		logger.Debug("article not found", zap.String("article", id))
		delta.ArticlesFailed = 1
		return delta, nil
	case scraper.IsTransient(err):
		logger.Warn("article fetch failed after retries", zap.String("article", id), zap.Error(err))
		delta.ArticlesFailed = 1
		delta.ErrorCount = 1
		delta.LastError = fmt.Sprintf("article %s: %v", id, err)
		return delta, nil
	default:
		return delta, err
	}

	if article.ExternalID == "" {
		article.ExternalID = id
	}
	if article.Source == "" {
		article.Source = src
	}
	pctx, cancel := m.persistContext(ctx)
	defer cancel()
	if exists {
		if err := m.articles.UpdateArticle(pctx, article); err != nil {
			return delta, fmt.Errorf("update article %s: %w", id, err)
		}
		delta.ArticlesUpdated = 1
		return delta, nil
	}
	if err := m.articles.InsertArticle(pctx, article); err != nil {
		return delta, fmt.Errorf("insert article %s: %w", id, err)
	}
	delta.ArticlesNew = 1
	return delta, nil
}

// fetchWithRetry runs fn under the per-fetch timeout and retries transient
// failures. A fetch that hits its own deadline counts as transient.
func fetchWithRetry[T any](ctx context.Context, m *Manager, label string, logger *zap.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fetchOnce(ctx, m.cfg.FetchTimeout, fn)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !m.cfg.Retry.ShouldRetry(err, attempt) {
			return zero, err
		}
		wait := max(m.cfg.Retry.Backoff(attempt), scraper.RetryAfter(err))
		logger.Debug("retrying fetch",
			zap.String("item", label),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

type fetchResult[T any] struct {
	val T
	err error
}

// fetchOnce returns within timeout even when fn ignores its context. The
// result of an abandoned call is discarded.
func fetchOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan fetchResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult[T]{err: &scraper.FatalRunError{Err: fmt.Errorf("fetch panicked: %v", r)}}
			}
		}()
		val, err := fn(fctx)
		done <- fetchResult[T]{val: val, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil &&
			errors.Is(fctx.Err(), context.DeadlineExceeded) && !scraper.IsTransient(res.err) {
			res.err = scraper.Transient(fmt.Errorf("fetch timed out after %s: %w", timeout, res.err))
		}
		return res.val, res.err
	case <-fctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, scraper.Transient(fmt.Errorf("fetch timed out after %s: %w", timeout, fctx.Err()))
	}
}

func (m *Manager) exists(ctx context.Context, src, id string) (bool, error) {
	pctx, cancel := m.persistContext(ctx)
	defer cancel()
	ok, err := m.articles.ArticleExists(pctx, src, id)
	if err != nil {
		return false, fmt.Errorf("check article %s: %w", id, err)
	}
	return ok, nil
}

// record applies delta, persists it and emits a progress event.
func (m *Manager) record(ctx context.Context, ar *activeRun, delta scraper.Delta) error {
	pctx, cancel := m.persistContext(ctx)
	defer cancel()
	snap, err := ar.machine.RecordProgress(pctx, delta)
	if err != nil {
		return err
	}
	m.emit(snap, progress.TypeProgress, delta.CurrentArticle)
	return nil
}

// finish moves the run to its terminal state and emits the terminal event once.
func (m *Manager) finish(ar *activeRun, status scraper.RunStatus, reason string, logger *zap.Logger) {
	pctx, cancel := m.persistContext(context.Background())
	defer cancel()

	var (
		snap    scraper.Run
		changed bool
		err     error
	)
	switch status {
	case scraper.RunStatusCompleted:
		snap, changed, err = ar.machine.Complete(pctx)
	case scraper.RunStatusCancelled:
		snap, changed, err = ar.machine.Cancel(pctx)
	default:
		snap, changed, err = ar.machine.Fail(pctx, reason)
	}
	if err != nil {
		logger.Error("persist terminal run state failed", zap.Error(err))
	}
	if !changed {
		return
	}
	m.emit(snap, progress.TypeForStatus(snap.Status), "")
	logger.Info("scrape run finished",
		zap.String("status", string(snap.Status)),
		zap.Int("pages_scraped", snap.PagesScraped),
		zap.Int("articles_new", snap.ArticlesNew),
		zap.Int("articles_updated", snap.ArticlesUpdated),
		zap.Int("articles_failed", snap.ArticlesFailed),
		zap.Int("error_count", snap.ErrorCount),
	)
}

func (m *Manager) emit(snap scraper.Run, typ progress.Type, article string) {
	m.emitter.Emit(progress.FromRun(snap, typ, m.cfg.Now()).WithArticle(article))
}

// persistContext detaches repository writes from run cancellation so the
// final state of a cancelled run is still recorded.
func (m *Manager) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cfg.PersistTimeout)
}

// recoverable reports whether a listing failure should be counted and skipped
// rather than failing the run.
func recoverable(err error) bool {
	return scraper.IsTransient(err) || errors.Is(err, scraper.ErrNotFound)
}

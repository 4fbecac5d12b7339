package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-api/internal/cache"
	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/dataset"
	"github.com/noah-isme/storefront-api/internal/lock"
	"github.com/noah-isme/storefront-api/internal/obs"
)

// ErrAlreadyRunning is returned when another process holds the sync lock.
var ErrAlreadyRunning = errors.New("catalogsync: refresh already running")

// StoreWriter replaces the stored catalog atomically.
type StoreWriter interface {
	ReplaceAll(ctx context.Context, items []catalog.Item) error
}

// Reloader rebuilds an in-process catalog index.
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

// Result summarises one refresh.
type Result struct {
	Supplier   string    `json:"supplier"`
	Items      int       `json:"items"`
	Skipped    int       `json:"skipped"`
	Pages      int       `json:"pages"`
	Targets    []string  `json:"targets"`
	Reloaded   bool      `json:"reloaded"`
	DurationMs int64     `json:"durationMs"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Job re-derives the catalog from the supplier feed and swaps the stored
// dataset. Only one refresh per supplier runs at a time across processes.
type Job struct {
	Supplier string
	Feed     Feed
	Store    StoreWriter
	FilePath string
	Catalog  Reloader
	Locker   lock.Locker
	LockTTL  time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Run executes one refresh. The new catalog is validated in full before any
// target is written, so a bad feed never replaces a good dataset.
func (j *Job) Run(ctx context.Context) (Result, error) {
	started := j.now()
	ctx, span := obs.StartSpan(ctx, "catalogsync.Run", attribute.String("catalog.supplier", j.supplier()))
	var res Result
	err := j.Locker.TryWithLock(ctx, cache.KeyCatalogSyncLock(j.supplier()), j.lockTTL(), func(ctx context.Context) error {
		var runErr error
		res, runErr = j.run(ctx)
		return runErr
	})
	elapsed := j.now().Sub(started)
	if errors.Is(err, lock.ErrLocked) {
		obs.EndSpan(span, nil)
	} else {
		obs.EndSpan(span, err)
	}
	switch {
	case errors.Is(err, lock.ErrLocked):
		obs.ObserveCatalogSync("locked", 0, float64(elapsed.Milliseconds()))
		j.Logger.Info().Str("supplier", j.supplier()).Msg("catalog refresh skipped; lock held")
		return Result{}, ErrAlreadyRunning
	case err != nil:
		obs.ObserveCatalogSync("error", 0, float64(elapsed.Milliseconds()))
		j.Logger.Error().Err(err).Str("supplier", j.supplier()).Msg("catalog refresh failed")
		return Result{}, err
	}
	res.DurationMs = elapsed.Milliseconds()
	obs.ObserveCatalogSync("ok", res.Items, float64(res.DurationMs))
	j.Logger.Info().
		Str("supplier", res.Supplier).
		Int("items", res.Items).
		Int("skipped", res.Skipped).
		Strs("targets", res.Targets).
		Int64("duration_ms", res.DurationMs).
		Msg("catalog refresh complete")
	return res, nil
}

func (j *Job) run(ctx context.Context) (Result, error) {
	if j.Feed == nil {
		return Result{}, errors.New("catalogsync: feed not configured")
	}
	if j.Store == nil && j.FilePath == "" {
		return Result{}, errors.New("catalogsync: no target configured")
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout())
	defer cancel()

	feed, err := j.Feed.Fetch(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(feed.Items) == 0 {
		return Result{}, errors.New("catalogsync: feed returned no usable variants")
	}
	if _, err := catalog.NewIndex(feed.Items); err != nil {
		return Result{}, fmt.Errorf("catalogsync: feed rejected: %w", err)
	}

	res := Result{Supplier: j.supplier(), Items: len(feed.Items), Skipped: feed.Skipped, Pages: feed.Pages}
	if j.Store != nil {
		if err := j.Store.ReplaceAll(ctx, feed.Items); err != nil {
			return Result{}, fmt.Errorf("catalogsync: replace store: %w", err)
		}
		res.Targets = append(res.Targets, "sqlite")
	}
	if j.FilePath != "" {
		if err := dataset.WriteJSONArrayAtomic(j.FilePath, feed.Items); err != nil {
			return Result{}, fmt.Errorf("catalogsync: replace file: %w", err)
		}
		res.Targets = append(res.Targets, "file")
	}
	if j.Catalog != nil {
		if _, err := j.Catalog.Reload(context.WithoutCancel(ctx)); err != nil {
			j.Logger.Warn().Err(err).Msg("catalog stored but in-process reload failed")
		} else {
			res.Reloaded = true
		}
	}
	res.FinishedAt = j.now().UTC()
	return res, nil
}

func (j *Job) supplier() string {
	if j.Supplier == "" {
		return "merchize"
	}
	return j.Supplier
}

func (j *Job) lockTTL() time.Duration {
	if j.LockTTL <= 0 {
		return 10 * time.Minute
	}
	return j.LockTTL
}

func (j *Job) timeout() time.Duration {
	if j.Timeout <= 0 {
		return 2 * time.Minute
	}
	return j.Timeout
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

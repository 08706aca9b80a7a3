// Package updater implements the incremental cache updater: the
// enumerate/preload/reconcile/commit/invalidate pipeline that reconciles
// the on-disk source tree with the relational cache (cache.Store), per
// spec.md §4.4. Concurrency follows demlo's pipeline.go: an independent
// per-release worker stage producing a pending-write bundle, and a single
// committer goroutine draining bundles into one transaction per release.
package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/config"
	"go.sunsetglow.net/rose/internal/rlog"
	_ "go.sunsetglow.net/rose/internal/tagcodec/register"
)

// parallelThreshold is the directory count at or above which candidates are
// sharded across a worker pool rather than processed on the calling
// goroutine (spec §4.4 Parallelism).
const parallelThreshold = 50

// defaultLockTimeout bounds how long a release/collage/playlist lock is
// held before a crashed holder is considered evictable by the next
// acquirer (cache.Store.Lock's timeout parameter).
const defaultLockTimeout = 30 * time.Second

// Result summarizes one UpdateCache invocation.
type Result struct {
	ReleasesUpserted []string
	ReleasesEvicted  []string
	Errors           []error
}

// UpdateCache is update_cache(force) from spec §4.4: a full directory scan
// (dirs == nil) or a scan restricted to dirs, followed by eviction of any
// release whose source directory has disappeared, and refresh of every
// collage/playlist touched by the changes.
func UpdateCache(ctx context.Context, store *cache.Store, cfg *config.Config, logger *rlog.Logger, dirs []string, force bool) (*Result, error) {
	res, err := UpdateCacheForReleases(ctx, store, cfg, logger, dirs, force)
	if err != nil {
		return res, err
	}
	evicted, err := EvictNonexistentReleases(ctx, store, cfg, logger)
	if err != nil {
		return res, err
	}
	res.ReleasesEvicted = evicted
	return res, nil
}

// UpdateCacheForReleases runs phases 1-5 for the given directories (or
// every top-level source directory, when dirs is nil).
func UpdateCacheForReleases(ctx context.Context, store *cache.Store, cfg *config.Config, logger *rlog.Logger, dirs []string, force bool) (*Result, error) {
	candidates, err := enumerate(cfg, dirs, logger)
	if err != nil {
		return nil, err
	}

	preloaded, err := preload(ctx, store, candidates)
	if err != nil {
		return nil, err
	}

	bundles, errs := reconcileAll(ctx, store, cfg, logger, candidates, preloaded, force)

	committed, err := commitBundles(ctx, store, bundles)
	if err != nil {
		return nil, err
	}

	if err := refreshDownstream(ctx, store); err != nil {
		return nil, err
	}

	return &Result{ReleasesUpserted: committed, Errors: errs}, nil
}

// reconcileAll runs the per-release reconciliation stage, in parallel at or
// above parallelThreshold candidates and on the calling goroutine below it
// (spec §4.4 Parallelism; demlo's OPTIONS.cores single-core fallback).
func reconcileAll(ctx context.Context, store *cache.Store, cfg *config.Config, logger *rlog.Logger, candidates []candidate, preloaded preloadedState, force bool) ([]*bundle, []error) {
	if len(candidates) < parallelThreshold {
		var bundles []*bundle
		var errs []error
		for _, c := range candidates {
			b, err := reconcileOne(ctx, store, cfg, logger, c, preloaded, force)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", c.dirPath, err))
				continue
			}
			bundles = append(bundles, b)
		}
		return bundles, errs
	}
	return reconcileParallel(ctx, store, cfg, logger, candidates, preloaded, force)
}

func newReleaseID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func newTrackID() string { return newReleaseID() }

// EvictNonexistentReleases implements update_cache_evict_nonexistent_releases:
// one DELETE ... WHERE source_path NOT IN (...) against every top-level
// source directory still present on disk.
func EvictNonexistentReleases(ctx context.Context, store *cache.Store, cfg *config.Config, logger *rlog.Logger) ([]string, error) {
	entries, err := os.ReadDir(cfg.MusicSourceDir)
	if err != nil {
		return nil, err
	}
	var present []string
	for _, e := range entries {
		if !e.IsDir() || cfg.IsIgnoredReleaseDirectory(e.Name()) {
			continue
		}
		present = append(present, filepath.Join(cfg.MusicSourceDir, e.Name()))
	}
	deleted, err := store.DeleteReleasesNotIn(ctx, present)
	if err != nil {
		return nil, err
	}
	sort.Strings(deleted)
	for _, p := range deleted {
		if logger != nil {
			logger.Info.Printf("evicted release with vanished source directory: %s", p)
		}
	}
	return deleted, nil
}

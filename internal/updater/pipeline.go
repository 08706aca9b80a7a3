package updater

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/config"
	"go.sunsetglow.net/rose/internal/rlog"
)

// job/result carry one candidate through the worker pool and back, the
// same shape demlo's Pipeline passes a *FileRecord through a Stage: input
// in, a result (or an error) out, nothing shared between workers.
type job struct {
	index int
	c     candidate
}

type jobResult struct {
	index int
	b     *bundle
	err   error
	dir   string
}

// reconcileParallel shards candidates across a worker pool sized to
// cfg.MaxProc (GOMAXPROCS when unset), one release-reconciliation stage per
// worker, matching
// demlo's Pipeline.Add: workers are independent and a single goroutine
// (here, the caller collecting from the results channel) gathers output in
// submission order for deterministic bundle application.
func reconcileParallel(ctx context.Context, store *cache.Store, cfg *config.Config, logger *rlog.Logger, candidates []candidate, preloaded preloadedState, force bool) ([]*bundle, []error) {
	workerCount := cfg.MaxProc
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}
	if workerCount > len(candidates) {
		workerCount = len(candidates)
	}

	jobs := make(chan job, len(candidates))
	results := make(chan jobResult, len(candidates))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				b, err := reconcileOne(ctx, store, cfg, logger, j.c, preloaded, force)
				results <- jobResult{index: j.index, b: b, err: err, dir: j.c.dirPath}
			}
		}()
	}
	for i, c := range candidates {
		jobs <- job{index: i, c: c}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*bundle, len(candidates))
	var errs []error
	for r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.dir, r.err))
			continue
		}
		ordered[r.index] = r.b
	}

	bundles := make([]*bundle, 0, len(ordered))
	for _, b := range ordered {
		if b != nil {
			bundles = append(bundles, b)
		}
	}
	return bundles, errs
}

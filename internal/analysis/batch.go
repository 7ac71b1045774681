package analysis

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// FileResult is the profile of one file, or the error that stopped it.
type FileResult struct {
	Path   string
	Table  *table.Table
	Report *Report
	Err    error
}

// ExpandPaths resolves glob patterns and literal paths, dropping duplicates.
// The result is sorted.
func ExpandPaths(args []string) []string {
	seen := map[string]bool{}
	var files []string
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			matches = []string{arg}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files
}

// ProfileFiles loads and profiles files with at most workers running at once.
// Results keep input order. A failing file records its error without
// stopping the others; only cancellation of ctx aborts the batch.
func ProfileFiles(ctx context.Context, paths []string, load table.LoadOptions, opt Options, workers int, progress func(done, total int, path string)) ([]FileResult, error) {
	if workers <= 0 {
		workers = 4
	}
	out := make([]FileResult, len(paths))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := FileResult{Path: path}
			t, err := table.LoadFile(path, load)
			if err != nil {
				res.Err = err
			} else {
				res.Table = t
				res.Report = Profile(t, opt)
			}
			out[i] = res
			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(paths), path)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

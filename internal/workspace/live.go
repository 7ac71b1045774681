package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/logging"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// Live is a workspace that can be swapped for a fresh load while readers
// keep using the snapshot they already hold.
type Live struct {
	paths    Paths
	log      *zap.Logger
	debounce time.Duration
	cur      atomic.Pointer[Snapshot]
	onReload func(*Snapshot)
}

// Option configures a Live workspace.
type Option func(*Live)

// WithDebounce sets the watcher's settle delay.
func WithDebounce(d time.Duration) Option { return func(l *Live) { l.debounce = d } }

// WithReloadHook is called with every snapshot installed by a reload.
func WithReloadHook(fn func(*Snapshot)) Option { return func(l *Live) { l.onReload = fn } }

// Open loads the workspace once.
func Open(ctx context.Context, p Paths, log *zap.Logger, opts ...Option) (*Live, error) {
	l := &Live{paths: p, log: logging.OrNop(log), debounce: DefaultDebounce}
	for _, o := range opts {
		o(l)
	}
	snap, err := Load(ctx, p, l.log)
	if err != nil {
		return nil, err
	}
	l.cur.Store(snap)
	return l, nil
}

// Current returns the latest snapshot.
func (l *Live) Current() *Snapshot { return l.cur.Load() }

// Dataset implements engine.Source over the latest snapshot.
func (l *Live) Dataset(name string) (*table.Table, bool) {
	return l.Current().Dataset(name)
}

// Reload rebuilds the workspace from disk and swaps it in. On failure the
// previous snapshot stays current.
func (l *Live) Reload(ctx context.Context) error {
	snap, err := Load(ctx, l.paths, l.log)
	if err != nil {
		return err
	}
	l.cur.Store(snap)
	l.log.Info("workspace reloaded", zap.Int("datasets", len(snap.Tables)), zap.Int("codebook_entries", snap.Codebook.Len()))
	if l.onReload != nil {
		l.onReload(snap)
	}
	return nil
}

// Watch reloads the workspace whenever one of its files is written, created,
// removed or renamed. It blocks until ctx is done.
func (l *Live) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	tracked := map[string]bool{}
	dirs := map[string]bool{}
	for _, f := range l.paths.Files() {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		tracked[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// Directories, not files, so that editors that replace a file on save
	// keep being seen.
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			abs, _ := filepath.Abs(ev.Name)
			if !tracked[abs] {
				continue
			}
			l.log.Debug("workspace file changed", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(l.debounce)
			} else {
				timer.Reset(l.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := l.Reload(ctx); err != nil {
				l.log.Error("workspace reload failed", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Error("watcher error", zap.Error(err))
		}
	}
}

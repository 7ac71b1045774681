// Package workspace holds the fixed datasets of a data directory: the client
// list, the sales ledger, the sales journal and the codebook that names their
// columns. A Live workspace reloads them when the files change.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/engine"
	"github.com/liszzmword/ai-data-analyst/internal/logging"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// Paths locates the workspace files. Empty dataset paths are skipped.
type Paths struct {
	Codebook string
	Datasets map[string]string
}

// PathsFrom resolves the configured file names against the data directory.
func PathsFrom(c *config.Global) Paths {
	return Paths{
		Codebook: c.Path(c.CodebookFile),
		Datasets: map[string]string{
			codebook.DatasetClients: c.Path(c.ClientFile),
			codebook.DatasetSales:   c.Path(c.SalesFile),
			codebook.DatasetJournal: c.Path(c.JournalFile),
		},
	}
}

// Files lists every path of p, codebook first.
func (p Paths) Files() []string {
	out := []string{p.Codebook}
	for _, name := range datasetOrder {
		if f := p.Datasets[name]; f != "" {
			out = append(out, f)
		}
	}
	return out
}

var datasetOrder = []string{codebook.DatasetClients, codebook.DatasetSales, codebook.DatasetJournal}

// Snapshot is one consistent load of the workspace.
type Snapshot struct {
	Tables   engine.Tables
	Codebook *codebook.Codebook
	// Missing names the datasets whose file was absent.
	Missing  []string
	LoadedAt time.Time
}

// Dataset implements engine.Source.
func (s *Snapshot) Dataset(name string) (*table.Table, bool) {
	return s.Tables.Dataset(name)
}

// Engine builds an engine over the snapshot.
func (s *Snapshot) Engine(opts ...engine.Option) *engine.Engine {
	return engine.New(s.Tables, s.Codebook, opts...)
}

// Load reads the codebook and datasets concurrently. The codebook is
// required; a dataset whose file does not exist is logged and left out.
// Dataset columns are renamed through the codebook before numeric
// normalization, so coded headers such as D-5 are typed by their meaning.
func Load(ctx context.Context, p Paths, log *zap.Logger) (*Snapshot, error) {
	log = logging.OrNop(log)
	snap := &Snapshot{Tables: engine.Tables{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cb, err := codebook.Load(p.Codebook, log)
		if err != nil {
			return err
		}
		snap.Codebook = cb
		return nil
	})
	for _, name := range datasetOrder {
		path := p.Datasets[name]
		if path == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := table.LoadFile(path, table.LoadOptions{Encodings: table.DefaultEncodings})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, os.ErrNotExist) {
				log.Warn("dataset file not found, skipping", zap.String("dataset", name), zap.String("file", path))
				snap.Missing = append(snap.Missing, name)
				return nil
			}
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			log.Info("dataset loaded",
				zap.String("dataset", name),
				zap.String("file", filepath.Base(path)),
				zap.String("encoding", t.Encoding),
				zap.Int("rows", t.Len()),
				zap.Int("columns", t.Width()))
			snap.Tables[name] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for name, t := range snap.Tables {
		t, renamed := snap.Codebook.Apply(t, snap.Codebook.KindForDataset(name))
		snap.Tables[name] = table.NormalizeNumeric(t)
		log.Debug("dataset columns translated", zap.String("dataset", name), zap.Int("renamed", renamed))
	}
	snap.LoadedAt = time.Now()
	return snap, nil
}

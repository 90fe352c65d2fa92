package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/brensch/snekgym/gym"
)

// ArchiveOptions selects which outputs an Archive produces.
type ArchiveOptions struct {
	// Turns records every tick as TurnRows. This is large.
	Turns bool
	// StatsCSV writes stats.csv alongside the parquet files.
	StatsCSV bool
}

// Archive lays out one run under dir/<run_id>/:
//
//	config.yaml
//	generations/gen_000000.parquet
//	turns/gen_000000.parquet   (when Turns is set)
//	stats.csv                  (when StatsCSV is set)
//
// RecordTick and RecordGeneration are safe to call from the gym callbacks.
type Archive struct {
	dir  string
	opts ArchiveOptions
	log  *slog.Logger

	mu      sync.Mutex
	turns   *TurnWriter
	turnGen int
	stats   *StatsWriter
	closed  bool

	generations int
	turnRows    int
}

// Open creates the run directory.
func Open(root string, runID uuid.UUID, opts ArchiveOptions, logger *slog.Logger) (*Archive, error) {
	if root == "" {
		return nil, fmt.Errorf("archive dir is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(root, runID.String())
	if err := os.MkdirAll(filepath.Join(dir, "generations"), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	a := &Archive{dir: dir, opts: opts, log: logger.With("archive", dir), turnGen: -1}
	if opts.StatsCSV {
		sw, err := NewStatsWriter(filepath.Join(dir, "stats.csv"))
		if err != nil {
			return nil, err
		}
		a.stats = sw
	}
	return a, nil
}

func (a *Archive) Dir() string { return a.dir }

// WriteConfig stores the effective run configuration.
func (a *Archive) WriteConfig(data []byte) error {
	return os.WriteFile(filepath.Join(a.dir, "config.yaml"), data, 0o644)
}

func generationFile(gen int) string {
	return fmt.Sprintf("gen_%06d.parquet", gen)
}

// RecordTick appends the tick's snapshots to the current generation's turn
// file. It is a no-op unless Turns is enabled.
func (a *Archive) RecordTick(e gym.TickEvent) error {
	if !a.opts.Turns {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	if a.turns == nil || a.turnGen != e.Generation {
		if err := a.finalizeTurnsLocked(); err != nil {
			return err
		}
		w, err := NewTurnWriter(filepath.Join(a.dir, "turns", generationFile(e.Generation)))
		if err != nil {
			return err
		}
		a.turns = w
		a.turnGen = e.Generation
	}
	return a.turns.Write(TurnRows(e))
}

// RecordGeneration writes the generation's results and stats line, and
// closes the generation's turn file.
func (a *Archive) RecordGeneration(r *gym.GenerationReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}

	var errs []error
	if a.turnGen == r.Generation {
		errs = append(errs, a.finalizeTurnsLocked())
	}

	path := filepath.Join(a.dir, "generations", generationFile(r.Generation))
	if err := WriteGenerationsParquet(path, GenerationRows(r)); err != nil {
		errs = append(errs, err)
	} else {
		a.generations++
	}
	if a.stats != nil {
		errs = append(errs, a.stats.Write(Stats(r)))
	}
	return errors.Join(errs...)
}

func (a *Archive) finalizeTurnsLocked() error {
	if a.turns == nil {
		return nil
	}
	path, rows, err := a.turns.Finalize()
	a.turns = nil
	a.turnGen = -1
	if err != nil {
		return err
	}
	a.turnRows += rows
	if path != "" {
		a.log.Debug("finalized turns", "path", path, "rows", rows)
	}
	return nil
}

// Close finalises open writers. Calling it twice is safe.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	errs = append(errs, a.finalizeTurnsLocked())
	if a.stats != nil {
		errs = append(errs, a.stats.Close())
	}
	if a.opts.Turns {
		_ = os.Remove(filepath.Join(a.dir, "turns", "tmp"))
	}
	a.log.Info("archive closed", "generations", a.generations, "turn_rows", a.turnRows)
	return errors.Join(errs...)
}

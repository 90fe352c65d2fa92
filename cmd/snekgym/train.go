package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/gym"
	"github.com/brensch/snekgym/store"
	"github.com/brensch/snekgym/stream"
	"github.com/brensch/snekgym/tui"
)

type trainOptions struct {
	width        int32
	height       int32
	population   int
	epochs       int
	mutationRate float64
	maxTurns     int32
	workers      int
	seed         int64
	policy       string
	archiveDir   string
	turns        bool
	streamAddr   string
	tui          bool
	logFile      string
}

func newTrainCmd(root *rootOptions) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the evolutionary gym",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runTrain(cmd.Context(), cfg, opts)
		},
	}

	f := cmd.Flags()
	f.Int32Var(&opts.width, "width", 0, "Board width")
	f.Int32Var(&opts.height, "height", 0, "Board height")
	f.IntVar(&opts.population, "population", 0, "Individuals per generation")
	f.IntVar(&opts.epochs, "epochs", 0, "Generation transitions before the gym is exhausted")
	f.Float64Var(&opts.mutationRate, "mutation-rate", 0, "Per-parameter mutation probability in [0,1]")
	f.Int32Var(&opts.maxTurns, "max-turns", 0, "Freeze individuals at this turn (0 disables)")
	f.IntVar(&opts.workers, "workers", 0, "Parallel evaluations per tick")
	f.Int64Var(&opts.seed, "seed", 0, "First generation environment seed")
	f.StringVar(&opts.policy, "policy", "", "neural, onnx or greedy")
	f.StringVar(&opts.archiveDir, "archive-dir", "", "Write parquet/CSV telemetry under this directory")
	f.BoolVar(&opts.turns, "turns", false, "Archive every tick's board snapshots")
	f.StringVar(&opts.streamAddr, "stream-addr", "", "Serve the websocket feed on this address, e.g. :8080")
	f.BoolVar(&opts.tui, "tui", false, "Show the live terminal monitor")
	f.StringVar(&opts.logFile, "log-file", "snekgym.log", "Log destination while the monitor is shown")
	return cmd
}

// apply overrides cfg with the flags the user actually set.
func (o *trainOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("width") {
		cfg.Board.Width = o.width
	}
	if set("height") {
		cfg.Board.Height = o.height
	}
	if set("seed") {
		seed := o.seed
		cfg.Board.Seed = &seed
	}
	if set("population") {
		cfg.Gym.PopulationSize = o.population
	}
	if set("epochs") {
		cfg.Gym.Epochs = o.epochs
	}
	if set("mutation-rate") {
		cfg.Gym.MutationRate = o.mutationRate
	}
	if set("max-turns") {
		cfg.Gym.MaxTurns = o.maxTurns
	}
	if set("workers") {
		cfg.Gym.Workers = o.workers
	}
	if set("policy") {
		cfg.Policy.Kind = o.policy
	}
	if set("archive-dir") {
		cfg.Output.ArchiveDir = o.archiveDir
	}
	if set("turns") {
		cfg.Output.Turns = o.turns
	}
	if set("stream-addr") {
		cfg.Stream.Addr = o.streamAddr
	}
}

func runTrain(parent context.Context, cfg *config.Config, opts *trainOptions) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var logOut io.Writer = os.Stderr
	if opts.tui {
		f, ferr := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if ferr != nil {
			return fmt.Errorf("open log file: %w", ferr)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := newLogger(logOut, cfg)
	if err != nil {
		return err
	}

	family, closeFamily, err := buildFamily(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeFamily()) }()

	var (
		archive *store.Archive
		hub     *stream.Hub
		feed    *tui.Feed
	)
	if cfg.Stream.Addr != "" {
		hub = stream.NewHub(logger)
	}
	if opts.tui {
		feed = tui.NewFeed()
	}

	gc := cfg.GymConfig()
	gc.Family = family
	gc.Logger = logger
	gc.OnTick = func(e gym.TickEvent) {
		if archive != nil {
			if err := archive.RecordTick(e); err != nil {
				logger.Warn("archive tick", "error", err)
			}
		}
		if hub != nil {
			hub.PublishTick(e)
		}
		if feed != nil {
			feed.OnTick(e)
		}
	}
	gc.OnGeneration = func(r *gym.GenerationReport) {
		if archive != nil {
			if err := archive.RecordGeneration(r); err != nil {
				logger.Warn("archive generation", "error", err)
			}
		}
		if hub != nil {
			hub.PublishGeneration(r)
		}
		if feed != nil {
			feed.OnGeneration(r)
		}
	}

	g, err := gym.New(gc)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, g.Close()) }()

	if cfg.Output.ArchiveDir != "" {
		archive, err = store.Open(cfg.Output.ArchiveDir, g.RunID(), store.ArchiveOptions{
			Turns:    cfg.Output.Turns,
			StatsCSV: cfg.Output.StatsCSV,
		}, logger)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, archive.Close()) }()

		data, yerr := cfg.YAML()
		if yerr == nil {
			yerr = archive.WriteConfig(data)
		}
		if yerr != nil {
			logger.Warn("config snapshot", "error", yerr)
		}
		logger.Info("archiving run", "dir", archive.Dir())
	}

	if hub != nil {
		serveErr := make(chan error, 1)
		go func() { serveErr <- hub.Serve(ctx, cfg.Stream.Addr) }()
		defer func() {
			cancel()
			if serr := <-serveErr; serr != nil {
				err = errors.Join(err, fmt.Errorf("stream: %w", serr))
			}
		}()
	}

	start := time.Now()
	var runErr error
	if feed == nil {
		runErr = g.Run(ctx)
	} else {
		runErr = runWithMonitor(ctx, cancel, g, feed, cfg)
	}
	if errors.Is(runErr, context.Canceled) {
		logger.Warn("training interrupted", "generation", g.Generation(), "ticks", g.Ticks())
		return nil
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("training finished",
		"run", g.RunID().String(),
		"generations", g.Generation()+1,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// runWithMonitor runs the gym in the background while the monitor owns the
// terminal. Quitting the monitor cancels training.
func runWithMonitor(ctx context.Context, cancel context.CancelFunc, g *gym.Gym, feed *tui.Feed, cfg *config.Config) error {
	runErr := make(chan error, 1)
	go func() {
		err := g.Run(ctx)
		feed.Finish(err)
		runErr <- err
	}()

	title := fmt.Sprintf("snekgym %s  %dx%d  %s", g.RunID().String()[:8], cfg.Board.Width, cfg.Board.Height, cfg.Policy.Kind)
	p := tea.NewProgram(tui.New(feed, title, cfg.Gym.Epochs))
	if _, err := p.Run(); err != nil {
		cancel()
		<-runErr
		return fmt.Errorf("monitor: %w", err)
	}
	cancel()
	return <-runErr
}

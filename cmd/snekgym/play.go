package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/rng"
	"github.com/brensch/snekgym/rules"
)

type playOptions struct {
	policy   string
	seed     int64
	maxTurns int32
	trace    bool
}

func newPlayCmd(root *rootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one episode with a single policy and log the outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("policy") {
				cfg.Policy.Kind = opts.policy
			}
			if cmd.Flags().Changed("seed") {
				seed := opts.seed
				cfg.Board.Seed = &seed
			}
			if cmd.Flags().Changed("max-turns") {
				cfg.Gym.MaxTurns = opts.maxTurns
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runPlay(cmd, cfg, opts.trace)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.policy, "policy", "", "greedy, neural or onnx")
	f.Int64Var(&opts.seed, "seed", 0, "Environment seed (default: drawn from gym.random_seed)")
	f.Int32Var(&opts.maxTurns, "max-turns", 0, "Stop after this many turns (0 disables)")
	f.BoolVar(&opts.trace, "trace", false, "Print the board after every turn")
	return cmd
}

func runPlay(cmd *cobra.Command, cfg *config.Config, trace bool) (err error) {
	logger, err := newLogger(os.Stderr, cfg)
	if err != nil {
		return err
	}

	seed := rng.Seed(rng.New(cfg.Gym.RandomSeed), cfg.Board.Width, cfg.Board.Height)
	if cfg.Board.Seed != nil {
		seed = *cfg.Board.Seed
	}
	state, err := rules.Create(cfg.Board.Width, cfg.Board.Height, seed)
	if err != nil {
		return err
	}

	family, closeFamily, err := buildFamily(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeFamily()) }()

	p, err := family.New(state)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	defer func() { err = errors.Join(err, family.Dispose(p)) }()

	out := cmd.OutOrStdout()
	if trace {
		fmt.Fprintf(out, "turn %d\n%s\n", state.Turn, state)
	}
	for state.Status == game.Running {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		if cfg.Gym.MaxTurns > 0 && state.Turn >= cfg.Gym.MaxTurns {
			break
		}
		action := p.Decide(state, nil)
		state = rules.Update(state, action)
		if trace {
			fmt.Fprintf(out, "turn %d %s\n%s\n", state.Turn, action, state)
		}
	}

	logger.Info("episode finished",
		"policy", family.Name(),
		"seed", seed,
		"board", fmt.Sprintf("%dx%d", state.Width, state.Height),
		"status", state.Status.String(),
		"turns", state.Turn,
		"length", len(state.Snake),
	)
	return nil
}

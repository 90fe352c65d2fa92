package main

import (
	"fmt"
	"log/slog"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/policy/neural"
	"github.com/brensch/snekgym/policy/onnxpolicy"
	"github.com/brensch/snekgym/policy/scripted"
	"github.com/brensch/snekgym/rng"
)

// buildFamily returns the configured policy family and a closer for any
// resources it holds.
func buildFamily(cfg *config.Config, logger *slog.Logger) (policy.Family, func() error, error) {
	noop := func() error { return nil }
	seed := cfg.Gym.RandomSeed

	switch cfg.Policy.Kind {
	case config.PolicyNeural:
		fam := neural.NewFamily(
			neural.WithHidden(cfg.Policy.Hidden),
			neural.WithSigma(cfg.Policy.Sigma),
			neural.WithRand(rng.New(seed+1)),
		)
		return fam, noop, nil

	case config.PolicyGreedy:
		return scripted.GreedyFamily(), noop, nil

	case config.PolicyONNX:
		o := cfg.Policy.ONNX
		fam, err := onnxpolicy.NewFamily(onnxpolicy.Config{
			Models:       o.Models,
			Width:        cfg.Board.Width,
			Height:       cfg.Board.Height,
			Sessions:     o.Sessions,
			BatchSize:    o.BatchSize,
			BatchTimeout: o.BatchTimeout,
			InputName:    o.InputName,
			OutputName:   o.OutputName,
			CUDA:         o.CUDA,
			Rand:         rng.New(seed + 1),
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, err
		}
		closer := func() error {
			st := fam.Stats()
			logger.Info("onnx batching",
				"batches", st.Batches,
				"items", st.Items,
				"avg_batch", fmt.Sprintf("%.2f", st.AvgBatchSize),
			)
			return fam.Close()
		}
		return fam, closer, nil
	}
	return nil, nil, fmt.Errorf("unknown policy kind %q", cfg.Policy.Kind)
}

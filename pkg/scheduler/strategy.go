package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tradebot/pkg/boterr"
	"tradebot/pkg/transport"
)

// Strategy is one way of constructing a client with its job scheduler out of
// the way.
type Strategy struct {
	Name  string
	Build func(ctx context.Context, construct transport.Constructor, opts transport.Options) (transport.Client, error)
}

// DefaultStrategies returns the construction tiers in the order they are tried.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "no-scheduler", Build: buildWithoutScheduler},
		{Name: "clear-scheduler", Build: buildThenClear},
		{Name: "noop-scheduler", Build: buildThenStub},
	}
}

// Construct tries each strategy in order and returns the first client built.
// When every strategy fails the result is a client_construction error carrying
// every tier's cause.
func Construct(ctx context.Context, construct transport.Constructor, opts transport.Options, strategies []Strategy, log *slog.Logger) (transport.Client, string, error) {
	if construct == nil {
		return nil, "", boterr.New(boterr.ClientConstruction, "no constructor configured")
	}
	if len(strategies) == 0 {
		return nil, "", boterr.New(boterr.ClientConstruction, "no construction strategies configured")
	}
	if log == nil {
		log = slog.Default()
	}

	failures := make([]error, 0, len(strategies))
	for i, strategy := range strategies {
		client, err := strategy.Build(ctx, construct, opts)
		if err == nil {
			log.Info("Transport client constructed", "strategy", strategy.Name, "tier", i+1)
			return client, strategy.Name, nil
		}

		log.Warn("Transport client construction failed", "strategy", strategy.Name, "tier", i+1, "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", strategy.Name, err))
	}

	return nil, "", boterr.Wrap(boterr.ClientConstruction, "all construction strategies failed", errors.Join(failures...))
}

func buildWithoutScheduler(ctx context.Context, construct transport.Constructor, opts transport.Options) (transport.Client, error) {
	opts.DisableScheduler = true
	return construct(ctx, opts)
}

func buildThenClear(ctx context.Context, construct transport.Constructor, opts transport.Options) (transport.Client, error) {
	return buildThenReplace(ctx, construct, opts, nil)
}

func buildThenStub(ctx context.Context, construct transport.Constructor, opts transport.Options) (transport.Client, error) {
	return buildThenReplace(ctx, construct, opts, NoopScheduler{})
}

func buildThenReplace(ctx context.Context, construct transport.Constructor, opts transport.Options, replacement transport.Scheduler) (transport.Client, error) {
	opts.DisableScheduler = false

	client, err := construct(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := client.ReplaceScheduler(replacement); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("replace scheduler: %w", err)
	}

	return client, nil
}

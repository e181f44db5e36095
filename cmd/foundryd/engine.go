package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"foundry/internal/domain"
	"foundry/internal/infra/fixer"
	"foundry/internal/infra/invoke"
	"foundry/internal/infra/orchestrator"
	"foundry/internal/infra/registry"
	"foundry/internal/infra/telemetry"
	"foundry/internal/infra/validate"
)

// engine bundles the wired components one command invocation needs.
type engine struct {
	store      *registry.Store
	controller *orchestrator.Controller
	registry   *prometheus.Registry
}

func openEngine(opts *cliOptions) (*engine, func(), error) {
	store, err := registry.Open(opts.config.StoragePath, opts.logger)
	if err != nil {
		return nil, nil, err
	}

	promRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(promRegistry)

	invoker := invoke.NewStdioInvoker(
		time.Duration(opts.config.InvokeTimeoutSeconds)*time.Second,
		opts.logger,
	)
	pipeline := validate.NewPipeline(
		invoker,
		time.Duration(opts.config.StageTimeoutSeconds)*time.Second,
		opts.logger, metrics,
	)
	fixes := fixer.NewManager(store, opts.logger, metrics)

	// No build collaborator ships with the CLI; run accepts candidates
	// through flags and otherwise reuses active tools.
	var builder domain.Builder
	controller := orchestrator.NewController(
		store, pipeline, fixes, builder,
		opts.config.MaxFixCycles,
		opts.config.MaxParallelCycles,
		opts.logger, metrics,
	)

	cleanup := func() {
		_ = store.Close()
	}
	return &engine{
		store:      store,
		controller: controller,
		registry:   promRegistry,
	}, cleanup, nil
}

func openStore(opts *cliOptions) (*registry.Store, func(), error) {
	store, err := registry.Open(opts.config.StoragePath, opts.logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

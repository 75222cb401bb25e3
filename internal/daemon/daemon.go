// Package daemon wires the service's modules together and manages
// their lifecycle.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ToFut/Tredy-sub001/internal/config"
	"github.com/ToFut/Tredy-sub001/internal/logger"
	"github.com/ToFut/Tredy-sub001/internal/observability"
	"github.com/ToFut/Tredy-sub001/internal/tracing"
	"github.com/ToFut/Tredy-sub001/pkg/flow"
	"github.com/ToFut/Tredy-sub001/pkg/gateway"
	"github.com/ToFut/Tredy-sub001/pkg/invocation"
	"github.com/ToFut/Tredy-sub001/pkg/provider"
	"github.com/ToFut/Tredy-sub001/pkg/runtime"
	"github.com/ToFut/Tredy-sub001/pkg/scheduler"
	"github.com/ToFut/Tredy-sub001/pkg/scraper"
)

// Daemon is the tredy service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store     *invocation.Store
	registry  *gateway.WorkspaceRegistry
	provider  provider.CompletionProvider
	tools     *runtime.ToolRegistry
	flowStore *flow.Store
	compiler  *flow.Compiler
	executor  *flow.Executor
	scraper   *scraper.Scraper
	server    *gateway.Server
	scheduler *scheduler.Scheduler

	mu      sync.RWMutex
	running bool

	tracingEnabled bool
}

// New creates the daemon, initializing all modules in dependency order
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if err := tracing.Init(tracing.Config{
		ServiceName:  "tredy",
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
	} else {
		d.tracingEnabled = true
	}

	if err := d.initialize(); err != nil {
		d.teardown()
		return nil, err
	}

	return d, nil
}

func (d *Daemon) initialize() error {
	zl := d.logger.Get()

	store, err := invocation.NewStore(invocation.Config{
		DBPath: filepath.Join(d.config.DataDir, "invocations.db"),
		Logger: zl,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize invocation store: %w", err)
	}
	d.store = store

	factory := &provider.Factory{}
	p, err := factory.NewProvider(provider.Credentials{
		Provider: d.config.Provider.Name,
		APIKey:   d.config.Provider.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize completion provider: %w", err)
	}
	d.provider = p

	flowStore, err := flow.NewStore(flow.StoreConfig{
		Dir:    d.config.Flows.Dir,
		Logger: zl,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize flow store: %w", err)
	}
	d.flowStore = flowStore

	compiler, err := flow.NewCompiler(flow.CompilerConfig{
		Provider: p,
		Store:    flowStore,
		Logger:   zl,
		Model:    d.config.Provider.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize flow compiler: %w", err)
	}
	d.compiler = compiler

	d.scraper = scraper.New(scraper.Config{
		Logger:    zl,
		Headless:  true,
		NoSandbox: true,
	})

	executor, err := flow.NewExecutor(flow.ExecutorConfig{
		Store:    flowStore,
		Provider: p,
		Scraper:  d.scraper,
		Logger:   zl,
		Model:    d.config.Provider.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize flow executor: %w", err)
	}
	d.executor = executor

	d.registry = gateway.NewWorkspaceRegistry()

	d.tools = runtime.NewToolRegistry()
	if err := d.registerTools(); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:     d.config.Server.Host,
		Port:     d.config.Server.Port,
		Store:    store,
		Registry: d.registry,
		Provider: p,
		Tools:    d.tools,
		Logger:   zl,
		Session: gateway.SessionOptions{
			Model:           d.config.Provider.Model,
			Temperature:     d.config.Provider.Temperature,
			MaxTokens:       d.config.Provider.MaxTokens,
			SystemPrompt:    d.config.Runtime.SystemPrompt,
			MaxTurns:        d.config.Runtime.MaxTurns,
			Introspection:   d.config.Runtime.Introspection,
			FeedbackGate:    d.config.Runtime.FeedbackGate,
			FeedbackTimeout: time.Duration(d.config.Runtime.FeedbackTimeoutMs) * time.Millisecond,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}
	d.server = server

	sched, err := scheduler.New(scheduler.Config{
		Registry: d.registry,
		Logger:   zl,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	for _, job := range d.config.Scheduler.Jobs {
		if err := sched.AddJob(scheduler.Job{
			WorkspaceID: job.WorkspaceID,
			Spec:        job.Spec,
			Message:     job.Message,
		}); err != nil {
			return fmt.Errorf("failed to add scheduled job: %w", err)
		}
	}
	d.scheduler = sched

	return nil
}

// Start launches the gateway and the scheduler
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	if err := d.server.Start(); err != nil {
		return err
	}
	d.scheduler.Start()

	d.running = true
	d.logger.Info().Int("port", d.config.Server.Port).Msg("Daemon started")
	return nil
}

// Stop shuts the modules down in reverse dependency order. Pending
// background invocation closes are drained before the store closes.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	d.scheduler.Stop()
	if err := d.server.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Gateway shutdown error")
	}
	d.teardown()

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

func (d *Daemon) teardown() {
	if d.scraper != nil {
		if err := d.scraper.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Browser shutdown error")
		}
	}
	if d.flowStore != nil {
		if err := d.flowStore.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Flow store shutdown error")
		}
	}
	if d.store != nil {
		if err := d.store.Shutdown(); err != nil {
			d.logger.Warn().Err(err).Msg("Invocation store shutdown error")
		}
	}
	if d.tracingEnabled {
		_ = tracing.Shutdown(context.Background())
		d.tracingEnabled = false
	}
}

// Running reports whether the daemon has been started and not stopped
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

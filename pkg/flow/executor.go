package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ToFut/Tredy-sub001/internal/observability"
	"github.com/ToFut/Tredy-sub001/pkg/provider"
)

// APICaller performs the HTTP request behind an apiCall step
type APICaller interface {
	Call(ctx context.Context, method, url string, headers map[string]string, body string) (string, error)
}

// Scraper fetches page content behind a webScraping step
type Scraper interface {
	Scrape(ctx context.Context, url, selector string) (string, error)
}

// Executor runs compiled flows step by step. Steps execute in strict
// array order with no parallelism or reordering; a step failure stops
// the run immediately with the partial results recorded so far.
type Executor struct {
	store    *Store
	provider provider.CompletionProvider
	api      APICaller
	scraper  Scraper
	logger   zerolog.Logger
	model    string
}

// ExecutorConfig holds the dependencies for creating an Executor.
// Scraper may be nil, in which case webScraping steps fail with a
// descriptive error instead of panicking.
type ExecutorConfig struct {
	Store    *Store
	Provider provider.CompletionProvider
	API      APICaller
	Scraper  Scraper
	Logger   zerolog.Logger
	Model    string
}

// NewExecutor creates an executor over the given flow store
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("completion provider is required")
	}
	if cfg.API == nil {
		cfg.API = NewHTTPAPICaller(0)
	}
	observability.EnsureRegistered()
	return &Executor{
		store:    cfg.Store,
		provider: cfg.Provider,
		api:      cfg.API,
		scraper:  cfg.Scraper,
		logger:   cfg.Logger,
		model:    cfg.Model,
	}, nil
}

// Execute loads the flow and runs its steps in order. Initial
// variables seed the binding table; each step's output is bound under
// its resultVariable for later steps. A directOutput step ends the run
// successfully without executing anything after it.
func (e *Executor) Execute(ctx context.Context, flowUUID string, initialVars map[string]string) (*RunResult, error) {
	flow, err := e.store.Get(flowUUID)
	if err != nil {
		return nil, err
	}
	if flow.Status != StatusComplete {
		return nil, fmt.Errorf("flow %s is not runnable (status %s)", flowUUID, flow.Status)
	}

	logger := e.logger.With().Str("flow_uuid", flowUUID).Logger()

	bindings := make(map[string]string, len(initialVars))
	for name, value := range initialVars {
		bindings[name] = value
	}

	result := &RunResult{Success: true}

	for i, step := range flow.Steps {
		if step.Type == StepStart {
			for _, v := range step.Config.Variables {
				if _, seeded := bindings[v.Name]; !seeded {
					bindings[v.Name] = v.Value
				}
			}
			continue
		}

		for _, v := range step.Config.Variables {
			if _, seeded := bindings[v.Name]; !seeded {
				bindings[v.Name] = v.Value
			}
		}

		start := time.Now()
		output, err := e.runStep(ctx, step, bindings)
		duration := time.Since(start)

		if err != nil {
			observability.RecordFlowStep(string(step.Type), "error", duration)
			logger.Error().Err(err).Int("step", i).Str("type", string(step.Type)).Msg("Flow step failed")
			result.Success = false
			result.Results = append(result.Results, StepResult{
				Type:     step.Type,
				Variable: step.Config.ResultVariable,
				Error:    err.Error(),
			})
			return result, nil
		}

		observability.RecordFlowStep(string(step.Type), "success", duration)
		logger.Debug().Int("step", i).Str("type", string(step.Type)).Msg("Flow step complete")

		if step.Config.ResultVariable != "" {
			bindings[step.Config.ResultVariable] = output
		}
		result.Results = append(result.Results, StepResult{
			Type:     step.Type,
			Variable: step.Config.ResultVariable,
			Output:   output,
		})

		if step.Config.DirectOutput {
			result.DirectOutput = output
			logger.Info().Int("step", i).Msg("Direct output step reached, short-circuiting")
			return result, nil
		}
	}

	return result, nil
}

func (e *Executor) runStep(ctx context.Context, step Step, bindings map[string]string) (string, error) {
	switch step.Type {
	case StepLLMInstruction:
		return e.runInstruction(ctx, step.Config, bindings)
	case StepAPICall:
		return e.runAPICall(ctx, step.Config, bindings)
	case StepWebScraping:
		return e.runScrape(ctx, step.Config, bindings)
	default:
		return "", fmt.Errorf("unknown step type %q", step.Type)
	}
}

func (e *Executor) runInstruction(ctx context.Context, cfg StepConfig, bindings map[string]string) (string, error) {
	completion, err := e.provider.Complete(ctx, provider.Request{
		Model: e.model,
		Messages: []provider.Message{
			{Role: "user", Content: Render(cfg.Instruction, bindings)},
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	})
	if err != nil {
		return "", fmt.Errorf("instruction step failed: %w", err)
	}
	return completion.Content, nil
}

func (e *Executor) runAPICall(ctx context.Context, cfg StepConfig, bindings map[string]string) (string, error) {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = Render(v, bindings)
	}
	return e.api.Call(ctx, cfg.Method, Render(cfg.URL, bindings), headers, Render(cfg.Body, bindings))
}

func (e *Executor) runScrape(ctx context.Context, cfg StepConfig, bindings map[string]string) (string, error) {
	if e.scraper == nil {
		return "", fmt.Errorf("no scraper configured for webScraping step")
	}
	return e.scraper.Scrape(ctx, Render(cfg.URL, bindings), cfg.Selector)
}

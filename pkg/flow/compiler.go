package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ToFut/Tredy-sub001/internal/observability"
	"github.com/ToFut/Tredy-sub001/pkg/provider"
)

// planSchema constrains the completion provider's workflow plan. Step
// types and per-type required fields mirror what the executor
// dispatches on.
const planSchema = `{
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type", "config"],
        "properties": {
          "type": {"type": "string", "enum": ["llmInstruction", "apiCall", "webScraping"]},
          "config": {
            "type": "object",
            "properties": {
              "instruction": {"type": "string"},
              "resultVariable": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"},
              "directOutput": {"type": "boolean"},
              "method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
              "url": {"type": "string"},
              "headers": {"type": "object", "additionalProperties": {"type": "string"}},
              "body": {"type": "string"},
              "selector": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

const compilerSystemPrompt = `You are a workflow compiler. Convert the user's task description into a JSON workflow plan.

Respond with ONLY a JSON object, no prose, matching this schema:
{"name": "<short workflow name>", "steps": [{"type": "llmInstruction"|"apiCall"|"webScraping", "config": {...}}]}

Step config fields:
- llmInstruction: "instruction" (may reference earlier results as {{variableName}})
- apiCall: "method", "url", optional "headers" and "body"
- webScraping: "url", optional "selector"
- any step: "resultVariable" to name its output, "directOutput": true on the step whose output is the final answer

Keep the plan minimal. Reference earlier step outputs with {{variableName}} placeholders.`

type plan struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Compiler turns natural-language task descriptions into executable
// flows via a single schema-constrained provider call. Build progress
// is persisted snapshot-by-snapshot so pollers can watch a compile in
// flight.
type Compiler struct {
	provider provider.CompletionProvider
	store    *Store
	logger   zerolog.Logger
	model    string
}

// CompilerConfig holds the dependencies for creating a Compiler
type CompilerConfig struct {
	Provider provider.CompletionProvider
	Store    *Store
	Logger   zerolog.Logger
	Model    string
}

// NewCompiler creates a compiler backed by the given provider and store
func NewCompiler(cfg CompilerConfig) (*Compiler, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("completion provider is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	observability.EnsureRegistered()
	return &Compiler{
		provider: cfg.Provider,
		store:    cfg.Store,
		logger:   cfg.Logger,
		model:    cfg.Model,
	}, nil
}

// Compile builds a flow from the description. It never hard-fails on a
// malformed plan: provider errors, schema violations, and unbound
// variable references all degrade to a single-step fallback flow that
// hands the whole description to the model at run time.
func (c *Compiler) Compile(ctx context.Context, description string) (*Flow, error) {
	flow := &Flow{
		UUID:        uuid.New().String(),
		Description: description,
		Status:      StatusBuilding,
		CreatedAt:   time.Now(),
	}

	if err := c.snapshot(flow, 1, 3, "Analyzing task description"); err != nil {
		return nil, err
	}

	logger := c.logger.With().Str("flow_uuid", flow.UUID).Logger()

	p, err := c.generatePlan(ctx, description)
	if err != nil {
		logger.Warn().Err(err).Msg("Plan generation failed, using fallback flow")
		p = fallbackPlan(description)
	}

	if err := c.snapshot(flow, 2, 3, "Generating workflow steps"); err != nil {
		return nil, err
	}

	if err := ValidateSteps(p.Steps); err != nil {
		logger.Warn().Err(err).Msg("Plan failed validation, using fallback flow")
		p = fallbackPlan(description)
	}

	flow.Name = p.Name
	flow.Steps = append([]Step{{Type: StepStart}}, p.Steps...)
	flow.VisualBlocks = visualBlocks(flow.Steps)
	flow.Status = StatusComplete
	flow.Active = true
	flow.BuildProgress = &BuildProgress{Current: 3, Total: 3, Message: "Workflow ready"}

	if err := c.store.Put(flow); err != nil {
		observability.RecordFlowBuild("error")
		return nil, err
	}

	observability.RecordFlowBuild("success")
	logger.Info().Str("name", flow.Name).Int("steps", len(flow.Steps)).Msg("Flow compiled")
	return flow, nil
}

func (c *Compiler) generatePlan(ctx context.Context, description string) (*plan, error) {
	completion, err := c.provider.Complete(ctx, provider.Request{
		Model:        c.model,
		SystemPrompt: compilerSystemPrompt,
		Messages: []provider.Message{
			{Role: "user", Content: description},
		},
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}

	raw := extractJSON(completion.Content)

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(planSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("plan violates schema: %v", result.Errors())
	}

	var p plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &p, nil
}

// snapshot persists an intermediate building state
func (c *Compiler) snapshot(flow *Flow, current, total int, message string) error {
	flow.BuildProgress = &BuildProgress{Current: current, Total: total, Message: message}
	return c.store.Put(flow)
}

// ErrUnboundVariable marks a plan whose {{name}} reference has no
// earlier binding.
var ErrUnboundVariable = fmt.Errorf("unbound variable reference")

// ValidateSteps rejects plans where a {{name}} reference is not bound
// by an initial variable or an earlier step's resultVariable. Later or
// same-step bindings do not count: execution is strictly ordered.
func ValidateSteps(steps []Step) error {
	bound := make(map[string]bool)
	for i, step := range steps {
		for _, v := range step.Config.Variables {
			bound[v.Name] = true
		}
		for _, tmpl := range []string{step.Config.Instruction, step.Config.URL, step.Config.Body} {
			for _, name := range References(tmpl) {
				if !bound[name] {
					return fmt.Errorf("step %d references {{%s}}: %w", i, name, ErrUnboundVariable)
				}
			}
		}
		if step.Config.ResultVariable != "" {
			bound[step.Config.ResultVariable] = true
		}
	}
	return nil
}

func fallbackPlan(description string) *plan {
	return &plan{
		Name: "Generated Workflow",
		Steps: []Step{
			{
				Type: StepLLMInstruction,
				Config: StepConfig{
					Instruction:    description,
					ResultVariable: "result",
					DirectOutput:   true,
				},
			},
		},
	}
}

func visualBlocks(steps []Step) []VisualBlock {
	blocks := make([]VisualBlock, 0, len(steps))
	for i, step := range steps {
		blocks = append(blocks, VisualBlock{
			ID:          fmt.Sprintf("block-%d", i),
			Type:        string(step.Type),
			Description: step.Config.Instruction,
		})
	}
	return blocks
}

// extractJSON strips markdown code fences some models wrap around JSON
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
	}
	return strings.TrimSpace(content)
}

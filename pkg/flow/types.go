package flow

import "time"

// Status is the lifecycle state of a flow
type Status string

const (
	StatusBuilding Status = "building"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// StepType identifies the handler a step dispatches to
type StepType string

const (
	StepStart          StepType = "start"
	StepLLMInstruction StepType = "llmInstruction"
	StepAPICall        StepType = "apiCall"
	StepWebScraping    StepType = "webScraping"
)

// Flow is a persisted, ordered list of typed steps with named variable
// bindings. It is mutated snapshot-by-snapshot while building and
// immutable once complete.
type Flow struct {
	UUID          string         `json:"uuid"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Active        bool           `json:"active"`
	Status        Status         `json:"status"`
	Steps         []Step         `json:"steps"`
	VisualBlocks  []VisualBlock  `json:"visualBlocks,omitempty"`
	BuildProgress *BuildProgress `json:"buildProgress,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Step is one unit of flow execution
type Step struct {
	Type   StepType   `json:"type"`
	Config StepConfig `json:"config"`
}

// StepConfig carries the per-type step parameters. ResultVariable
// values become bindings visible to all later steps via {{name}}
// substitution; DirectOutput marks the flow's final externally visible
// output and short-circuits any remaining steps.
type StepConfig struct {
	Instruction    string            `json:"instruction,omitempty"`
	ResultVariable string            `json:"resultVariable,omitempty"`
	DirectOutput   bool              `json:"directOutput,omitempty"`
	Variables      []Variable        `json:"variables,omitempty"`
	Method         string            `json:"method,omitempty"`
	URL            string            `json:"url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	Selector       string            `json:"selector,omitempty"`
}

// Variable is a named initial binding declared on a step
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// VisualBlock is presentation metadata consumed by builder UIs; the
// executor ignores it
type VisualBlock struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// BuildProgress exposes intermediate compiler state to pollers
type BuildProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// clone returns a deep copy of the flow. The store hands out and keeps
// only clones so a held snapshot never changes under its reader while
// the original document is still being mutated.
func (f *Flow) clone() *Flow {
	c := *f
	if f.Steps != nil {
		c.Steps = make([]Step, len(f.Steps))
		for i, s := range f.Steps {
			if s.Config.Variables != nil {
				s.Config.Variables = append([]Variable(nil), s.Config.Variables...)
			}
			if s.Config.Headers != nil {
				headers := make(map[string]string, len(s.Config.Headers))
				for k, v := range s.Config.Headers {
					headers[k] = v
				}
				s.Config.Headers = headers
			}
			c.Steps[i] = s
		}
	}
	if f.VisualBlocks != nil {
		c.VisualBlocks = append([]VisualBlock(nil), f.VisualBlocks...)
	}
	if f.BuildProgress != nil {
		bp := *f.BuildProgress
		c.BuildProgress = &bp
	}
	return &c
}

// StepResult is the recorded outcome of one executed step
type StepResult struct {
	Type     StepType `json:"type"`
	Variable string   `json:"variable,omitempty"`
	Output   string   `json:"output,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// RunResult is the outcome of one flow execution
type RunResult struct {
	Success      bool         `json:"success"`
	Results      []StepResult `json:"results"`
	DirectOutput string       `json:"directOutput,omitempty"`
}

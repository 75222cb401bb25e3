package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ToFut/Tredy-sub001/internal/observability"
	"github.com/ToFut/Tredy-sub001/internal/tracing"
	"github.com/ToFut/Tredy-sub001/pkg/invocation"
	"github.com/ToFut/Tredy-sub001/pkg/provider"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// State identifies the session's position in the turn loop
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingCompletion State = "awaitingCompletion"
	StateDispatchingTool    State = "dispatchingTool"
	StateAwaitingFeedback   State = "awaitingHumanFeedback"
	StateTerminated         State = "terminated"
)

// ContinuationGuard supervises the turn loop to prevent premature
// termination of multi-target requests. Implementations must be safe
// for single-session sequential use only.
type ContinuationGuard interface {
	// Begin derives supervision state from the first user message
	Begin(firstUserMessage string)
	// NoteToolCall records one completed tool-call transcript entry
	NoteToolCall()
	// Intercept is consulted when the provider returns terminal text.
	// A true override suppresses the text; the returned instruction is
	// injected as a system message and the loop re-enters.
	Intercept() (instruction string, override bool)
}

// nopGuard never intercepts
type nopGuard struct{}

func (nopGuard) Begin(string)              {}
func (nopGuard) NoteToolCall()             {}
func (nopGuard) Intercept() (string, bool) { return "", false }

// Config holds session configuration
type Config struct {
	Provider provider.CompletionProvider
	Tools    *ToolRegistry
	Emitter  Emitter
	Guard    ContinuationGuard
	Logger   zerolog.Logger

	Model           string
	Temperature     float64
	MaxTokens       int
	SystemPrompt    string
	MaxTurns        int
	MaxRetries      int
	Introspection   bool
	FeedbackGate    bool
	FeedbackTimeout time.Duration
}

// Result is the outcome of one session run
type Result struct {
	Response  string      `json:"response"`
	ToolCalls []*ToolCall `json:"tool_calls,omitempty"`
	Aborted   bool        `json:"aborted,omitempty"`
}

// Session drives the turn loop for one open invocation. It owns the
// in-memory tool-call ledger and is destroyed when the connection
// closes; nothing here is persisted.
type Session struct {
	inv      *invocation.Invocation
	cfg      Config
	provider provider.CompletionProvider
	tools    *ToolRegistry
	emitter  Emitter
	guard    ContinuationGuard
	logger   zerolog.Logger

	ledger   []*ToolCall
	ledgerMu sync.RWMutex

	// state is read by other goroutines (gateway, tests) while the
	// loop advances it
	state atomic.Value

	cancel   context.CancelFunc
	cancelMu sync.Mutex

	awaitingFeedback atomic.Bool
	feedbackCh       chan string
}

// NewSession creates a runtime session for an invocation
func NewSession(inv *invocation.Invocation, cfg Config) (*Session, error) {
	observability.EnsureRegistered()

	if inv == nil {
		return nil, fmt.Errorf("invocation is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("completion provider is required")
	}
	if cfg.Tools == nil {
		cfg.Tools = NewToolRegistry()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = nopEmitter{}
	}
	if cfg.Guard == nil {
		cfg.Guard = nopGuard{}
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.FeedbackTimeout <= 0 {
		cfg.FeedbackTimeout = 5 * time.Minute
	}

	s := &Session{
		inv:        inv,
		cfg:        cfg,
		provider:   cfg.Provider,
		tools:      cfg.Tools,
		emitter:    cfg.Emitter,
		guard:      cfg.Guard,
		logger:     cfg.Logger.With().Str("invocation_id", inv.UUID).Logger(),
		feedbackCh: make(chan string, 1),
	}
	s.state.Store(StateIdle)
	return s, nil
}

// State returns the session's current loop state
func (s *Session) State() State {
	return s.state.Load().(State)
}

func (s *Session) setState(state State) {
	s.state.Store(state)
}

// Ledger returns a snapshot of the tool-call ledger
func (s *Session) Ledger() []*ToolCall {
	s.ledgerMu.RLock()
	defer s.ledgerMu.RUnlock()
	out := make([]*ToolCall, len(s.ledger))
	copy(out, s.ledger)
	return out
}

// Abort cancels the running turn loop. In-flight tool handlers see
// context cancellation; handlers that ignore it run to completion and
// their results are discarded.
func (s *Session) Abort() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// OfferFeedback delivers an inbound client message to a suspended
// turn. It reports whether the message was consumed; the gateway
// falls back to bail-command scanning when it was not.
func (s *Session) OfferFeedback(feedback string) bool {
	if !s.awaitingFeedback.Load() {
		return false
	}
	select {
	case s.feedbackCh <- feedback:
		return true
	default:
		return false
	}
}

// Run executes the turn loop until a terminal state is reached
func (s *Session) Run(ctx context.Context) (Result, error) {
	ctx = tracing.NewInvocationContext(ctx, s.inv.UUID, s.inv.WorkspaceID)
	ctx, span := tracing.StartSpan(
		ctx,
		"tredy.runtime",
		"runtime.run",
		attribute.String("invocation_id", s.inv.UUID),
	)
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	defer cancel()

	logger := tracing.LoggerFromContext(runCtx, s.logger)

	defer func() {
		s.setState(StateTerminated)
		s.emitSummary()
	}()

	s.guard.Begin(s.inv.Prompt)

	transcript := []provider.Message{
		{Role: "user", Content: s.inv.Prompt},
	}

	for turn := 0; turn < s.cfg.MaxTurns; turn++ {
		select {
		case <-runCtx.Done():
			logger.Info().Int("turn", turn).Msg("Session aborted")
			return Result{ToolCalls: s.Ledger(), Aborted: true}, nil
		default:
		}

		s.setState(StateAwaitingCompletion)
		s.emitter.Emit(Event{Type: EventThinking})
		s.introspect("Consulting the model")

		turnStart := time.Now()
		completion, err := s.completeWithRetry(runCtx, transcript)
		observability.RecordTurn(s.provider.Name(), time.Since(turnStart), err == nil)
		if err != nil {
			if runCtx.Err() != nil {
				return Result{ToolCalls: s.Ledger(), Aborted: true}, nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{ToolCalls: s.Ledger()}, err
		}

		if completion.IsFunctionCall() {
			s.setState(StateDispatchingTool)
			transcript = s.dispatchToolCalls(runCtx, transcript, completion)
			continue
		}

		// Terminal text: the guard may refuse to surface it
		if instruction, override := s.guard.Intercept(); override {
			observability.RecordOverride()
			s.introspect("Continuing with the next action")
			logger.Debug().Int("turn", turn).Msg("Terminal response intercepted")
			transcript = append(transcript, provider.Message{
				Role:    "system",
				Content: instruction,
			})
			continue
		}

		if s.cfg.FeedbackGate {
			feedback := s.awaitFeedback(runCtx)
			if IsBailCommand(feedback) {
				logger.Info().Msg("Session ended by feedback")
				return Result{Response: completion.Content, ToolCalls: s.Ledger()}, nil
			}
			transcript = append(transcript,
				provider.Message{Role: "assistant", Content: completion.Content},
				provider.Message{Role: "user", Content: feedback},
			)
			continue
		}

		return Result{Response: completion.Content, ToolCalls: s.Ledger()}, nil
	}

	return Result{ToolCalls: s.Ledger()}, fmt.Errorf("maximum turns (%d) exceeded", s.cfg.MaxTurns)
}

// dispatchToolCalls records, executes and transcribes the completion's
// requested tool calls in order
func (s *Session) dispatchToolCalls(ctx context.Context, transcript []provider.Message, completion *provider.Completion) []provider.Message {
	transcript = append(transcript, provider.Message{
		Role:      "assistant",
		Content:   completion.Content,
		ToolCalls: completion.ToolCalls,
	})

	for _, fc := range completion.ToolCalls {
		record := s.appendLedger(fc)
		s.emitter.Emit(Event{Type: EventToolCall, ToolCall: record})

		record.Status = ToolCallExecuting
		s.emitter.Emit(Event{Type: EventToolCallUpdate, ToolCall: record})
		s.introspect(fmt.Sprintf("Running %s", fc.Name))

		start := time.Now()
		output, err := s.tools.Dispatch(ctx, fc.Name, fc.Parameters)

		content := output
		if err != nil {
			// Handler errors are surfaced to the provider as context,
			// not raised; the model may retry or apologize.
			record.Status = ToolCallError
			content = err.Error()
		} else {
			record.Status = ToolCallComplete
		}
		observability.RecordToolCall(fc.Name, string(record.Status), time.Since(start))
		s.emitter.Emit(Event{Type: EventToolCallUpdate, ToolCall: record})

		transcript = append(transcript, provider.Message{
			Role:       "function",
			Content:    content,
			ToolCallID: fc.ID,
		})
		s.guard.NoteToolCall()
	}

	return transcript
}

// awaitFeedback suspends the turn until the client replies or the
// timeout elapses, in which case the feedback defaults to "exit"
func (s *Session) awaitFeedback(ctx context.Context) string {
	s.setState(StateAwaitingFeedback)
	s.awaitingFeedback.Store(true)
	defer s.awaitingFeedback.Store(false)

	s.emitter.Emit(Event{
		Type:     EventWaitingOnInput,
		Question: "Should I continue, or is there anything you want to change?",
	})

	timer := time.NewTimer(s.cfg.FeedbackTimeout)
	defer timer.Stop()

	select {
	case feedback := <-s.feedbackCh:
		return feedback
	case <-timer.C:
		s.logger.Info().Msg("Feedback window elapsed, defaulting to exit")
		return "exit"
	case <-ctx.Done():
		return "exit"
	}
}

func (s *Session) appendLedger(fc provider.FunctionCall) *ToolCall {
	id := fc.ID
	if id == "" {
		id, _ = gonanoid.New()
	}

	record := &ToolCall{
		ID:         id,
		Name:       fc.Name,
		Parameters: fc.Parameters,
		Status:     ToolCallPending,
		Timestamp:  time.Now(),
	}

	s.ledgerMu.Lock()
	s.ledger = append(s.ledger, record)
	s.ledgerMu.Unlock()

	return record
}

// completeWithRetry calls the provider with bounded backoff on
// transient failures
func (s *Session) completeWithRetry(ctx context.Context, transcript []provider.Message) (*provider.Completion, error) {
	request := provider.Request{
		Model:        s.cfg.Model,
		Messages:     transcript,
		Tools:        s.tools.Schemas(),
		Temperature:  s.cfg.Temperature,
		MaxTokens:    s.cfg.MaxTokens,
		SystemPrompt: s.cfg.SystemPrompt,
	}

	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		completion, err := s.provider.Complete(ctx, request)
		if err == nil {
			return completion, nil
		}

		lastErr = err

		if !provider.IsRetryableError(err) {
			return nil, err
		}
		if attempt == s.cfg.MaxRetries-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delayMs := 1000 * (1 << attempt)
		s.logger.Info().
			Int("attempt", attempt+1).
			Int("delayMs", delayMs).
			Msg("Retrying after provider error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", s.cfg.MaxRetries, lastErr)
}

// introspect emits a best-effort narration event when enabled
func (s *Session) introspect(message string) {
	if !s.cfg.Introspection {
		return
	}
	s.emitter.Emit(Event{Type: EventStatusResponse, Content: message})
}

func (s *Session) emitSummary() {
	summary := &UsageSummary{}

	s.ledgerMu.RLock()
	for _, tc := range s.ledger {
		summary.Total++
		switch tc.Status {
		case ToolCallComplete:
			summary.Complete++
		case ToolCallError:
			summary.Errored++
		}
	}
	s.ledgerMu.RUnlock()

	s.emitter.Emit(Event{Type: EventToolUsageSummary, Summary: summary})
}

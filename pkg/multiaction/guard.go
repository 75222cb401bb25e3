// Package multiaction supervises the runtime's turn loop so a request
// implying several independent targets is not silently abandoned after
// the first one. A completion provider is free to stop after "notify A";
// the guard withholds that early terminal answer and steers the loop
// toward the remaining targets until all of them have been handled.
package multiaction

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// State tracks supervision progress for one session. It is derived
// once from the first user message and never rebuilt.
type State struct {
	Active        bool     `json:"active"`
	TotalExpected int      `json:"total_expected"`
	Completed     int      `json:"completed"`
	Targets       []string `json:"targets"`
}

// Guard implements runtime.ContinuationGuard for one session. It is
// driven sequentially by the session's turn loop and needs no locking.
type Guard struct {
	extractor Extractor
	logger    zerolog.Logger
	state     State
}

// NewGuard creates a guard with the given extraction strategy. A nil
// extractor falls back to the default heuristic.
func NewGuard(extractor Extractor, logger zerolog.Logger) *Guard {
	if extractor == nil {
		extractor = NewHeuristicExtractor()
	}
	return &Guard{
		extractor: extractor,
		logger:    logger,
	}
}

// State returns a copy of the current supervision state
func (g *Guard) State() State {
	return g.state
}

// Begin derives supervision state from the first user message of the
// session. Activation requires more than one extracted target, or
// exactly one target alongside an explicit conjunction.
func (g *Guard) Begin(firstUserMessage string) {
	targets := g.extractor.ExtractTargets(firstUserMessage)
	hasConjunction := strings.Contains(firstUserMessage, " and ")

	if len(targets) < 2 && !(len(targets) == 1 && hasConjunction) {
		return
	}

	total := len(targets)
	if total < 2 {
		total = 2
	}

	g.state = State{
		Active:        true,
		TotalExpected: total,
		Targets:       targets,
	}

	g.logger.Debug().
		Int("total_expected", total).
		Strs("targets", targets).
		Msg("Multi-action supervision active")
}

// NoteToolCall records one tool-call transcript entry toward the
// expected total
func (g *Guard) NoteToolCall() {
	if !g.state.Active {
		return
	}

	if g.state.Completed < g.state.TotalExpected {
		g.state.Completed++
	}

	if g.state.Completed == g.state.TotalExpected {
		g.state.Active = false
		g.logger.Debug().
			Int("completed", g.state.Completed).
			Msg("All expected actions handled")
	}
}

// Intercept decides whether a terminal provider response may surface.
// While actions remain outstanding it overrides the response with a
// synthetic instruction naming the next unhandled target.
func (g *Guard) Intercept() (string, bool) {
	if !g.state.Active || g.state.Completed >= g.state.TotalExpected {
		return "", false
	}

	// Extraction may have found fewer literal targets than the total
	// implies; fall back to generic phrasing rather than blocking.
	target := "the next target"
	if g.state.Completed < len(g.state.Targets) {
		target = g.state.Targets[g.state.Completed]
	}

	instruction := fmt.Sprintf(
		"You have completed %d of %d actions. Do not stop or summarize yet. Execute the next action for: %s",
		g.state.Completed, g.state.TotalExpected, target,
	)

	g.logger.Info().
		Int("completed", g.state.Completed).
		Int("total_expected", g.state.TotalExpected).
		Str("target", target).
		Msg("Intercepting premature terminal response")

	return instruction, true
}

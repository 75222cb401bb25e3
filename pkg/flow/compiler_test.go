package flow

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ToFut/Tredy-sub001/pkg/provider"
)

// fixedProvider returns the same content for every request
type fixedProvider struct {
	content string
	err     error
}

func (p *fixedProvider) Complete(context.Context, provider.Request) (*provider.Completion, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Completion{Content: p.content}, nil
}

func (p *fixedProvider) Name() string { return "fixed" }

// pollingProvider reads the store mid-compile, like a client polling
// build progress, and holds on to the building snapshot it saw.
type pollingProvider struct {
	store   *Store
	content string
	held    *Flow
}

func (p *pollingProvider) Complete(context.Context, provider.Request) (*provider.Completion, error) {
	flows, err := p.store.List()
	if err != nil {
		return nil, err
	}
	for _, f := range flows {
		if f.Status == StatusBuilding {
			p.held = f
		}
	}
	return &provider.Completion{Content: p.content}, nil
}

func (p *pollingProvider) Name() string { return "polling" }

func setupCompiler(t *testing.T, store *Store, p provider.CompletionProvider) *Compiler {
	t.Helper()
	compiler, err := NewCompiler(CompilerConfig{
		Provider: p,
		Store:    store,
		Logger:   zerolog.New(os.Stdout).Level(zerolog.ErrorLevel),
		Model:    "test-model",
	})
	require.NoError(t, err)
	return compiler
}

const validPlan = `{
  "name": "Fetch and summarize",
  "steps": [
    {"type": "webScraping", "config": {"url": "https://news.test", "resultVariable": "page"}},
    {"type": "llmInstruction", "config": {"instruction": "Summarize: {{page}}", "resultVariable": "summary", "directOutput": true}}
  ]
}`

func TestCompile(t *testing.T) {
	t.Run("should build a flow from a valid plan", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		compiler := setupCompiler(t, store, &fixedProvider{content: validPlan})

		f, err := compiler.Compile(context.Background(), "summarize the news")
		require.NoError(t, err)

		assert.Equal(t, "Fetch and summarize", f.Name)
		assert.Equal(t, StatusComplete, f.Status)
		assert.True(t, f.Active)
		require.Len(t, f.Steps, 3)
		assert.Equal(t, StepStart, f.Steps[0].Type)
		assert.Equal(t, StepWebScraping, f.Steps[1].Type)
		assert.Equal(t, StepLLMInstruction, f.Steps[2].Type)
		assert.Equal(t, 3, f.BuildProgress.Current)

		// Persisted under its uuid
		loaded, err := store.Get(f.UUID)
		require.NoError(t, err)
		assert.Equal(t, f.Name, loaded.Name)
	})

	t.Run("should accept fenced plan output", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		fenced := "```json\n" + validPlan + "\n```"
		compiler := setupCompiler(t, store, &fixedProvider{content: fenced})

		f, err := compiler.Compile(context.Background(), "summarize the news")
		require.NoError(t, err)
		assert.Equal(t, "Fetch and summarize", f.Name)
	})

	t.Run("should not mutate snapshots readers took mid-compile", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		p := &pollingProvider{store: store, content: validPlan}
		compiler := setupCompiler(t, store, p)

		f, err := compiler.Compile(context.Background(), "summarize the news")
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, f.Status)

		// The snapshot read while the plan was being generated must
		// still describe the building state, not the finished flow.
		require.NotNil(t, p.held)
		assert.Equal(t, StatusBuilding, p.held.Status)
		assert.Empty(t, p.held.Name)
		assert.Empty(t, p.held.Steps)
		assert.Equal(t, 1, p.held.BuildProgress.Current)
	})

	t.Run("should fall back to a single-step flow on garbage output", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		compiler := setupCompiler(t, store, &fixedProvider{content: "I cannot answer in JSON, sorry"})

		f, err := compiler.Compile(context.Background(), "summarize the news")
		require.NoError(t, err)

		assert.Equal(t, StatusComplete, f.Status)
		require.Len(t, f.Steps, 2)
		assert.Equal(t, StepLLMInstruction, f.Steps[1].Type)
		assert.Equal(t, "summarize the news", f.Steps[1].Config.Instruction)
		assert.True(t, f.Steps[1].Config.DirectOutput)
	})

	t.Run("should fall back on provider failure", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		compiler := setupCompiler(t, store, &fixedProvider{err: fmt.Errorf("rate limit")})

		f, err := compiler.Compile(context.Background(), "do the thing")
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, f.Status)
		assert.Equal(t, "do the thing", f.Steps[1].Config.Instruction)
	})

	t.Run("should fall back on unbound variable references", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		plan := `{"name": "Broken", "steps": [
			{"type": "llmInstruction", "config": {"instruction": "use {{undefined}}"}}
		]}`
		compiler := setupCompiler(t, store, &fixedProvider{content: plan})

		f, err := compiler.Compile(context.Background(), "broken plan")
		require.NoError(t, err)
		assert.Equal(t, "Generated Workflow", f.Name)
		assert.Equal(t, "broken plan", f.Steps[1].Config.Instruction)
	})

	t.Run("should reject step types outside the schema", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		plan := `{"name": "Weird", "steps": [{"type": "shellCommand", "config": {}}]}`
		compiler := setupCompiler(t, store, &fixedProvider{content: plan})

		f, err := compiler.Compile(context.Background(), "weird plan")
		require.NoError(t, err)
		assert.Equal(t, "Generated Workflow", f.Name)
	})
}

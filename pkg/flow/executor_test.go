package flow

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ToFut/Tredy-sub001/pkg/provider"
)

// echoProvider answers every instruction with a deterministic echo
type echoProvider struct {
	requests []provider.Request
	err      error
}

func (p *echoProvider) Complete(_ context.Context, req provider.Request) (*provider.Completion, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Completion{Content: "echo: " + req.Messages[0].Content}, nil
}

func (p *echoProvider) Name() string { return "echo" }

type stubAPICaller struct {
	lastURL  string
	lastBody string
	response string
	err      error
}

func (c *stubAPICaller) Call(_ context.Context, _, url string, _ map[string]string, body string) (string, error) {
	c.lastURL = url
	c.lastBody = body
	return c.response, c.err
}

type stubScraper struct {
	response string
}

func (s *stubScraper) Scrape(_ context.Context, url, selector string) (string, error) {
	return fmt.Sprintf("%s from %s (%s)", s.response, url, selector), nil
}

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "flow-test-*")
	require.NoError(t, err)

	store, err := NewStore(StoreConfig{
		Dir:    tmpDir,
		Logger: zerolog.New(os.Stdout).Level(zerolog.ErrorLevel),
	})
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func setupExecutor(t *testing.T, store *Store, p provider.CompletionProvider, api APICaller, scraper Scraper) *Executor {
	t.Helper()
	executor, err := NewExecutor(ExecutorConfig{
		Store:    store,
		Provider: p,
		API:      api,
		Scraper:  scraper,
		Logger:   zerolog.New(os.Stdout).Level(zerolog.ErrorLevel),
		Model:    "test-model",
	})
	require.NoError(t, err)
	return executor
}

func instructionStep(instruction, resultVar string, direct bool) Step {
	return Step{
		Type: StepLLMInstruction,
		Config: StepConfig{
			Instruction:    instruction,
			ResultVariable: resultVar,
			DirectOutput:   direct,
		},
	}
}

func putFlow(t *testing.T, store *Store, steps ...Step) string {
	t.Helper()
	f := &Flow{
		UUID:      "flow-test",
		Name:      "test flow",
		Status:    StatusComplete,
		Active:    true,
		Steps:     steps,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Put(f))
	return f.UUID
}

func TestExecute(t *testing.T) {
	t.Run("should run steps in order and bind results", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		p := &echoProvider{}
		executor := setupExecutor(t, store, p, &stubAPICaller{}, nil)

		uuid := putFlow(t, store,
			instructionStep("first", "a", false),
			instructionStep("second uses {{a}}", "b", false),
		)

		result, err := executor.Execute(context.Background(), uuid, nil)
		require.NoError(t, err)

		assert.True(t, result.Success)
		require.Len(t, result.Results, 2)
		assert.Equal(t, "echo: first", result.Results[0].Output)
		assert.Equal(t, "echo: second uses echo: first", result.Results[1].Output)
	})

	t.Run("should short-circuit on directOutput", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		p := &echoProvider{}
		executor := setupExecutor(t, store, p, &stubAPICaller{}, nil)

		uuid := putFlow(t, store,
			instructionStep("one", "a", false),
			instructionStep("two", "b", true),
			instructionStep("three", "c", false),
			instructionStep("four", "d", false),
		)

		result, err := executor.Execute(context.Background(), uuid, nil)
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Len(t, result.Results, 2)
		assert.Equal(t, "echo: two", result.DirectOutput)
		assert.Len(t, p.requests, 2)
	})

	t.Run("should fail fast on a step error and keep partial results", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		p := &echoProvider{}
		api := &stubAPICaller{err: fmt.Errorf("upstream returned 500")}
		executor := setupExecutor(t, store, p, api, nil)

		uuid := putFlow(t, store,
			instructionStep("one", "a", false),
			Step{Type: StepAPICall, Config: StepConfig{Method: "GET", URL: "https://api.test/x"}},
			instructionStep("never runs", "c", false),
		)

		result, err := executor.Execute(context.Background(), uuid, nil)
		require.NoError(t, err)

		assert.False(t, result.Success)
		require.Len(t, result.Results, 2)
		assert.Empty(t, result.Results[1].Output)
		assert.Contains(t, result.Results[1].Error, "upstream returned 500")
		assert.Len(t, p.requests, 1)
	})

	t.Run("should seed initial variables and render them into urls", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		api := &stubAPICaller{response: `{"ok":true}`}
		executor := setupExecutor(t, store, &echoProvider{}, api, nil)

		uuid := putFlow(t, store,
			Step{Type: StepAPICall, Config: StepConfig{
				Method:         "GET",
				URL:            "https://api.test/users/{{userId}}",
				ResultVariable: "user",
			}},
		)

		result, err := executor.Execute(context.Background(), uuid, map[string]string{"userId": "17"})
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, "https://api.test/users/17", api.lastURL)
		assert.Equal(t, `{"ok":true}`, result.Results[0].Output)
	})

	t.Run("should dispatch webScraping steps to the scraper", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		executor := setupExecutor(t, store, &echoProvider{}, &stubAPICaller{}, &stubScraper{response: "content"})

		uuid := putFlow(t, store,
			Step{Type: StepWebScraping, Config: StepConfig{URL: "https://page.test", Selector: "h1", ResultVariable: "title"}},
		)

		result, err := executor.Execute(context.Background(), uuid, nil)
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, "content from https://page.test (h1)", result.Results[0].Output)
	})

	t.Run("should fail a webScraping step without a scraper", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		executor := setupExecutor(t, store, &echoProvider{}, &stubAPICaller{}, nil)

		uuid := putFlow(t, store,
			Step{Type: StepWebScraping, Config: StepConfig{URL: "https://page.test"}},
		)

		result, err := executor.Execute(context.Background(), uuid, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Results[0].Error, "no scraper configured")
	})

	t.Run("should refuse flows that are still building", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		executor := setupExecutor(t, store, &echoProvider{}, &stubAPICaller{}, nil)

		f := &Flow{UUID: "building-flow", Status: StatusBuilding, CreatedAt: time.Now()}
		require.NoError(t, store.Put(f))

		_, err := executor.Execute(context.Background(), "building-flow", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not runnable")
	})

	t.Run("should skip start steps but honor their variables", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		executor := setupExecutor(t, store, &echoProvider{}, &stubAPICaller{}, nil)

		uuid := putFlow(t, store,
			Step{Type: StepStart, Config: StepConfig{Variables: []Variable{{Name: "who", Value: "Ada"}}}},
			instructionStep("greet {{who}}", "greeting", false),
		)

		result, err := executor.Execute(context.Background(), uuid, nil)
		require.NoError(t, err)

		require.Len(t, result.Results, 1)
		assert.Equal(t, "echo: greet Ada", result.Results[0].Output)
	})
}

package invocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ToFut/Tredy-sub001/internal/observability"
	"github.com/ToFut/Tredy-sub001/internal/tracing"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNotFound is returned when no invocation matches the criteria
var ErrNotFound = errors.New("invocation not found")

// Invocation is the persisted record of one agent session
type Invocation struct {
	UUID          string    `json:"uuid"`
	WorkspaceID   string    `json:"workspace_id"`
	UserID        string    `json:"user_id,omitempty"`
	ThreadID      string    `json:"thread_id,omitempty"`
	Prompt        string    `json:"prompt"`
	Closed        bool      `json:"closed"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Criteria selects an invocation to load
type Criteria struct {
	UUID        string
	WorkspaceID string
	ThreadID    string
}

// CreateOptions carries the optional identity fields of a new invocation
type CreateOptions struct {
	UserID   string
	ThreadID string
}

// Store persists invocations in SQLite
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	closeRetries int
	closeDelay   time.Duration
	closeWG      sync.WaitGroup
}

// Config holds store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger

	// CloseRetries bounds background close attempts; defaults to 3.
	CloseRetries int
	// CloseDelay is the fixed delay between close attempts; defaults to 2s.
	CloseDelay time.Duration
}

// NewStore opens the invocation database and initializes the schema
func NewStore(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.CloseRetries <= 0 {
		cfg.CloseRetries = 3
	}
	if cfg.CloseDelay <= 0 {
		cfg.CloseDelay = 2 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent cross-session access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:           db,
		logger:       cfg.Logger,
		closeRetries: cfg.CloseRetries,
		closeDelay:   cfg.CloseDelay,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS invocations (
			uuid TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			user_id TEXT,
			thread_id TEXT,
			prompt TEXT NOT NULL,
			closed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			last_updated_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invocations_workspace ON invocations(workspace_id);
		CREATE INDEX IF NOT EXISTS idx_invocations_thread ON invocations(thread_id);
	`)
	return err
}

// Create inserts a new invocation. The uuid is generated here and is
// immutable for the life of the record.
func (s *Store) Create(ctx context.Context, prompt, workspaceID string, opts CreateOptions) (*Invocation, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"tredy.invocation",
		"invocation.create",
		attribute.String("workspace_id", workspaceID),
	)
	defer span.End()

	if workspaceID == "" {
		return nil, errors.New("workspace id is required")
	}

	now := time.Now().UTC()
	inv := &Invocation{
		UUID:          uuid.New().String(),
		WorkspaceID:   workspaceID,
		UserID:        opts.UserID,
		ThreadID:      opts.ThreadID,
		Prompt:        prompt,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (uuid, workspace_id, user_id, thread_id, prompt, closed, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		inv.UUID, inv.WorkspaceID, nullable(inv.UserID), nullable(inv.ThreadID), inv.Prompt, inv.CreatedAt, inv.LastUpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to insert invocation: %w", err)
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("uuid", inv.UUID).Str("workspace_id", workspaceID).Msg("Invocation created")

	return inv, nil
}

// Get loads an invocation matching the criteria, or ErrNotFound
func (s *Store) Get(ctx context.Context, criteria Criteria) (*Invocation, error) {
	query := `SELECT uuid, workspace_id, user_id, thread_id, prompt, closed, created_at, last_updated_at FROM invocations WHERE 1=1`
	args := []interface{}{}

	if criteria.UUID != "" {
		query += " AND uuid = ?"
		args = append(args, criteria.UUID)
	}
	if criteria.WorkspaceID != "" {
		query += " AND workspace_id = ?"
		args = append(args, criteria.WorkspaceID)
	}
	if criteria.ThreadID != "" {
		query += " AND thread_id = ?"
		args = append(args, criteria.ThreadID)
	}
	if len(args) == 0 {
		return nil, errors.New("at least one criterion is required")
	}
	query += " LIMIT 1"

	row := s.db.QueryRowContext(ctx, query, args...)

	var inv Invocation
	var userID, threadID sql.NullString
	var closed int
	err := row.Scan(&inv.UUID, &inv.WorkspaceID, &userID, &threadID, &inv.Prompt, &closed, &inv.CreatedAt, &inv.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invocation: %w", err)
	}

	inv.UserID = userID.String
	inv.ThreadID = threadID.String
	inv.Closed = closed != 0

	return &inv, nil
}

// UpdatePrompt edits an invocation's prompt in place
func (s *Store) UpdatePrompt(ctx context.Context, id, prompt string) (*Invocation, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invocations SET prompt = ?, last_updated_at = ? WHERE uuid = ?`,
		prompt, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update invocation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return s.Get(ctx, Criteria{UUID: id})
}

// Close marks an invocation closed without blocking the caller. The
// persistence write runs in the background with a bounded fixed-delay
// retry; a close that exhausts its retries is logged and dropped,
// never escalated. Closing an already-closed invocation is a no-op.
func (s *Store) Close(id string) {
	s.closeWG.Add(1)
	go func() {
		defer s.closeWG.Done()
		s.closeWithRetry(id)
	}()
}

func (s *Store) closeWithRetry(id string) {
	var lastErr error

	for attempt := 1; attempt <= s.closeRetries; attempt++ {
		_, err := s.db.Exec(`
			UPDATE invocations SET closed = 1, last_updated_at = ? WHERE uuid = ?`,
			time.Now().UTC(), id,
		)
		if err == nil {
			observability.RecordCloseAttempt("success")
			s.logger.Debug().Str("uuid", id).Int("attempt", attempt).Msg("Invocation closed")
			return
		}

		lastErr = err
		observability.RecordCloseAttempt("retry")
		s.logger.Warn().
			Str("uuid", id).
			Int("attempt", attempt).
			Err(err).
			Msg("Invocation close attempt failed")

		if attempt < s.closeRetries {
			time.Sleep(s.closeDelay)
		}
	}

	// Eventual consistency of the closed flag is acceptable; blocking
	// or failing the disconnect path is not.
	observability.RecordCloseAttempt("dropped")
	s.logger.Error().Str("uuid", id).Err(lastErr).Msg("Giving up closing invocation")
}

// WaitForPendingCloses blocks until all background close writes finish
func (s *Store) WaitForPendingCloses() {
	s.closeWG.Wait()
}

// Shutdown drains pending closes and closes the database
func (s *Store) Shutdown() error {
	s.closeWG.Wait()
	return s.db.Close()
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

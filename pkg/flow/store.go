package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Store persists one JSON document per flow under a single directory.
// Reads are cached; a directory watcher invalidates cache entries when
// files change on disk so externally edited flows are picked up
// without restarting. Documents are deep-copied on both write and
// read, so a snapshot held by one reader never changes when the
// writer keeps mutating its own value.
type Store struct {
	dir     string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	cache map[string]*Flow
}

// StoreConfig holds the dependencies for creating a Store
type StoreConfig struct {
	Dir    string
	Logger zerolog.Logger
}

// NewStore creates the flows directory if needed and starts the
// invalidation watcher.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("flows directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create flows directory: %w", err)
	}

	s := &Store{
		dir:    cfg.Dir,
		logger: cfg.Logger,
		cache:  make(map[string]*Flow),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create flow watcher: %w", err)
	}
	if err := watcher.Add(cfg.Dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch flows directory: %w", err)
	}
	s.watcher = watcher
	go s.watchLoop()

	return s, nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			uuid := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			s.mu.Lock()
			delete(s.cache, uuid)
			s.mu.Unlock()
			s.logger.Debug().Str("flow_uuid", uuid).Str("op", event.Op.String()).Msg("Flow cache invalidated")
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("Flow watcher error")
		}
	}
}

// validKey rejects identifiers that could escape the flows directory
func validKey(uuid string) error {
	if uuid == "" {
		return fmt.Errorf("flow uuid is required")
	}
	if strings.ContainsAny(uuid, "/\\") || strings.Contains(uuid, "..") {
		return fmt.Errorf("invalid flow uuid: %q", uuid)
	}
	return nil
}

func (s *Store) path(uuid string) string {
	return filepath.Join(s.dir, uuid+".json")
}

// Put writes the full flow document. The write goes through a temp
// file and rename so concurrent readers never observe a partial
// snapshot.
func (s *Store) Put(flow *Flow) error {
	if err := validKey(flow.UUID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	tmp := s.path(flow.UUID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write flow: %w", err)
	}
	if err := os.Rename(tmp, s.path(flow.UUID)); err != nil {
		return fmt.Errorf("failed to commit flow: %w", err)
	}

	s.mu.Lock()
	s.cache[flow.UUID] = flow.clone()
	s.mu.Unlock()

	return nil
}

// Get returns an isolated snapshot of the flow, preferring the cache
func (s *Store) Get(uuid string) (*Flow, error) {
	if err := validKey(uuid); err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached, ok := s.cache[uuid]
	s.mu.RUnlock()
	if ok {
		return cached.clone(), nil
	}

	data, err := os.ReadFile(s.path(uuid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("flow %s not found", uuid)
		}
		return nil, fmt.Errorf("failed to read flow: %w", err)
	}

	var flow Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to parse flow %s: %w", uuid, err)
	}

	s.mu.Lock()
	s.cache[uuid] = &flow
	s.mu.Unlock()

	return flow.clone(), nil
}

// List returns every flow on disk, skipping unparseable files
func (s *Store) List() ([]*Flow, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	flows := make([]*Flow, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		uuid := strings.TrimSuffix(entry.Name(), ".json")
		flow, err := s.Get(uuid)
		if err != nil {
			s.logger.Warn().Err(err).Str("flow_uuid", uuid).Msg("Skipping unreadable flow")
			continue
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

// Delete removes the flow from disk and cache
func (s *Store) Delete(uuid string) error {
	if err := validKey(uuid); err != nil {
		return err
	}

	if err := os.Remove(s.path(uuid)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, uuid)
	s.mu.Unlock()

	return nil
}

// Close stops the directory watcher
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

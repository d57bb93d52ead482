// Package session owns the daemon's conversation sessions: deterministic
// identity, lazy initialization, the turn ledger and the agentic turn
// driver.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/agentd-ai/agentd/internal/config"
	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/identity"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/runtime"
	"github.com/agentd-ai/agentd/pkg/types"
)

// DefaultMemoryFile is the project context file loaded into every new
// conversation unless the project config names another.
const DefaultMemoryFile = "AGENTS.md"

// readyPollInterval is how often EnsureReady re-checks an initializing
// session.
const readyPollInterval = 100 * time.Millisecond

// Store is the session registry. Sessions are created lazily and
// initialized exactly once; a failed initialization evicts the record so
// the next request retries from scratch.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record

	group   singleflight.Group
	runtime runtime.Runtime
	bus     *event.Bus
	global  *config.Global
	tools   *runtime.Registry

	// authPolicy builds the retry schedule for credential refreshes.
	// Replaced in tests to avoid real backoff delays.
	authPolicy func() backoff.BackOff
}

// NewStore creates a session registry backed by the given model runtime.
func NewStore(rt runtime.Runtime, bus *event.Bus, global *config.Global) *Store {
	return &Store{
		records: make(map[string]*Record),
		runtime: rt,
		bus:     bus,
		global:  global,
		tools:   runtime.BuiltinTools(),
		authPolicy: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
}

// Record is one session: a project directory bound to a conversation and
// its ledger.
type Record struct {
	Path      string
	SessionID string
	key       string

	mu         sync.Mutex
	ready      bool
	initErr    error
	conv       runtime.Conversation
	ledger     *Ledger
	model      string
	yolo       bool
	memoryFile string
	pending    []types.FunctionCallPart
	resolved   map[string]*types.FunctionResponsePart
	watcher    *config.Watcher
	createdAt  time.Time
	lastActive time.Time
}

// Ready reports whether initialization has completed.
func (r *Record) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// initError returns the terminal initialization failure, if any. Set
// just before the record is evicted so waiters holding the stale pointer
// see the real error instead of polling out the readiness window.
func (r *Record) initError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initErr
}

func (r *Record) setInitError(err error) {
	r.mu.Lock()
	r.initErr = err
	r.mu.Unlock()
}

// Yolo reports whether tool calls auto-execute without approval.
func (r *Record) Yolo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.yolo
}

// SetYolo flips yolo mode at runtime.
func (r *Record) SetYolo(v bool) {
	r.mu.Lock()
	r.yolo = v
	r.mu.Unlock()
}

// Model returns the model currently serving the session.
func (r *Record) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

// Pending returns a copy of the tool calls awaiting approval.
func (r *Record) Pending() []types.FunctionCallPart {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.FunctionCallPart, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *Record) setPending(calls []types.FunctionCallPart) {
	r.mu.Lock()
	r.pending = calls
	r.mu.Unlock()
}

func (r *Record) touch() {
	r.mu.Lock()
	r.lastActive = time.Now()
	r.mu.Unlock()
}

// storeKey builds the registry key for a path and session id.
func storeKey(path, sessionID string) string {
	return path + "::" + sessionID
}

// normalizePath validates and cleans a project directory path.
func normalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrDirectoryNotFound)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDirectoryNotFound, path)
	}
	abs = filepath.Clean(abs)
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDirectoryNotFound, abs)
	}
	return abs, nil
}

// GetOrCreate returns the record for (path, sessionID), creating an
// uninitialized one on first sight. An empty sessionID selects the
// path-derived default identity.
func (s *Store) GetOrCreate(path, sessionID string) (*Record, error) {
	abs, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = identity.SessionID(abs)
	}
	key := storeKey(abs, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		return rec, nil
	}
	rec := &Record{
		Path:      abs,
		SessionID: sessionID,
		key:       key,
		ledger:    NewLedger(),
		createdAt: time.Now(),
	}
	s.records[key] = rec
	return rec, nil
}

// Get returns an existing record or ErrSessionNotFound.
func (s *Store) Get(path, sessionID string) (*Record, error) {
	abs, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = identity.SessionID(abs)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[storeKey(abs, sessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

// Initialize brings a record to readiness. Concurrent callers for the
// same record share one initialization; on failure the record is evicted
// and every caller receives the error.
func (s *Store) Initialize(ctx context.Context, rec *Record) error {
	if rec.Ready() {
		return nil
	}

	_, err, _ := s.group.Do(rec.key, func() (any, error) {
		if rec.Ready() {
			return nil, nil
		}
		if err := s.initialize(ctx, rec); err != nil {
			wrapped := fmt.Errorf("%w: %v", ErrInitializationFailed, err)
			rec.setInitError(wrapped)
			s.evict(rec)
			return nil, wrapped
		}
		return nil, nil
	})
	if err != nil {
		s.group.Forget(rec.key)
	}
	return err
}

func (s *Store) initialize(ctx context.Context, rec *Record) error {
	log := logging.Component("session.store")

	proj, err := config.LoadProject(rec.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", rec.Path).Msg("project config unreadable, using defaults")
		proj = &config.Project{}
	}

	model := s.global.Model
	if proj.Model != "" {
		model = proj.Model
	}
	memoryFile := DefaultMemoryFile
	if proj.MemoryFile != "" {
		memoryFile = proj.MemoryFile
	}

	auth := func() error { return s.runtime.RefreshAuth(ctx) }
	policy := backoff.WithContext(s.authPolicy(), ctx)
	if err := backoff.Retry(auth, policy); err != nil {
		return fmt.Errorf("refreshing credentials: %w", err)
	}

	var memory string
	memPath := filepath.Join(rec.Path, memoryFile)
	if data, err := os.ReadFile(memPath); err == nil {
		memory = string(data)
	} else if os.IsNotExist(err) {
		log.Warn().Str("file", memPath).Msg("memory file absent, starting without project context")
	} else {
		log.Warn().Err(err).Str("file", memPath).Msg("memory file unreadable")
	}

	conv, err := s.runtime.NewConversation(ctx, runtime.SessionConfig{
		WorkDir:       rec.Path,
		Model:         model,
		SystemContext: memory,
		Tools:         s.tools,
	})
	if err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}

	watcher, err := config.NewWatcher(rec.Path, func(p *config.Project) {
		s.applyProjectConfig(rec, p)
	})
	if err != nil {
		log.Warn().Err(err).Str("path", rec.Path).Msg("config watcher unavailable")
	}
	if watcher != nil {
		watcher.Start()
	}

	rec.mu.Lock()
	rec.conv = conv
	rec.model = model
	rec.yolo = proj.YoloEnabled()
	rec.memoryFile = memoryFile
	rec.watcher = watcher
	rec.ready = true
	rec.lastActive = time.Now()
	rec.mu.Unlock()

	log.Info().
		Str("sessionId", rec.SessionID).
		Str("path", rec.Path).
		Str("model", model).
		Msg("session initialized")
	s.bus.Publish(event.Event{Type: event.SessionInitialized, Data: event.SessionInitializedData{
		SessionID: rec.SessionID,
		Path:      rec.Path,
		Model:     model,
	}})
	return nil
}

func (s *Store) applyProjectConfig(rec *Record, proj *config.Project) {
	rec.mu.Lock()
	yoloChanged := false
	if proj.Yolo != nil && rec.yolo != *proj.Yolo {
		rec.yolo = *proj.Yolo
		yoloChanged = true
	}
	modelChanged := false
	if proj.Model != "" && rec.model != proj.Model {
		rec.model = proj.Model
		if rec.conv != nil {
			rec.conv.SetModel(proj.Model)
		}
		modelChanged = true
	}
	yolo, model := rec.yolo, rec.model
	rec.mu.Unlock()

	if yoloChanged {
		s.bus.Publish(event.Event{Type: event.YoloChanged, Data: event.YoloChangedData{
			SessionID: rec.SessionID, Yolo: yolo,
		}})
	}
	if modelChanged {
		s.bus.Publish(event.Event{Type: event.ModelChanged, Data: event.ModelChangedData{
			SessionID: rec.SessionID, Model: model,
		}})
	}
}

// evict removes a record that failed to initialize.
func (s *Store) evict(rec *Record) {
	s.mu.Lock()
	if current, ok := s.records[rec.key]; ok && current == rec {
		delete(s.records, rec.key)
	}
	s.mu.Unlock()
}

// StartAsync kicks initialization off in the background when the record
// is not yet ready.
func (s *Store) StartAsync(rec *Record) {
	if rec.Ready() {
		return
	}
	go func() {
		if err := s.Initialize(context.Background(), rec); err != nil {
			log := logging.Component("session.store")
			log.Error().
				Err(err).
				Str("sessionId", rec.SessionID).
				Msg("background initialization failed")
			s.bus.Publish(event.Event{Type: event.SessionError, Data: event.SessionErrorData{
				SessionID: rec.SessionID,
				Code:      "INITIALIZATION_FAILED",
				Message:   err.Error(),
			}})
		}
	}()
}

// EnsureReady waits for the record to become ready, polling at a fixed
// interval within the given window. Returns the initialization error
// when the record failed and was evicted, ErrWarmingUp on timeout.
func (s *Store) EnsureReady(ctx context.Context, rec *Record, window time.Duration) error {
	if rec.Ready() {
		return nil
	}

	deadline, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	check := func() error {
		if rec.Ready() {
			return nil
		}
		if err := rec.initError(); err != nil {
			return backoff.Permanent(err)
		}
		return ErrWarmingUp
	}
	policy := backoff.WithContext(backoff.NewConstantBackOff(readyPollInterval), deadline)
	if err := backoff.Retry(check, policy); err != nil {
		if errors.Is(err, ErrInitializationFailed) {
			return err
		}
		return ErrWarmingUp
	}
	return nil
}

// Clear removes a session from the registry, releasing its conversation.
// Clearing an unknown session is a no-op.
func (s *Store) Clear(path, sessionID string) error {
	abs, err := normalizePath(path)
	if err != nil {
		return err
	}
	if sessionID == "" {
		sessionID = identity.SessionID(abs)
	}
	key := storeKey(abs, sessionID)

	s.mu.Lock()
	rec, ok := s.records[key]
	if ok {
		delete(s.records, key)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	rec.mu.Lock()
	conv, watcher := rec.conv, rec.watcher
	rec.conv = nil
	rec.watcher = nil
	rec.ready = false
	rec.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	if conv != nil {
		conv.Close()
	}

	s.bus.Publish(event.Event{Type: event.SessionCleared, Data: event.SessionClearedData{
		SessionID: sessionID,
		Path:      abs,
	}})
	return nil
}

// SetModel switches a live session to a different model. The ledger is
// untouched; the conversation mirror picks the history back up on the
// next prompt.
func (s *Store) SetModel(rec *Record, model string) error {
	if model == "" {
		return fmt.Errorf("model must not be empty")
	}
	rec.mu.Lock()
	if !rec.ready {
		rec.mu.Unlock()
		return ErrWarmingUp
	}
	rec.model = model
	rec.conv.SetModel(model)
	rec.mu.Unlock()

	s.bus.Publish(event.Event{Type: event.ModelChanged, Data: event.ModelChangedData{
		SessionID: rec.SessionID,
		Model:     model,
	}})
	return nil
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID    string    `json:"sessionId"`
	Path         string    `json:"path"`
	Model        string    `json:"model"`
	Ready        bool      `json:"ready"`
	Yolo         bool      `json:"yolo"`
	Turns        int       `json:"turns"`
	PendingCalls []string  `json:"pendingCalls,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActive   time.Time `json:"lastActive"`
}

// Status reports the record's current state.
func (s *Store) Status(rec *Record) Status {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var pending []string
	for _, c := range rec.pending {
		pending = append(pending, c.CallID)
	}
	return Status{
		SessionID:    rec.SessionID,
		Path:         rec.Path,
		Model:        rec.model,
		Ready:        rec.ready,
		Yolo:         rec.yolo,
		Turns:        rec.ledger.Len(),
		PendingCalls: pending,
		CreatedAt:    rec.createdAt,
		LastActive:   rec.lastActive,
	}
}

// Shutdown clears every session.
func (s *Store) Shutdown() {
	s.mu.Lock()
	records := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	s.records = make(map[string]*Record)
	s.mu.Unlock()

	for _, rec := range records {
		rec.mu.Lock()
		conv, watcher := rec.conv, rec.watcher
		rec.mu.Unlock()
		if watcher != nil {
			watcher.Stop()
		}
		if conv != nil {
			conv.Close()
		}
	}
}

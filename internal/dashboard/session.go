package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/platform/observability"
)

const defaultMaxSessions = 500

// DatasetSource hands out the currently loaded dataset.
type DatasetSource interface {
	Dataset() *incidents.Dataset
}

// Answer is the last assistant reply shown in a session.
type Answer struct {
	Prompt string
	Text   string
	Err    string
	At     time.Time
}

// Scope is the state of one browser session. Its dataset is a private copy.
type Scope struct {
	ID      uuid.UUID
	Dataset *incidents.Dataset

	mu       sync.Mutex
	summary  *Answer
	chat     *Answer
	lastSeen time.Time
}

// SetSummary stores the last summary answer.
func (s *Scope) SetSummary(a Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary = &a
}

// SetChat stores the last chat answer.
func (s *Scope) SetChat(a Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chat = &a
}

// Answers returns copies of the stored answers.
func (s *Scope) Answers() (summary, chat *Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summary != nil {
		a := *s.summary
		summary = &a
	}

	if s.chat != nil {
		a := *s.chat
		chat = &a
	}

	return summary, chat
}

// Sessions maps session ids to scopes. The least recently seen scope is
// evicted when the store is full, and idle scopes expire after ttl.
type Sessions struct {
	source DatasetSource
	ttl    time.Duration
	max    int
	now    func() time.Time

	mu     sync.Mutex
	scopes map[uuid.UUID]*Scope
}

// NewSessions creates a session store.
func NewSessions(source DatasetSource, ttl time.Duration, maxSessions int) *Sessions {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}

	return &Sessions{
		source: source,
		ttl:    ttl,
		max:    maxSessions,
		now:    time.Now,
		scopes: make(map[uuid.UUID]*Scope),
	}
}

// Get returns the scope for id, or false when it is unknown or expired.
func (s *Sessions) Get(id uuid.UUID) (*Scope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.scopes[id]
	if !ok {
		return nil, false
	}

	now := s.now()
	if s.ttl > 0 && now.Sub(scope.lastSeen) > s.ttl {
		delete(s.scopes, id)
		s.updateGauge()

		return nil, false
	}

	scope.lastSeen = now

	return scope, true
}

// Create opens a new scope holding a copy of the current dataset.
func (s *Sessions) Create() *Scope {
	scope := &Scope{
		ID:      uuid.New(),
		Dataset: s.source.Dataset().Clone(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()

	scope.lastSeen = s.now()
	s.scopes[scope.ID] = scope
	s.updateGauge()

	return scope
}

// Reset drops every scope. Called after the dataset is reloaded.
func (s *Sessions) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.scopes)
	s.updateGauge()
}

// Sweep drops expired scopes.
func (s *Sessions) Sweep() {
	if s.ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, scope := range s.scopes {
		if now.Sub(scope.lastSeen) > s.ttl {
			delete(s.scopes, id)
		}
	}

	s.updateGauge()
}

// Len returns the number of live scopes.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.scopes)
}

func (s *Sessions) pruneLocked() {
	now := s.now()

	if s.ttl > 0 {
		for id, scope := range s.scopes {
			if now.Sub(scope.lastSeen) > s.ttl {
				delete(s.scopes, id)
			}
		}
	}

	for len(s.scopes) >= s.max {
		var (
			oldestID uuid.UUID
			oldest   time.Time
		)

		for id, scope := range s.scopes {
			if oldest.IsZero() || scope.lastSeen.Before(oldest) {
				oldestID, oldest = id, scope.lastSeen
			}
		}

		delete(s.scopes, oldestID)
	}
}

func (s *Sessions) updateGauge() {
	observability.DashboardSessions.Set(float64(len(s.scopes)))
}

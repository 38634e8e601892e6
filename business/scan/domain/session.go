package domain

import (
	"sync"
	"time"

	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
)

// SessionStatus is the lifecycle state of a scan session.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Session tracks one scan run: its scope, lifecycle status, and
// progress counters. A session transitions to a terminal status exactly
// once; further transitions and opportunity additions are rejected.
type Session struct {
	mu sync.Mutex

	ID        string
	Owner     string
	Scope     string
	Status    SessionStatus
	StartedAt time.Time
	EndedAt   time.Time
	FailCause string

	TotalUnits     int
	ProcessedUnits int
	Opportunities  int
}

// NewSession creates a running session owned by the given user.
func NewSession(id, owner, scope string) *Session {
	return &Session{
		ID:        id,
		Owner:     owner,
		Scope:     scope,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

// SetTotalUnits records the unit count discovered from the catalog.
func (s *Session) SetTotalUnits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalUnits = n
}

// MarkProcessed advances the processed-unit counter and returns the new
// count.
func (s *Session) MarkProcessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessedUnits++
	return s.ProcessedUnits
}

// AddOpportunity counts a found opportunity. It fails once the session
// has reached a terminal status.
func (s *Session) AddOpportunity() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.IsTerminal() {
		return apperror.New(apperror.CodeSessionTerminal, apperror.WithContext(s.ID))
	}
	s.Opportunities++
	return nil
}

// Complete transitions the session to completed.
func (s *Session) Complete() error {
	return s.finish(StatusCompleted, "")
}

// Fail transitions the session to failed with a cause.
func (s *Session) Fail(cause string) error {
	return s.finish(StatusFailed, cause)
}

// Cancel transitions the session to cancelled. Cancellation is a
// distinct terminal state, not a failure.
func (s *Session) Cancel() error {
	return s.finish(StatusCancelled, "")
}

func (s *Session) finish(status SessionStatus, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.IsTerminal() {
		return apperror.New(apperror.CodeSessionTerminal, apperror.WithContext(s.ID))
	}
	s.Status = status
	s.FailCause = cause
	s.EndedAt = time.Now()
	return nil
}

// Snapshot returns a consistent copy of the session's mutable state for
// reporting.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		ID:             s.ID,
		Owner:          s.Owner,
		Scope:          s.Scope,
		Status:         s.Status,
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
		FailCause:      s.FailCause,
		TotalUnits:     s.TotalUnits,
		ProcessedUnits: s.ProcessedUnits,
		Opportunities:  s.Opportunities,
	}
}

// SessionSnapshot is an immutable view of a session.
type SessionSnapshot struct {
	ID             string        `json:"id"`
	Owner          string        `json:"owner"`
	Scope          string        `json:"scope"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        time.Time     `json:"ended_at,omitempty"`
	FailCause      string        `json:"fail_cause,omitempty"`
	TotalUnits     int           `json:"total_units"`
	ProcessedUnits int           `json:"processed_units"`
	Opportunities  int           `json:"opportunities"`
}

// Package session persists practice sessions and their append-only transcripts.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
)

var ErrSessionNotFound = errors.New("session not found")

// Store is the persistence contract used by handlers and the exchange orchestrator.
type Store interface {
	Create(ctx context.Context, scenario session.Scenario) (session.Session, error)
	Get(ctx context.Context, id string) (session.Session, error)
	// AppendExchanges appends all exchanges in one step and returns the updated session.
	AppendExchanges(ctx context.Context, id string, exchanges ...session.Exchange) (session.Session, error)
	SaveFeedback(ctx context.Context, id, feedback string) error
}

// newSession validates the scenario and stamps a fresh session.
func newSession(scenario session.Scenario) (session.Session, error) {
	scenario = scenario.Normalize()
	if err := scenario.Validate(); err != nil {
		return session.Session{}, err
	}
	return session.Session{
		ID:        uuid.NewString(),
		Scenario:  scenario,
		Exchanges: []session.Exchange{},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// stampExchanges fills in identifiers and timestamps the caller left empty.
func stampExchanges(exchanges []session.Exchange) []session.Exchange {
	stamped := make([]session.Exchange, len(exchanges))
	now := time.Now().UTC()
	for i, ex := range exchanges {
		if ex.ID == "" {
			ex.ID = uuid.NewString()
		}
		if ex.Timestamp.IsZero() {
			ex.Timestamp = now
		}
		stamped[i] = ex
	}
	return stamped
}

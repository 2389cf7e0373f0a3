package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidScenario is returned when an enumerated scenario field holds an unknown value.
var ErrInvalidScenario = errors.New("invalid scenario")

// Formality describes the register the AI role should speak in.
type Formality string

const (
	FormalityCasual  Formality = "casual"
	FormalityNeutral Formality = "neutral"
	FormalityFormal  Formality = "formal"
)

// Difficulty tunes how hard the AI role pushes back.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Scenario holds the parameters a user submits to start practicing.
type Scenario struct {
	Title      string     `json:"title,omitempty"`
	Type       string     `json:"scenarioType"`
	UserRole   string     `json:"userRole"`
	AIRole     string     `json:"aiRole"`
	Context    string     `json:"context"`
	Formality  Formality  `json:"formality,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

// Normalize trims free text and lower-cases the enumerated fields.
func (s Scenario) Normalize() Scenario {
	s.Title = strings.TrimSpace(s.Title)
	s.Type = strings.TrimSpace(s.Type)
	s.UserRole = strings.TrimSpace(s.UserRole)
	s.AIRole = strings.TrimSpace(s.AIRole)
	s.Context = strings.TrimSpace(s.Context)
	s.Formality = Formality(strings.ToLower(strings.TrimSpace(string(s.Formality))))
	s.Difficulty = Difficulty(strings.ToLower(strings.TrimSpace(string(s.Difficulty))))
	return s
}

// Validate checks the enumerated fields. Empty values are allowed and mean "unspecified".
func (s Scenario) Validate() error {
	switch s.Formality {
	case "", FormalityCasual, FormalityNeutral, FormalityFormal:
	default:
		return fmt.Errorf("%w: formality %q", ErrInvalidScenario, s.Formality)
	}

	switch s.Difficulty {
	case "", DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
	default:
		return fmt.Errorf("%w: difficulty %q", ErrInvalidScenario, s.Difficulty)
	}
	return nil
}

// Session is one practice run: the scenario plus its ordered transcript.
type Session struct {
	ID string `json:"id"`
	Scenario
	Exchanges []Exchange `json:"exchanges"`
	Feedback  string     `json:"feedback,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// AISpeaker is the speaker tag used for AI exchanges in this session.
func (s Session) AISpeaker() string {
	if s.AIRole == "" {
		return DefaultAISpeaker
	}
	return s.AIRole
}

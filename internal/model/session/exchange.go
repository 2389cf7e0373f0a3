package session

import "time"

const (
	// SpeakerUser tags exchanges spoken by the practicing user.
	SpeakerUser = "user"
	// DefaultAISpeaker tags AI exchanges when the scenario names no AI role.
	DefaultAISpeaker = "AI"
)

// Exchange is one utterance in a session transcript. It is never modified after creation.
type Exchange struct {
	ID        string    `json:"id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Cues      []string  `json:"cues,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

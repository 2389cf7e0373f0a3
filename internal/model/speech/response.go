package speech

import "time"

// ASRResponse carries the recognized text. Text is empty when no speech was found.
type ASRResponse struct {
	SessionID  string    `json:"sessionId"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence,omitempty"`
	Duration   int64     `json:"duration,omitempty"` // milliseconds
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TTSResponse carries synthesized audio bytes.
type TTSResponse struct {
	SessionID   string    `json:"sessionId"`
	AudioData   []byte    `json:"-"`
	Duration    int64     `json:"duration,omitempty"` // milliseconds
	Format      string    `json:"format"`
	ContentType string    `json:"contentType"`
	RequestID   string    `json:"requestId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

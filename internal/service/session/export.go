package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
)

var ErrUnsupportedFormat = errors.New("unsupported transcript format")

const (
	FormatText = "txt"
	FormatJSON = "json"
)

// Transcript is an exported transcript ready to be served as an attachment.
type Transcript struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Export renders the session transcript. "txt" yields one "speaker: text" line per
// exchange; "json" yields the ordered exchange list. An empty format means "txt".
func Export(s session.Session, format string) (Transcript, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		lines := make([]string, len(s.Exchanges))
		for i, ex := range s.Exchanges {
			lines[i] = ex.Speaker + ": " + ex.Text
		}
		return Transcript{
			Filename:    fmt.Sprintf("transcript-%s.%s", s.ID, FormatText),
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(strings.Join(lines, "\n")),
		}, nil
	case FormatJSON:
		exchanges := s.Exchanges
		if exchanges == nil {
			exchanges = []session.Exchange{}
		}
		body, err := json.MarshalIndent(exchanges, "", "  ")
		if err != nil {
			return Transcript{}, fmt.Errorf("marshal transcript: %w", err)
		}
		return Transcript{
			Filename:    fmt.Sprintf("transcript-%s.%s", s.ID, FormatJSON),
			ContentType: "application/json",
			Body:        body,
		}, nil
	default:
		return Transcript{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

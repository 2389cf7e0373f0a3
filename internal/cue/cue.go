// Package cue splits generated replies into spoken text and non-spoken stage cues.
//
// Directions are written inside parentheses, square brackets, or single/double
// asterisks. Only whitelisted sounds survive as cues; every other direction is
// dropped so it is neither spoken nor stored.
package cue

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind distinguishes spoken segments from cue segments.
type Kind int

const (
	Speech Kind = iota
	Cue
)

func (k Kind) String() string {
	switch k {
	case Speech:
		return "speech"
	case Cue:
		return "cue"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind as "speech" or "cue".
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses "speech" or "cue".
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "speech":
		*k = Speech
	case "cue":
		*k = Cue
	default:
		return fmt.Errorf("unknown segment kind %q", b)
	}
	return nil
}

// Segment is a contiguous piece of a reply, in textual order.
type Segment struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// canonical maps accepted spellings to the cue tag stored on exchanges.
var canonical = map[string]string{
	"chuckle":   "chuckles",
	"chuckles":  "chuckles",
	"chuckling": "chuckles",
	"laugh":     "laughs",
	"laughs":    "laughs",
	"laughing":  "laughs",
	"laughter":  "laughs",
	"cough":     "coughs",
	"coughs":    "coughs",
	"coughing":  "coughs",
	"sigh":      "sighs",
	"sighs":     "sighs",
	"sighing":   "sighs",
}

// Whitelist lists the cue tags that map to sound effects.
func Whitelist() []string {
	return []string{"chuckles", "laughs", "coughs", "sighs", "clears throat"}
}

// Tokenize scans raw model output into ordered segments.
// Unterminated delimiters are kept as literal text.
func Tokenize(raw string) []Segment {
	var (
		segments []Segment
		text     strings.Builder
	)

	flush := func() {
		spoken := collapseSpace(text.String())
		text.Reset()
		if spoken != "" {
			segments = append(segments, Segment{Kind: Speech, Text: spoken})
		}
	}

	runes := []rune(raw)
	for i := 0; i < len(runes); {
		open, closeDelim, width := delimiterAt(runes, i)
		if width == 0 {
			text.WriteRune(runes[i])
			i++
			continue
		}

		end := indexFrom(runes, closeDelim, i+width)
		if end < 0 {
			text.WriteString(string(open))
			i += width
			continue
		}

		inner := string(runes[i+width : end])
		i = end + len(closeDelim)

		tag, ok := Normalize(inner)
		if !ok {
			continue
		}
		flush()
		segments = append(segments, Segment{Kind: Cue, Text: tag})
	}
	flush()

	return segments
}

// Normalize maps a stage direction to its whitelisted cue tag.
func Normalize(direction string) (string, bool) {
	words := strings.FieldsFunc(strings.ToLower(direction), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if len(words) == 0 {
		return "", false
	}

	for i, w := range words {
		if w != "throat" {
			continue
		}
		for _, prev := range words[:i] {
			if strings.HasPrefix(prev, "clear") {
				return "clears throat", true
			}
		}
	}
	for _, w := range words {
		if tag, ok := canonical[w]; ok {
			return tag, true
		}
	}
	return "", false
}

// SpokenText joins the speech segments into the text used for synthesis and storage.
func SpokenText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Kind == Speech {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Cues returns the cue tags in order of appearance.
func Cues(segments []Segment) []string {
	var cues []string
	for _, seg := range segments {
		if seg.Kind == Cue {
			cues = append(cues, seg.Text)
		}
	}
	return cues
}

func delimiterAt(runes []rune, i int) (open []rune, closeDelim []rune, width int) {
	switch runes[i] {
	case '(':
		return []rune{'('}, []rune{')'}, 1
	case '[':
		return []rune{'['}, []rune{']'}, 1
	case '*':
		if i+1 < len(runes) && runes[i+1] == '*' {
			return []rune{'*', '*'}, []rune{'*', '*'}, 2
		}
		return []rune{'*'}, []rune{'*'}, 1
	}
	return nil, nil, 0
}

func indexFrom(runes []rune, needle []rune, from int) int {
	for i := from; i+len(needle) <= len(runes); i++ {
		match := true
		for j := range needle {
			if runes[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

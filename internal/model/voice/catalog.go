package voice

import (
	"fmt"
	"os"
	"strings"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"
)

// fuzzyThreshold is the minimum Jaro-Winkler score for the last-resort label match.
const fuzzyThreshold = 0.85

// Store exposes voice lookups for HTTP handlers and the orchestrator.
type Store interface {
	List() []Option
	FindByID(id string) (Option, bool)
	Match(query string) (Option, bool)
	Sound(cue string) (string, bool)
}

// Catalog implements Store with in-memory voices and cue sounds.
type Catalog struct {
	items  []Option
	sounds map[string]string
}

// NewCatalog returns a Catalog preloaded with the supplied voices and cue sounds.
func NewCatalog(items []Option, sounds map[string]string) *Catalog {
	copied := make(map[string]string, len(sounds))
	for cue, asset := range sounds {
		copied[strings.ToLower(strings.TrimSpace(cue))] = asset
	}
	return &Catalog{items: append([]Option(nil), items...), sounds: copied}
}

type catalogFile struct {
	Voices []Option          `yaml:"voices"`
	Sounds map[string]string `yaml:"sounds"`
}

// LoadCatalog reads a YAML catalog. Sections missing from the file fall back to the built-in seeds.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse voice catalog %s: %w", path, err)
	}

	voices := file.Voices
	if len(voices) == 0 {
		voices = Seed()
	}
	for i, v := range voices {
		if strings.TrimSpace(v.VoiceID) == "" {
			return nil, fmt.Errorf("voice catalog %s: entry %d has no voiceId", path, i)
		}
	}

	sounds := file.Sounds
	if sounds == nil {
		sounds = SeedSounds()
	}
	return NewCatalog(voices, sounds), nil
}

// List returns the configured voices.
func (c *Catalog) List() []Option {
	return append([]Option(nil), c.items...)
}

// FindByID looks up a voice by identifier.
func (c *Catalog) FindByID(id string) (Option, bool) {
	for _, item := range c.items {
		if item.VoiceID == id {
			return item, true
		}
	}
	return Option{}, false
}

// Match resolves a free-form accent query such as "uk (male)" to a voice.
// Tiers, first hit wins: exact label, label substring, language code or gender,
// every query word in the label, then a fuzzy label match.
func (c *Catalog) Match(query string) (Option, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Option{}, false
	}

	for _, item := range c.items {
		if strings.ToLower(item.Label) == q {
			return item, true
		}
	}
	for _, item := range c.items {
		if strings.Contains(strings.ToLower(item.Label), q) {
			return item, true
		}
	}
	for _, item := range c.items {
		if strings.Contains(strings.ToLower(item.LanguageCode), q) || strings.ToLower(item.Gender) == q {
			return item, true
		}
	}

	words := strings.Fields(q)
	for _, item := range c.items {
		label := strings.ToLower(item.Label)
		all := true
		for _, w := range words {
			if !strings.Contains(label, w) {
				all = false
				break
			}
		}
		if all {
			return item, true
		}
	}

	var (
		best      Option
		bestScore float64
	)
	for _, item := range c.items {
		score := matchr.JaroWinkler(q, strings.ToLower(item.Label), false)
		if score > bestScore {
			best, bestScore = item, score
		}
	}
	if bestScore >= fuzzyThreshold {
		return best, true
	}
	return Option{}, false
}

// Sound returns the asset for a cue tag, if one is configured.
func (c *Catalog) Sound(cue string) (string, bool) {
	asset, ok := c.sounds[strings.ToLower(strings.TrimSpace(cue))]
	if !ok || asset == "" {
		return "", false
	}
	return asset, true
}

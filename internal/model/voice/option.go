package voice

// Gender values follow the SSML convention used by most TTS vendors.
const (
	GenderFemale = "FEMALE"
	GenderMale   = "MALE"
)

// Option is one selectable voice/accent exposed to the frontend.
type Option struct {
	Label        string `json:"label" yaml:"label"`
	VoiceID      string `json:"voiceId" yaml:"voiceId"`
	LanguageCode string `json:"languageCode" yaml:"languageCode"`
	Gender       string `json:"gender" yaml:"gender"`
}

// DefaultVoiceID is used when a session or request names no voice.
const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// Seed provides the built-in accents used when no catalog file is configured.
func Seed() []Option {
	return []Option{
		{Label: "US English (Female)", VoiceID: DefaultVoiceID, LanguageCode: "en-US", Gender: GenderFemale},
		{Label: "US English (Male)", VoiceID: "pNInz6obpgDQGcFmaJgB", LanguageCode: "en-US", Gender: GenderMale},
		{Label: "UK English (Female)", VoiceID: "ThT5KcBeYPX3keUQqHPh", LanguageCode: "en-GB", Gender: GenderFemale},
		{Label: "UK English (Male)", VoiceID: "JBFqnCBsd6RMkjVDRZzb", LanguageCode: "en-GB", Gender: GenderMale},
	}
}

// SeedSounds maps whitelisted cues to the sound assets served with the frontend.
func SeedSounds() map[string]string {
	return map[string]string{
		"chuckles":      "/sfx/chuckle.mp3",
		"laughs":        "/sfx/laugh.mp3",
		"coughs":        "/sfx/cough.mp3",
		"sighs":         "/sfx/sigh.mp3",
		"clears throat": "/sfx/clear-throat.mp3",
	}
}

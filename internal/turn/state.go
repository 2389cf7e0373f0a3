// Package turn owns the conversational floor: who is speaking, when capture stops,
// and when the next capture may begin.
package turn

// State is the single source of truth for who holds the floor.
type State int

const (
	Idle State = iota
	UserSpeaking
	AIThinking
	AISpeaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case UserSpeaking:
		return "userSpeaking"
	case AIThinking:
		return "aiThinking"
	case AISpeaking:
		return "aiSpeaking"
	default:
		return "unknown"
	}
}

// Event drives a State change.
type Event int

const (
	EventStartRecording Event = iota
	EventCaptureStopped
	EventPlaybackStarted
	EventPlaybackEnded
	EventPlaybackFailed
	EventTurnAborted
	EventForceStop
)

func (e Event) String() string {
	switch e {
	case EventStartRecording:
		return "startRecording"
	case EventCaptureStopped:
		return "captureStopped"
	case EventPlaybackStarted:
		return "playbackStarted"
	case EventPlaybackEnded:
		return "playbackEnded"
	case EventPlaybackFailed:
		return "playbackFailed"
	case EventTurnAborted:
		return "turnAborted"
	case EventForceStop:
		return "forceStop"
	default:
		return "unknown"
	}
}

// Next is the only transition function. It reports false for a transition that is
// not allowed, in which case the state must be left unchanged.
func Next(s State, e Event) (State, bool) {
	switch s {
	case Idle:
		if e == EventStartRecording {
			return UserSpeaking, true
		}
	case UserSpeaking:
		switch e {
		case EventCaptureStopped:
			return AIThinking, true
		case EventForceStop:
			return Idle, true
		}
	case AIThinking:
		switch e {
		case EventPlaybackStarted:
			return AISpeaking, true
		case EventTurnAborted, EventForceStop:
			return Idle, true
		}
	case AISpeaking:
		switch e {
		case EventPlaybackEnded, EventPlaybackFailed, EventForceStop:
			return Idle, true
		}
	}
	return s, false
}

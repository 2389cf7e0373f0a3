package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
)

const roleplayInstructions = `You are a scene partner in a spoken role-play practice session.
Stay in character for the whole conversation and speak naturally, the way a real person talks out loud.
Never narrate actions or write stage directions in brackets, parentheses or asterisks.
The only sounds you may mark are (chuckles), (laughs), (coughs), (sighs) and (clears throat), and only sparingly.
Keep each reply short enough to say in one breath or two.`

const casualSuffix = "(Respond in a friendly, casual, and informal way. Avoid stiff or overly formal language. " +
	"Use contractions and natural phrasing. Always finish your sentence and thought, and only say meaningful, " +
	"personal things. Do not cut off your response.)"

const formalSuffix = "(Respond in a polite, professional register that fits the scenario. " +
	"Stay natural and conversational rather than scripted. Always finish your sentence and thought. " +
	"Do not cut off your response.)"

const coachPreamble = "Act as a communication coach. Based on the following transcript, give the user " +
	"constructive feedback. Include strengths and 2–3 areas to improve related to tone, clarity, " +
	"confidence, or persuasiveness."

const coachInstructions = `You are an encouraging, specific communication coach.
Quote or paraphrase what the user actually said when you point something out.`

// BuildTurnPrompt renders the scenario, the full prior history and the new user line.
func BuildTurnPrompt(s session.Session, userText string) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "You are role-playing as: %s\n", orUnspecified(s.AIRole))
	fmt.Fprintf(&b, "The user is: %s\n", orUnspecified(s.UserRole))
	fmt.Fprintf(&b, "Scenario type: %s\n", orUnspecified(s.Type))
	if s.Title != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", s.Title)
	}
	fmt.Fprintf(&b, "Context: %s\n", orUnspecified(s.Context))
	if s.Formality != "" {
		fmt.Fprintf(&b, "Formality: %s\n", s.Formality)
	}
	fmt.Fprintf(&b, "Difficulty: %s\n", orUnspecified(string(s.Difficulty)))

	b.WriteString("\nConversation so far:\n")
	writeLines(&b, s.Exchanges)
	fmt.Fprintf(&b, "%s: %s\n", session.SpeakerUser, strings.TrimSpace(userText))

	b.WriteString("\nRespond as the AI role.\n")
	if s.Formality == session.FormalityFormal {
		b.WriteString(formalSuffix)
	} else {
		b.WriteString(casualSuffix)
	}

	return Prompt{System: roleplayInstructions, User: b.String()}
}

// BuildFeedbackPrompt asks for coaching over the whole transcript.
func BuildFeedbackPrompt(exchanges []session.Exchange) Prompt {
	var b strings.Builder
	b.WriteString(coachPreamble)
	b.WriteString("\n\nTranscript:\n")
	writeLines(&b, exchanges)
	return Prompt{System: coachInstructions, User: b.String()}
}

func writeLines(b *strings.Builder, exchanges []session.Exchange) {
	for _, e := range exchanges {
		fmt.Fprintf(b, "%s: %s\n", e.Speaker, e.Text)
	}
}

func orUnspecified(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unspecified"
	}
	return v
}

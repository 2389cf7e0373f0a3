package ai

import (
	"strings"
	"testing"

	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
)

func testSession() session.Session {
	return session.Session{
		ID: "s1",
		Scenario: session.Scenario{
			Title:      "Raise talk",
			Type:       "negotiation",
			UserRole:   "Employee",
			AIRole:     "Manager",
			Context:    "Annual review",
			Formality:  session.FormalityCasual,
			Difficulty: session.DifficultyIntermediate,
		},
		Exchanges: []session.Exchange{
			{Speaker: "user", Text: "Hi, do you have a minute?"},
			{Speaker: "Manager", Text: "Sure, come on in."},
		},
	}
}

func TestBuildTurnPromptEmbedsScenarioAndHistory(t *testing.T) {
	p := BuildTurnPrompt(testSession(), "  I'd like to talk about my salary. ")

	for _, want := range []string{
		"You are role-playing as: Manager\n",
		"The user is: Employee\n",
		"Scenario type: negotiation\n",
		"Scenario: Raise talk\n",
		"Context: Annual review\n",
		"Formality: casual\n",
		"Difficulty: intermediate\n",
		"Respond as the AI role.",
		"friendly, casual, and informal",
	} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p.User)
		}
	}

	history := "Conversation so far:\nuser: Hi, do you have a minute?\nManager: Sure, come on in.\nuser: I'd like to talk about my salary.\n"
	if !strings.Contains(p.User, history) {
		t.Fatalf("history not rendered in order:\n%s", p.User)
	}
	if !strings.Contains(p.System, "Stay in character") || !strings.Contains(p.System, "stage directions") {
		t.Fatalf("system instructions missing: %s", p.System)
	}
}

func TestBuildTurnPromptFormalAndUnspecified(t *testing.T) {
	s := session.Session{Scenario: session.Scenario{Formality: session.FormalityFormal}}
	p := BuildTurnPrompt(s, "Good morning.")

	if strings.Contains(p.User, "casual, and informal") {
		t.Fatalf("formal scenario should not use the casual suffix")
	}
	if !strings.Contains(p.User, "You are role-playing as: unspecified") {
		t.Fatalf("empty role should render as unspecified:\n%s", p.User)
	}
	if strings.Contains(p.User, "Scenario: ") {
		t.Fatalf("empty title should be omitted:\n%s", p.User)
	}
}

func TestBuildFeedbackPrompt(t *testing.T) {
	p := BuildFeedbackPrompt(testSession().Exchanges)

	if !strings.HasPrefix(p.User, "Act as a communication coach.") {
		t.Fatalf("unexpected preamble: %s", p.User)
	}
	if !strings.HasSuffix(p.User, "Transcript:\nuser: Hi, do you have a minute?\nManager: Sure, come on in.\n") {
		t.Fatalf("unexpected transcript block: %q", p.User)
	}
}

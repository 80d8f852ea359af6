package ai

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/dealdojo/backend/internal/analysis/phase"
	"github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/model/scenario"
)

// phaseInstructions coaches the buyer persona through each conversation
// stage. These are internal stage directions, never shown to the rep.
var phaseInstructions = map[phase.Phase]string{
	phase.Greeting: "Start with a professional greeting. " +
		"Be slightly skeptical but open to hearing the pitch. " +
		"Mention you're busy and have 15 minutes.",
	phase.Discovery: "The sales rep should be asking discovery questions. " +
		"Answer questions about your business needs, but don't volunteer too much. " +
		"If they don't ask about budget or timeline, don't mention it.",
	phase.Pitch: "The rep is pitching now. Provide qualifying information when asked: " +
		"you have a budget of $50k-100k and a Q2 timeline, and you're evaluating two " +
		"other vendors. Drop hints but make them work for details.",
	phase.ObjectionHandling: "Raise an objection: 'We tried something similar before and it didn't work.' " +
		"Or: 'Your competitor offers this for 30% less.' " +
		"Test how the rep handles pushback. Be firm but fair.",
	phase.Closing: "If the rep has addressed your concerns well, be open to moving forward. " +
		"Ask about next steps, contract terms, implementation timeline. " +
		"If they haven't earned the close, stall: 'I need to think about it.'",
	phase.Ended: "The conversation is ending. Summarize your impression. " +
		"Give a clear signal: either you'll move forward, need more time, or pass.",
}

// BuildPrompt assembles the provider input for one buyer turn: the persona
// system prompt, a stage direction for the target phase, a bounded history
// window, and the rep's latest utterance.
func BuildPrompt(sc scenario.Scenario, target phase.Phase, history []roleplay.Turn, repUtterance string, historyLimit int) Prompt {
	return Prompt{
		System:  buildSystemPrompt(sc, target),
		History: buildHistoryMessages(history, historyLimit),
		Query:   repUtterance,
		Phase:   target,
	}
}

func buildSystemPrompt(sc scenario.Scenario, target phase.Phase) string {
	var b strings.Builder
	b.WriteString("You are a potential buyer in a sales roleplay training exercise.\n\n")
	b.WriteString("YOUR PERSONA: " + sc.BuyerPersona + "\n\n")
	b.WriteString("SITUATION: " + sc.Context + "\n\n")
	b.WriteString("RULES:\n")
	b.WriteString("- Stay in character at all times\n")
	b.WriteString("- React naturally to what the sales rep says\n")
	b.WriteString("- Don't make it too easy, challenge them appropriately\n")
	b.WriteString("- If they ask good questions, reward them with useful information\n")
	b.WriteString("- If they push too hard or miss cues, become more resistant\n")
	b.WriteString("- Keep responses concise (2-4 sentences typically)\n")
	b.WriteString("- Never break character or mention this is a simulation")

	if instruction, ok := phaseInstructions[target]; ok {
		b.WriteString(fmt.Sprintf("\n\n[Current phase: %s]\n%s", target, instruction))
	}
	return b.String()
}

func buildHistoryMessages(turns []roleplay.Turn, limit int) []*schema.Message {
	if limit <= 0 {
		limit = 10
	}
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > limit {
		startIdx = len(turns) - limit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Speaker {
		case roleplay.SpeakerRep:
			history = append(history, schema.UserMessage(turn.Content))
		case roleplay.SpeakerBuyer:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}

package scenario

// Scenario describes one training situation: the buyer the AI plays and the
// skills the roleplay is meant to exercise.
type Scenario struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	TargetSkills []string `json:"targetSkills"`
	Difficulty   string   `json:"difficulty"`
	BuyerPersona string   `json:"buyerPersona"`
	Context      string   `json:"context"`
	// OpeningLine, when set, is committed as the buyer's first turn when a
	// session starts, before any rep input.
	OpeningLine string `json:"openingLine,omitempty"`
}

// Seed provides the default scenario catalog.
func Seed() []Scenario {
	return []Scenario{
		{
			ID:           "discovery_basics",
			Name:         "Discovery Deep Dive",
			Description:  "Practice asking the right discovery questions to uncover needs",
			TargetSkills: []string{"discovery", "active_listening"},
			Difficulty:   "beginner",
			BuyerPersona: "VP of Sales at mid-market SaaS company, open but busy",
			Context:      "First meeting. The buyer responded to an outbound email. They have 15 minutes.",
		},
		{
			ID:           "objection_price",
			Name:         "Price Objection Battleground",
			Description:  "Handle aggressive price pushback from a skeptical buyer",
			TargetSkills: []string{"objection_handling", "negotiation"},
			Difficulty:   "intermediate",
			BuyerPersona: "CFO who's been burned by expensive software before, very price-sensitive",
			Context:      "Second call. They liked the demo but are pushing hard on price. Competitor quoted 30% less.",
		},
		{
			ID:           "negotiation_complex",
			Name:         "Multi-Stakeholder Negotiation",
			Description:  "Navigate a complex deal with multiple decision makers",
			TargetSkills: []string{"negotiation", "closing", "discovery"},
			Difficulty:   "advanced",
			BuyerPersona: "Procurement lead who needs sign-off from CTO and CFO",
			Context:      "Third call. They want to buy but need to justify to leadership. Budget is tight.",
		},
		{
			ID:           "closing_momentum",
			Name:         "Close the Deal",
			Description:  "Practice closing techniques when the buyer is warm but hesitant",
			TargetSkills: []string{"closing", "objection_handling"},
			Difficulty:   "intermediate",
			BuyerPersona: "Director of Operations who likes the product but fears change management",
			Context:      "Final call. They've done a trial, results are good. But they keep stalling.",
		},
		{
			ID:           "rapport_cold",
			Name:         "Cold Call Warm-Up",
			Description:  "Build rapport quickly with a cold prospect",
			TargetSkills: []string{"rapport_building", "discovery"},
			Difficulty:   "beginner",
			BuyerPersona: "Head of Marketing, wasn't expecting your call, mildly annoyed",
			Context:      "Cold call. You have 60 seconds to earn their attention.",
			OpeningLine:  "Hello? Who is this? I'm in the middle of something, so make it quick.",
		},
	}
}

package ai

import (
	"context"
	"math/rand"
	"time"

	"github.com/dealdojo/backend/internal/analysis/phase"
	"github.com/dealdojo/backend/internal/config"
)

// mockProvider plays the buyer from a canned per-phase script. It keeps the
// whole engine runnable offline, with a small artificial latency so the
// typing indicator and cancellation paths behave like production.
type mockProvider struct{}

func newMockProvider() *mockProvider { return &mockProvider{} }

func (p *mockProvider) Name() string { return config.ProviderMock }

func (p *mockProvider) Generate(ctx context.Context, in Prompt) (string, error) {
	delay := time.Duration(300+rand.Intn(900)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	responses, ok := mockResponses[in.Phase]
	if !ok {
		responses = mockResponses[phase.Greeting]
	}
	return responses[rand.Intn(len(responses))], nil
}

var mockResponses = map[phase.Phase][]string{
	phase.Greeting: {
		"Hi. Yeah, I got your email. Look, I've got about 15 minutes before my next meeting, so let's make this quick. What exactly does your platform do?",
		"Hey there. I'll be honest, I wasn't really expecting this call but your email caught my eye. I'm curious but skeptical. Pitch me.",
		"Hello. Before you start, I've seen a dozen demos this quarter already. What makes yours different? And please, no buzzwords.",
	},
	phase.Discovery: {
		"Well, our main challenge is that ramp time for new reps is about 6 months right now. We lose deals because junior reps don't know how to handle objections. But I'm not sure another tool is the answer.",
		"Hmm, good question. We're running a team of 40 SDRs and the conversion rate has been dropping. I think the issue is discovery calls, reps aren't asking the right questions. But how would AI actually fix that?",
		"Our pipeline is healthy but win rates are down 15% this quarter. The VP of Sales thinks it's a coaching problem. Personally, I think it's a hiring problem. But I'm open to hearing your take.",
	},
	phase.Pitch: {
		"Budget... I'd say somewhere in the $50K to $80K range annually, but our CFO will need to sign off on anything over $30K. Timeline-wise, we're looking at Q2 if we move forward. We're also talking to two other vendors.",
		"We don't have a hard budget yet, still in exploration mode. But if the ROI is clear, I can probably get $60-100K approved. Decision would be me plus our CRO. She's the tough one.",
		"I can authorize up to $40K myself. Anything above that goes to procurement, and that's a 6-week process. So if you're thinking of closing this month, that's not realistic.",
	},
	phase.ObjectionHandling: {
		"Look, we tried AI coaching before, spent $80K on a platform that nobody used after month two. How is this different? I need more than promises.",
		"Your competitor quoted us 30% less for basically the same thing. I get that you think you're better, but from where I'm sitting, features look pretty similar. Why should I pay more?",
		"I'm worried about adoption. My team is already drowning in tools. Salesforce, Outreach, Gong, Slack. Adding another thing feels like it'll just create more friction.",
	},
	phase.Closing: {
		"Alright, you've addressed most of my concerns. What does the implementation timeline look like? And walk me through the contract terms, I want to understand the commitment.",
		"I'll be honest, I need to think about this. Can you send me a summary of what we discussed? I want to run it by my CRO before making any commitments.",
		"I like it. I think we can move forward. What are the next steps on your end? I'll need a formal proposal to take to procurement by Friday.",
	},
	phase.Ended: {
		"Good conversation. I'm cautiously optimistic. Send me that proposal and let's set up a call with my CRO next week. No promises, but you're in the running.",
		"Thanks for your time. Honestly, I'm more interested than I expected to be. Let me digest everything and I'll get back to you by Thursday.",
		"Alright, I think we're done for today. I'll be straight with you, you're my top choice right now, but I have one more demo tomorrow. Send me the pricing breakdown and let's go from there.",
	},
}

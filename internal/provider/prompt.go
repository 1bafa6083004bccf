package provider

import (
	"fmt"
	"strings"
)

// querySystemPrompt frames the query so the model answers the phrase
// as it would for a real user, optionally anchored to a location.
func querySystemPrompt(req QueryRequest) string {
	var b strings.Builder
	b.WriteString("You are answering a user's search query. Respond helpfully and naturally, recommending specific companies, products, or services where relevant.")
	if req.Location != "" {
		fmt.Fprintf(&b, " The user is located in %s.", req.Location)
	}
	return b.String()
}

const scoringSystemPrompt = `You evaluate how visible a target company is in an AI assistant's response. Reply with a single JSON object, no prose, with these fields:
- "presence": 1 if the target company or its domain is mentioned, else 0
- "relevance": 0-100, how well the response matches the query intent for the target
- "accuracy": 0-100, how accurate the claims about the target are
- "sentiment": 0-100, how favorably the target is portrayed (50 is neutral)
- "overall": 0-100, combined visibility score
- "competitors": array of other companies mentioned, each with "name", "domain", "position" (1-based order of mention), "context" (short quote), "sentiment" ("positive", "neutral", "negative"), and "mention_type" ("recommendation", "comparison", "listing", "passing")`

// scoringUserPrompt renders one response for evaluation.
func scoringUserPrompt(req ScoreRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target company domain: %s\n", req.DomainURL)
	if req.Location != "" {
		fmt.Fprintf(&b, "Target market: %s\n", req.Location)
	}
	fmt.Fprintf(&b, "Search query: %s\n", req.Phrase)
	fmt.Fprintf(&b, "Model that answered: %s\n\n", req.Model)
	fmt.Fprintf(&b, "Response to evaluate:\n%s", req.Response)
	return b.String()
}

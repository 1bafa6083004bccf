package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/pkg/anthropic"
)

// AnthropicQuerier serves the Claude display model.
type AnthropicQuerier struct {
	client anthropic.Client
	model  string
}

// NewAnthropicQuerier binds an Anthropic client and upstream model ID.
func NewAnthropicQuerier(client anthropic.Client, model string) *AnthropicQuerier {
	return &AnthropicQuerier{client: client, model: model}
}

// Query asks Claude the phrase the way an end user would.
func (q *AnthropicQuerier) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	resp, err := q.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     q.model,
		MaxTokens: 1024,
		System:    querySystemPrompt(req),
		Messages:  []anthropic.Message{{Role: "user", Content: req.Phrase}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "provider: anthropic query")
	}
	return &QueryResponse{
		Text:    resp.Text,
		CostUSD: resp.Usage.EstimateCost(q.model),
	}, nil
}

// AnthropicScorer evaluates model responses with a small Claude model,
// returning the five-axis score and competitor mentions.
type AnthropicScorer struct {
	client anthropic.Client
	model  string
}

// NewAnthropicScorer binds an Anthropic client and scoring model ID.
func NewAnthropicScorer(client anthropic.Client, model string) *AnthropicScorer {
	return &AnthropicScorer{client: client, model: model}
}

// Score asks the scoring model to evaluate one response.
func (s *AnthropicScorer) Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	temp := 0.0
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   2048,
		System:      scoringSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: scoringUserPrompt(req)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "provider: anthropic score")
	}
	return parseScorePayload(resp.Text)
}

// scorePayload mirrors the JSON the scoring prompt requests.
type scorePayload struct {
	Presence    int     `json:"presence"`
	Relevance   float64 `json:"relevance"`
	Accuracy    float64 `json:"accuracy"`
	Sentiment   float64 `json:"sentiment"`
	Overall     float64 `json:"overall"`
	Competitors []struct {
		Name        string `json:"name"`
		Domain      string `json:"domain"`
		Position    int    `json:"position"`
		Context     string `json:"context"`
		Sentiment   string `json:"sentiment"`
		MentionType string `json:"mention_type"`
	} `json:"competitors"`
}

// parseScorePayload extracts the JSON object from the scoring model's
// reply, tolerating markdown fences and surrounding prose.
func parseScorePayload(text string) (*ScoreResponse, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("provider: no JSON object in scoring response")
	}

	var payload scorePayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, eris.Wrap(err, "provider: parse scoring response")
	}

	if payload.Presence != 0 {
		payload.Presence = 1
	}
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 100 {
			return 100
		}
		return v
	}
	scores := model.ScoreBreakdown{
		Presence:  payload.Presence,
		Relevance: clamp(payload.Relevance),
		Accuracy:  clamp(payload.Accuracy),
		Sentiment: clamp(payload.Sentiment),
		Overall:   clamp(payload.Overall),
	}
	if scores.Overall == 0 && scores.Presence == 1 {
		scores.Overall = scores.Relevance*0.4 + scores.Accuracy*0.3 + scores.Sentiment*0.3
	}

	competitors := make([]model.CompetitorMention, 0, len(payload.Competitors))
	for _, c := range payload.Competitors {
		if c.Name == "" && c.Domain == "" {
			continue
		}
		competitors = append(competitors, model.CompetitorMention{
			Name:        c.Name,
			Domain:      strings.ToLower(c.Domain),
			Position:    c.Position,
			Context:     c.Context,
			Sentiment:   c.Sentiment,
			MentionType: c.MentionType,
		})
	}
	return &ScoreResponse{Scores: scores, Competitors: competitors}, nil
}

package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/pkg/openai"
)

// OpenAIQuerier serves a display model through an OpenAI-compatible
// chat API. ChatGPT uses the default endpoint; Gemini is served through
// the same wire format behind its own base URL.
type OpenAIQuerier struct {
	client openai.Client
	model  string
}

// NewOpenAIQuerier binds a chat client and upstream model ID.
func NewOpenAIQuerier(client openai.Client, model string) *OpenAIQuerier {
	return &OpenAIQuerier{client: client, model: model}
}

// Query asks the model the phrase the way an end user would.
func (q *OpenAIQuerier) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	resp, err := q.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: q.model,
		Messages: []openai.Message{
			{Role: "system", Content: querySystemPrompt(req)},
			{Role: "user", Content: req.Phrase},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "provider: %s query", req.Model)
	}
	if len(resp.Choices) == 0 {
		return nil, eris.Errorf("provider: %s returned no choices", req.Model)
	}
	return &QueryResponse{
		Text:    resp.Choices[0].Message.Content,
		CostUSD: resp.Usage.EstimateCost(q.model),
	}, nil
}

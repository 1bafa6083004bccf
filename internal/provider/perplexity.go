package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/pkg/perplexity"
)

// PerplexityQuerier serves the Perplexity display model. Citation URLs
// are appended to the response text so scoring sees which domains the
// answer was actually grounded on.
type PerplexityQuerier struct {
	client perplexity.Client
	model  string
}

// NewPerplexityQuerier binds a Perplexity client and upstream model ID.
func NewPerplexityQuerier(client perplexity.Client, model string) *PerplexityQuerier {
	return &PerplexityQuerier{client: client, model: model}
}

// Query asks Perplexity the phrase the way an end user would.
func (q *PerplexityQuerier) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	resp, err := q.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: q.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: querySystemPrompt(req)},
			{Role: "user", Content: req.Phrase},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "provider: perplexity query")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("provider: perplexity returned no choices")
	}

	text := resp.Choices[0].Message.Content
	if len(resp.Citations) > 0 {
		text += "\n\nSources:\n" + strings.Join(resp.Citations, "\n")
	}
	return &QueryResponse{
		Text:    text,
		CostUSD: resp.Usage.EstimateCost(),
	}, nil
}

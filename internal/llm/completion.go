package llm

import (
	"context"
	"net/http"
)

// CompletionProvider talks to a minimal completion endpoint:
// {prompt, maxTokens, temperature} in, {generatedText} out.
type CompletionProvider struct {
	apiKey string
	url    string
	client *http.Client
}

func NewCompletionProvider(apiKey, url string) *CompletionProvider {
	return &CompletionProvider{apiKey: apiKey, url: url, client: newHTTPClient()}
}

func (p *CompletionProvider) Name() string {
	return "completion"
}

func (p *CompletionProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	payload := completionRequest{
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var result completionResponse
	if err := postJSON(ctx, p.client, p.Name(), p.url, headers, payload, &result, nil); err != nil {
		return "", err
	}
	return result.GeneratedText, nil
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	GeneratedText string `json:"generatedText"`
}

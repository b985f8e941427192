package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HuggingFaceProvider calls the Hugging Face text-generation inference API.
type HuggingFaceProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewHuggingFaceProvider(apiKey, model, baseURL string) *HuggingFaceProvider {
	return &HuggingFaceProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(),
	}
}

func (p *HuggingFaceProvider) Name() string {
	return "huggingface"
}

// Generate posts {inputs, parameters} and returns the first generated_text.
// The prompt is not echoed back (return_full_text is false).
func (p *HuggingFaceProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	payload := hfRequest{
		Inputs: req.Prompt,
		Parameters: hfParameters{
			MaxNewTokens:   req.MaxTokens,
			Temperature:    req.Temperature,
			TopP:           0.95,
			DoSample:       req.Temperature > 0,
			ReturnFullText: false,
		},
	}

	var result []hfGeneration
	err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/models/"+p.model,
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		payload, &result, hfErrorMessage)
	if err != nil {
		return "", err
	}

	if len(result) == 0 {
		return "", fmt.Errorf("empty generation array")
	}
	return result[0].GeneratedText, nil
}

func hfErrorMessage(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		return errResp.Error
	}
	return ""
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

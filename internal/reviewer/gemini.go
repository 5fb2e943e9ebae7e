package reviewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const ProviderGoogle = "google"

// GeminiClient reviews with the Gemini GenerateContent API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a client for the Gemini developer API.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Provider() string { return ProviderGoogle }

func (c *GeminiClient) Review(ctx context.Context, req Request) (Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens:   int32(req.MaxTokens),
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	contents := genai.Text(req.User)

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return Response{}, newError(ProviderGoogle, geminiStatus(err), fmt.Errorf("generate content failed: %w", err))
	}
	text := resp.Text()
	if text == "" {
		return Response{}, newError(ProviderGoogle, 0, errors.New("empty response from Gemini"))
	}

	r := Response{Text: text, Model: req.Model, Provider: ProviderGoogle}
	if resp.ModelVersion != "" {
		r.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		r.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		r.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return r, nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

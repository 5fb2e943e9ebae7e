package reviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/interceptors"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/tracing"
)

const (
	ProviderLLMService = "llm_service"
	reviewerAgentID    = "reflection_reviewer"
	maxErrorBody       = 512
)

// LLMServiceClient calls the internal LLM service's /agent/query endpoint.
type LLMServiceClient struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewLLMServiceClient creates a client for baseURL. The underlying
// http.Client carries no timeout; the caller's context bounds every call.
func NewLLMServiceClient(baseURL string, logger *zap.Logger) *LLMServiceClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	hw := circuitbreaker.NewHTTPWrapper(interceptors.NewHTTPClient(), "llm-service-review", ProviderLLMService, logger)
	return &LLMServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hw,
		logger:  logger,
	}
}

func (c *LLMServiceClient) Provider() string { return ProviderLLMService }

// Breaker exposes the transport breaker for health reporting.
func (c *LLMServiceClient) Breaker() *circuitbreaker.CircuitBreaker { return c.http.Breaker() }

type agentQueryRequest struct {
	Query       string                 `json:"query"`
	AgentID     string                 `json:"agent_id"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature"`
	Context     map[string]interface{} `json:"context"`
}

type agentQueryResponse struct {
	Success    bool                   `json:"success"`
	Response   string                 `json:"response"`
	Error      string                 `json:"error"`
	TokensUsed int                    `json:"tokens_used"`
	ModelUsed  string                 `json:"model_used"`
	Provider   string                 `json:"provider"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// Review sends one review request. Tools are disabled and the model is
// pinned with model_override.
func (c *LLMServiceClient) Review(ctx context.Context, req Request) (Response, error) {
	url := c.baseURL + "/agent/query"
	body, err := json.Marshal(agentQueryRequest{
		Query:       req.User,
		AgentID:     reviewerAgentID,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Context: map[string]interface{}{
			"system_prompt":  req.System,
			"model_override": req.Model,
			"allowed_tools":  []string{},
			"mode":           "reflection",
		},
	})
	if err != nil {
		return Response{}, &Error{Kind: KindUpstream, Provider: ProviderLLMService, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, &Error{Kind: KindUpstream, Provider: ProviderLLMService, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Agent-ID", reviewerAgentID)
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{}, newError(ProviderLLMService, 0, fmt.Errorf("LLM service call failed: %w", err))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		span.SetStatus(codes.Error, resp.Status)
		return Response{}, newError(ProviderLLMService, resp.StatusCode,
			fmt.Errorf("HTTP %d from LLM service: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var out agentQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, newError(ProviderLLMService, resp.StatusCode, fmt.Errorf("failed to parse LLM response: %w", err))
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "LLM service returned success=false"
		}
		return Response{}, newError(ProviderLLMService, resp.StatusCode, fmt.Errorf("%s", msg))
	}

	r := Response{
		Text:     out.Response,
		Model:    out.ModelUsed,
		Provider: out.Provider,
	}
	if r.Model == "" {
		r.Model = req.Model
	}
	if r.Provider == "" {
		r.Provider = ProviderLLMService
	}
	r.InputTokens, r.OutputTokens = metadataTokens(out.Metadata)
	if r.InputTokens+r.OutputTokens == 0 && out.TokensUsed > 0 {
		// only the total is known
		r.OutputTokens = out.TokensUsed
	}
	return r, nil
}

func metadataTokens(md map[string]interface{}) (in, out int) {
	if md == nil {
		return 0, 0
	}
	if v, ok := md["input_tokens"].(float64); ok {
		in = int(v)
	}
	if v, ok := md["output_tokens"].(float64); ok {
		out = int(v)
	}
	return in, out
}

package reviewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientReview(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini-2024-07-18",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"issues_found\": false}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 300, "completion_tokens": 12, "total_tokens": 312}
		}`))
	}))
	defer server.Close()

	c := NewOpenAIClient("sk-test", server.URL+"/v1", server.Client())
	resp, err := c.Review(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, `{"issues_found": false}`, resp.Text)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.Equal(t, 300, resp.InputTokens)
	assert.Equal(t, 12, resp.OutputTokens)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	msgs, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "user", msgs[1].(map[string]interface{})["role"])
}

func TestOpenAIClientRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	_, err := NewOpenAIClient("sk-test", server.URL+"/v1", server.Client()).Review(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
}

func TestOpenAIClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "choices": []}`))
	}))
	defer server.Close()

	_, err := NewOpenAIClient("sk-test", server.URL+"/v1", server.Client()).Review(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestAnthropicClientReview(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "{\"issues_found\": true, \"issues\": [\"x\"], \"revised_response\": null}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 410, "output_tokens": 25}
		}`))
	}))
	defer server.Close()

	c := NewAnthropicClient("sk-ant-test", server.URL, server.Client())
	req := testRequest()
	req.Model = "claude-3-5-haiku-latest"
	resp, err := c.Review(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, resp.Text, `"issues_found": true`)
	assert.Equal(t, "claude-3-5-haiku-20241022", resp.Model)
	assert.Equal(t, 410, resp.InputTokens)
	assert.Equal(t, 25, resp.OutputTokens)
	assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
	assert.Equal(t, float64(800), body["max_tokens"])
	assert.NotNil(t, body["system"])
}

func TestAnthropicClientErrorsAreNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer server.Close()

	_, err := NewAnthropicClient("sk-ant-test", server.URL, server.Client()).Review(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, 1, calls)
}

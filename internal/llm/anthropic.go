package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const jsonOnlyInstruction = "Respond with ONLY a JSON object, no other text."

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	httpClient
}

func NewAnthropicClient(apiKey, model string, opts ...ClientOption) *AnthropicClient {
	return &AnthropicClient{newHTTPClient(apiKey, model, "https://api.anthropic.com/v1", opts)}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	system := req.System
	if req.JSON {
		system = joinNonEmpty(system, jsonOnlyInstruction)
	}
	reqBody := anthropicRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		System:      system,
		Messages:    append(append([]Message(nil), req.History...), Message{Role: RoleUser, Content: req.User}),
		Temperature: req.Temperature,
	}
	if reqBody.MaxTokens <= 0 {
		reqBody.MaxTokens = defaultMaxTokens
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if isRetryableStatus(resp.StatusCode) {
		return "", newRetryableError(resp, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var out bytes.Buffer
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("empty response from anthropic")
	}
	if req.JSON {
		return StripCodeBlock(out.String()), nil
	}
	return out.String(), nil
}

// Close releases idle connections.
func (c *AnthropicClient) Close() {
	c.http.CloseIdleConnections()
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}

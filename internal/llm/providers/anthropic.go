package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

// anthropicVersion pins the Messages API revision sent with every request.
const anthropicVersion = "2023-06-01"

// AnthropicAdapter implements ProviderAdapter for Anthropic Claude models.
// Chat and text completions are served through the Messages API; Anthropic
// exposes no embeddings endpoint, so embedding requests are rejected.
type AnthropicAdapter struct {
	config configuration.ProviderConfig
}

// NewAnthropicAdapter creates an Anthropic provider adapter with default endpoint.
func NewAnthropicAdapter(cfg configuration.ProviderConfig) *AnthropicAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	return &AnthropicAdapter{config: cfg}
}

// Name returns the provider name.
func (a *AnthropicAdapter) Name() string {
	return ProviderAnthropic
}

// Build constructs an Anthropic Messages API request. System messages are
// lifted into the top-level system field as the API requires, and text
// completion prompts are wrapped as a single user turn.
func (a *AnthropicAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	var messages []domain.ChatMessage

	switch req.Operation {
	case transport.OpChatCompletion:
		messages = req.Messages
	case transport.OpCompletion:
		messages = []domain.ChatMessage{{Role: domain.RoleUser, Content: req.Prompt}}
	case transport.OpEmbedding:
		return nil, fmt.Errorf("%w: anthropic has no embeddings API", llmerrors.ErrUnsupportedOperation)
	default:
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnsupportedOperation, req.Operation)
	}

	var system []string
	turns := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, map[string]any{"role": m.Role, "content": m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		// max_tokens is mandatory on the Messages API.
		maxTokens = 1024
	}

	body := map[string]any{
		"model":      req.Model,
		"messages":   turns,
		"max_tokens": maxTokens,
	}
	if len(system) > 0 {
		body["system"] = strings.Join(system, "\n\n")
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		body["stop_sequences"] = req.Stop
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/messages", a.config.Endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts normalized data from an Anthropic Messages API response.
func (a *AnthropicAdapter) Parse(op transport.OperationType, httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseAnthropicError(httpResp.StatusCode, body, httpResp.Header)
	}

	var resp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	requestIDs := []string{}
	if reqID := httpResp.Header.Get("request-id"); reqID != "" {
		requestIDs = append(requestIDs, reqID)
	}

	return &transport.Response{
		Content:            content.String(),
		Model:              resp.Model,
		FinishReason:       mapAnthropicStopReason(resp.StopReason),
		ProviderRequestIDs: requestIDs,
		Usage: transport.NormalizedUsage{
			PromptTokens:     int64(resp.Usage.InputTokens),
			CompletionTokens: int64(resp.Usage.OutputTokens),
			TotalTokens:      int64(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		Headers: httpResp.Header,
		RawBody: body,
	}, nil
}

// mapAnthropicStopReason converts Anthropic stop_reason to domain FinishReason.
func mapAnthropicStopReason(reason string) domain.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return domain.FinishStop
	case "max_tokens":
		return domain.FinishLength
	case "tool_use":
		return domain.FinishToolUse
	default:
		return domain.FinishStop
	}
}

// parseAnthropicError converts Anthropic error responses to ProviderError.
func parseAnthropicError(statusCode int, body []byte, httpHeader http.Header) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &llmerrors.ProviderError{
			Provider:   ProviderAnthropic,
			StatusCode: statusCode,
			Message:    errResp.Error.Message,
			Code:       errResp.Error.Type,
			Type:       classifyErrorType(statusCode, errResp.Error.Type),
			RetryAfter: retryAfterSeconds(httpHeader),
		}
	}

	return &llmerrors.ProviderError{
		Provider:   ProviderAnthropic,
		StatusCode: statusCode,
		Message:    string(body),
		Type:       classifyErrorType(statusCode, ""),
		RetryAfter: retryAfterSeconds(httpHeader),
	}
}

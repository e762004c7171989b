package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

// OpenAIAdapter implements ProviderAdapter for OpenAI GPT models.
// It serves chat completions, legacy text completions, and embeddings
// through OpenAI's v1 API, including OpenAI-specific error handling.
type OpenAIAdapter struct {
	config configuration.ProviderConfig
}

// NewOpenAIAdapter creates an OpenAI provider adapter with default endpoint.
// If no endpoint is configured, it defaults to OpenAI's production API.
func NewOpenAIAdapter(cfg configuration.ProviderConfig) *OpenAIAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{config: cfg}
}

// Name returns the provider name.
func (a *OpenAIAdapter) Name() string {
	return ProviderOpenAI
}

// Build constructs an OpenAI API request from a normalized transport request.
// Endpoint and body shape follow the operation type; authentication and
// idempotency headers are attached uniformly.
func (a *OpenAIAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	var endpoint string
	var body map[string]any

	switch req.Operation {
	case transport.OpChatCompletion:
		endpoint = fmt.Sprintf("%s/chat/completions", a.config.Endpoint)

		messages := make([]map[string]any, 0, len(req.Messages))
		for _, m := range req.Messages {
			message := map[string]any{"role": m.Role, "content": m.Content}
			if m.Name != "" {
				message["name"] = m.Name
			}
			messages = append(messages, message)
		}
		body = map[string]any{
			"model":    req.Model,
			"messages": messages,
		}

	case transport.OpCompletion:
		endpoint = fmt.Sprintf("%s/completions", a.config.Endpoint)
		body = map[string]any{
			"model":  req.Model,
			"prompt": req.Prompt,
		}

	case transport.OpEmbedding:
		endpoint = fmt.Sprintf("%s/embeddings", a.config.Endpoint)
		body = map[string]any{
			"model": req.Model,
			"input": req.Input,
		}
		if req.EncodingFormat != "" {
			body["encoding_format"] = req.EncodingFormat
		}

	default:
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnsupportedOperation, req.Operation)
	}

	if req.Operation != transport.OpEmbedding {
		if req.MaxTokens > 0 {
			body["max_tokens"] = req.MaxTokens
		}
		if req.Temperature != nil {
			body["temperature"] = *req.Temperature
		}
		if req.TopP != nil {
			body["top_p"] = *req.TopP
		}
		if len(req.Stop) > 0 {
			body["stop"] = req.Stop
		}
		if req.Seed != nil {
			body["seed"] = *req.Seed
		}
	}
	if req.User != "" {
		body["user"] = req.User
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.config.APIKey))

	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts normalized data from an OpenAI API response.
func (a *OpenAIAdapter) Parse(op transport.OperationType, httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseOpenAIError(httpResp.StatusCode, body, httpResp.Header)
	}

	if op == transport.OpEmbedding {
		return a.parseEmbeddings(body, httpResp)
	}

	var resp struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		Model   string `json:"model"`
		Choices []struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			Text         string `json:"text"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var content string
	var finishReason domain.FinishReason

	if len(resp.Choices) > 0 {
		// Chat completions come back under message.content, legacy
		// completions under text.
		content = resp.Choices[0].Message.Content
		if content == "" {
			content = resp.Choices[0].Text
		}
		finishReason = mapOpenAIFinishReason(resp.Choices[0].FinishReason)
	}

	return &transport.Response{
		Content:            content,
		Model:              resp.Model,
		FinishReason:       finishReason,
		ProviderRequestIDs: openAIRequestIDs(httpResp.Header),
		Usage: transport.NormalizedUsage{
			PromptTokens:     int64(resp.Usage.PromptTokens),
			CompletionTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:      int64(resp.Usage.TotalTokens),
		},
		Headers: httpResp.Header,
		RawBody: body,
	}, nil
}

// parseEmbeddings decodes OpenAI's embeddings list format.
func (a *OpenAIAdapter) parseEmbeddings(body []byte, httpResp *http.Response) (*transport.Response, error) {
	var resp struct {
		Object string `json:"object"`
		Model  string `json:"model"`
		Data   []struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse embeddings response: %w", err)
	}

	embeddings := make([][]float64, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", llmerrors.ErrInvalidResponse, item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}

	return &transport.Response{
		Embeddings:         embeddings,
		Model:              resp.Model,
		ProviderRequestIDs: openAIRequestIDs(httpResp.Header),
		Usage: transport.NormalizedUsage{
			PromptTokens: int64(resp.Usage.PromptTokens),
			TotalTokens:  int64(resp.Usage.TotalTokens),
		},
		Headers: httpResp.Header,
		RawBody: body,
	}, nil
}

func openAIRequestIDs(httpHeader http.Header) []string {
	requestIDs := []string{}
	if reqID := httpHeader.Get("x-request-id"); reqID != "" {
		requestIDs = append(requestIDs, reqID)
	}
	return requestIDs
}

// mapOpenAIFinishReason converts OpenAI finish_reason to domain FinishReason.
func mapOpenAIFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "stop":
		return domain.FinishStop
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	case "tool_calls", "function_call":
		return domain.FinishToolUse
	default:
		return domain.FinishStop
	}
}

// parseOpenAIError converts OpenAI error responses to ProviderError.
func parseOpenAIError(statusCode int, body []byte, httpHeader http.Header) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &llmerrors.ProviderError{
			Provider:   ProviderOpenAI,
			StatusCode: statusCode,
			Message:    errResp.Error.Message,
			Code:       errResp.Error.Code,
			Type:       classifyErrorType(statusCode, errResp.Error.Type),
			RetryAfter: retryAfterSeconds(httpHeader),
		}
	}

	return &llmerrors.ProviderError{
		Provider:   ProviderOpenAI,
		StatusCode: statusCode,
		Message:    string(body),
		Type:       classifyErrorType(statusCode, ""),
		RetryAfter: retryAfterSeconds(httpHeader),
	}
}

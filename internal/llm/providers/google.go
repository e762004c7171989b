package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

// GoogleAdapter implements ProviderAdapter for Google Gemini models.
// Chat and text completions use generateContent; embeddings use
// batchEmbedContents so multi-input requests get one vector per input.
type GoogleAdapter struct {
	config configuration.ProviderConfig
}

// NewGoogleAdapter creates a Google provider adapter with default endpoint.
func NewGoogleAdapter(cfg configuration.ProviderConfig) *GoogleAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GoogleAdapter{config: cfg}
}

// Name returns the provider name.
func (a *GoogleAdapter) Name() string {
	return ProviderGoogle
}

// Build constructs a Gemini API request. Gemini has no assistant role;
// assistant messages map to the model role, and system messages are carried
// in systemInstruction.
func (a *GoogleAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	var endpoint string
	var body map[string]any

	switch req.Operation {
	case transport.OpChatCompletion, transport.OpCompletion:
		endpoint = fmt.Sprintf("%s/models/%s:generateContent", a.config.Endpoint, url.PathEscape(req.Model))
		body = a.buildGenerateBody(req)

	case transport.OpEmbedding:
		endpoint = fmt.Sprintf("%s/models/%s:batchEmbedContents", a.config.Endpoint, url.PathEscape(req.Model))
		requests := make([]map[string]any, 0, len(req.Input))
		for _, text := range req.Input {
			requests = append(requests, map[string]any{
				"model": "models/" + req.Model,
				"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
				},
			})
		}
		body = map[string]any{"requests": requests}

	default:
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnsupportedOperation, req.Operation)
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Gemini authenticates via query parameter rather than a header.
	endpoint = fmt.Sprintf("%s?key=%s", endpoint, url.QueryEscape(a.config.APIKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

func (a *GoogleAdapter) buildGenerateBody(req *transport.Request) map[string]any {
	messages := req.Messages
	if req.Operation == transport.OpCompletion {
		messages = []domain.ChatMessage{{Role: domain.RoleUser, Content: req.Prompt}}
	}

	var system []string
	contents := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": m.Content}},
		})
	}

	body := map[string]any{"contents": contents}
	if len(system) > 0 {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": strings.Join(system, "\n\n")}},
		}
	}

	generationConfig := map[string]any{}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		generationConfig["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		generationConfig["topP"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		generationConfig["stopSequences"] = req.Stop
	}
	if len(generationConfig) > 0 {
		body["generationConfig"] = generationConfig
	}

	return body
}

// Parse extracts normalized data from a Gemini API response.
func (a *GoogleAdapter) Parse(op transport.OperationType, httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseGoogleError(httpResp.StatusCode, body, httpResp.Header)
	}

	if op == transport.OpEmbedding {
		return a.parseEmbedding(body, httpResp)
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
		ModelVersion string `json:"modelVersion"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var content strings.Builder
	finishReason := domain.FinishStop
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			content.WriteString(part.Text)
		}
		finishReason = mapGoogleFinishReason(resp.Candidates[0].FinishReason)
	}

	return &transport.Response{
		Content:      content.String(),
		Model:        resp.ModelVersion,
		FinishReason: finishReason,
		Usage: transport.NormalizedUsage{
			PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int64(resp.UsageMetadata.TotalTokenCount),
		},
		Headers: httpResp.Header,
		RawBody: body,
	}, nil
}

// parseEmbedding decodes Gemini's batchEmbedContents format, one vector
// per requested input.
func (a *GoogleAdapter) parseEmbedding(body []byte, httpResp *http.Response) (*transport.Response, error) {
	var resp struct {
		Embeddings []struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	embeddings := make([][]float64, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		embeddings = append(embeddings, e.Values)
	}

	return &transport.Response{
		Embeddings: embeddings,
		Headers:    httpResp.Header,
		RawBody:    body,
	}, nil
}

// mapGoogleFinishReason converts Gemini finishReason to domain FinishReason.
func mapGoogleFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "STOP":
		return domain.FinishStop
	case "MAX_TOKENS":
		return domain.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return domain.FinishContentFilter
	default:
		return domain.FinishStop
	}
}

// parseGoogleError converts Gemini error responses to ProviderError.
func parseGoogleError(statusCode int, body []byte, httpHeader http.Header) error {
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &llmerrors.ProviderError{
			Provider:   ProviderGoogle,
			StatusCode: statusCode,
			Message:    errResp.Error.Message,
			Code:       errResp.Error.Status,
			Type:       classifyErrorType(statusCode, errResp.Error.Status),
			RetryAfter: retryAfterSeconds(httpHeader),
		}
	}

	return &llmerrors.ProviderError{
		Provider:   ProviderGoogle,
		StatusCode: statusCode,
		Message:    string(body),
		Type:       classifyErrorType(statusCode, ""),
		RetryAfter: retryAfterSeconds(httpHeader),
	}
}

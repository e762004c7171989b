package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

const maxProxyBodyBytes = 10 << 20

// handleProxy forwards an OpenAI-surface request to a randomly chosen
// fresh registration of the requested model. Upstream status and body
// pass through untouched.
func (s *Server) handleProxy(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBodyBytes))
	if err != nil {
		writeInvalidRequest(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	var probe struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Model == "" {
		writeInvalidRequest(c, http.StatusBadRequest, "request body must carry a model")
		return
	}

	models, err := s.freshModels(c.Request.Context(), probe.Model)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(models) == 0 {
		writeModelNotFound(c, probe.Model)
		return
	}
	target := models[rand.IntN(len(models))]

	upstreamURL := strings.TrimRight(target.OwnedBy, "/") + c.Request.URL.Path
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		writeError(c, fmt.Errorf("build upstream request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID := c.GetString("request_id"); requestID != "" {
		req.Header.Set(requestIDHeader, requestID)
	}

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		s.logger.Warn("upstream request failed",
			"model", probe.Model,
			"upstream", target.OwnedBy,
			"error", err)
		writeError(c, fmt.Errorf("%w: %v", llmerrors.ErrProviderUnavailable, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, nil)
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

func (s *Server) handleHealth(c *gin.Context) {
	var models int
	if s.isAgent() {
		fresh, err := s.freshModels(c.Request.Context(), "")
		if err == nil {
			models = len(fresh)
		}
	} else {
		models = len(s.llm.Routes())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"app_type": s.settings.AppType,
		"models":   models,
	})
}

// handleListModels answers the configured deploys in llm mode and the
// fresh registrations in agent mode.
func (s *Server) handleListModels(c *gin.Context) {
	if s.isAgent() {
		models, err := s.freshModels(c.Request.Context(), "")
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, domain.NewModelList(models))
		return
	}
	c.JSON(http.StatusOK, domain.NewModelList(s.deployModels()))
}

func (s *Server) handleGetModel(c *gin.Context) {
	id := c.Param("id")

	if s.isAgent() {
		models, err := s.freshModels(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		if len(models) == 0 {
			writeModelNotFound(c, id)
			return
		}
		c.JSON(http.StatusOK, models[0])
		return
	}

	for _, m := range s.deployModels() {
		if m.ID == id {
			c.JSON(http.StatusOK, m)
			return
		}
	}
	writeModelNotFound(c, id)
}

// handleRegisterModel accepts a registration heartbeat from an llm
// instance. Agent mode only.
func (s *Server) handleRegisterModel(c *gin.Context) {
	var model domain.Model
	if err := c.ShouldBindJSON(&model); err != nil {
		writeInvalidRequest(c, http.StatusBadRequest, "invalid registration body: "+err.Error())
		return
	}
	if err := model.Validate(); err != nil {
		writeInvalidRequest(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.store.Register(c.Request.Context(), model); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": model.ID})
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	var req domain.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidRequest(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Stream {
		writeInvalidRequest(c, http.StatusBadRequest, "streaming responses are not supported")
		return
	}
	if err := req.Validate(); err != nil {
		writeInvalidRequest(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	resp, err := s.llm.ChatCompletion(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCompletions(c *gin.Context) {
	var req domain.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidRequest(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Stream {
		writeInvalidRequest(c, http.StatusBadRequest, "streaming responses are not supported")
		return
	}
	if err := req.Validate(); err != nil {
		writeInvalidRequest(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	resp, err := s.llm.Completion(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEmbeddings(c *gin.Context) {
	var req domain.EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidRequest(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeInvalidRequest(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	resp, err := s.llm.Embeddings(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// deployModels renders the client's routes as model records owned by this
// instance.
func (s *Server) deployModels() []domain.Model {
	routes := s.llm.Routes()
	models := make([]domain.Model, 0, len(routes))
	for _, name := range routes {
		models = append(models, domain.Model{
			ID:      name,
			Object:  "model",
			Created: s.startedAt.Unix(),
			OwnedBy: s.settings.AdvertisedURL(),
		})
	}
	sortModels(models)
	return models
}

// freshModels lists registrations still inside the freshness window; the
// sweeper keeps the store small enough to filter here.
func (s *Server) freshModels(ctx context.Context, id string) ([]domain.Model, error) {
	models, err := s.store.List(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fresh := models[:0]
	for _, m := range models {
		if m.FreshAt(now, s.settings.RegisterPeriod) {
			fresh = append(fresh, m)
		}
	}
	return fresh, nil
}

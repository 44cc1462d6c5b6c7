package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/vidra-ai/vidra/internal/generation/domain"
)

type createGenerationRequest struct {
	Prompt          string `json:"prompt"`
	ModelID         string `json:"modelId"`
	DurationSeconds int    `json:"durationSeconds"`
	AspectRatio     string `json:"aspectRatio"`
	EnableAudio     bool   `json:"enableAudio"`
	FirstFrameURL   string `json:"firstFrameUrl"`
	LastFrameURL    string `json:"lastFrameUrl"`
	NegativePrompt  string `json:"negativePrompt"`
}

func (s *Server) CreateGeneration(c *gin.Context) {
	var req createGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.generationSvc.Generate(c.Request.Context(), s.currentUserID(c), generationdomain.GenerateRequest{
		Prompt:          strings.TrimSpace(req.Prompt),
		ModelID:         strings.TrimSpace(req.ModelID),
		DurationSeconds: req.DurationSeconds,
		AspectRatio:     strings.TrimSpace(req.AspectRatio),
		EnableAudio:     req.EnableAudio,
		FirstFrameURL:   strings.TrimSpace(req.FirstFrameURL),
		LastFrameURL:    strings.TrimSpace(req.LastFrameURL),
		NegativePrompt:  strings.TrimSpace(req.NegativePrompt),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createEffectRequest struct {
	EffectID     string `json:"effectId"`
	EffectPrompt string `json:"effectPrompt"`
	ImageURL     string `json:"imageUrl"`
	AspectRatio  string `json:"aspectRatio"`
}

func (s *Server) CreateEffect(c *gin.Context) {
	var req createEffectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.generationSvc.CreateEffect(c.Request.Context(), s.currentUserID(c), generationdomain.EffectRequest{
		EffectID:     strings.TrimSpace(req.EffectID),
		EffectPrompt: strings.TrimSpace(req.EffectPrompt),
		ImageURL:     strings.TrimSpace(req.ImageURL),
		AspectRatio:  strings.TrimSpace(req.AspectRatio),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/vidra-ai/vidra/internal/generation/domain"
	"github.com/vidra-ai/vidra/internal/providers/replicate"
)

// ReplicateWebhook ingests provider status deliveries. Only a malformed
// payload is rejected; every other outcome acknowledges with 200 so the
// provider does not retry forever.
func (s *Server) ReplicateWebhook(c *gin.Context) {
	var prediction replicate.Prediction
	if err := c.ShouldBindJSON(&prediction); err != nil {
		AbortWithError(c, generationdomain.ErrInvalidPayload)
		return
	}

	if err := s.reconciler.Process(c.Request.Context(), &prediction); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListModels(c *gin.Context) {
	models, err := s.catalogSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": models})
}

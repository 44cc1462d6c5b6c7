package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxJobPageSize = 100

func (s *Server) ListJobs(c *gin.Context) {
	var query struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	limit := query.Limit
	if limit <= 0 || limit > maxJobPageSize {
		limit = maxJobPageSize
	}

	jobs, err := s.jobSvc.List(c.Request.Context(), s.currentUserID(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

func (s *Server) GetJob(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	job, err := s.jobSvc.Get(c.Request.Context(), s.currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}

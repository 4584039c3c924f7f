package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) PeekSerials(c *gin.Context) {
	var query struct {
		Count int `form:"count,default=1"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	serials, err := s.allocator.Peek(c.Request.Context(), query.Count)
	if err != nil {
		AbortWithError(c, newValidationError("count", "invalid_count", "invalid count"))
		return
	}

	next, err := s.allocator.Next(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"serials":    serials,
		"next_value": next,
	}})
}

type setNextSerialRequest struct {
	NextValue int64 `json:"next_value"`
}

func (s *Server) SetNextSerial(c *gin.Context) {
	var req setNextSerialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.allocator.SetNext(c.Request.Context(), req.NextValue); err != nil {
		AbortWithError(c, newValidationError("next_value", "invalid_next_value", "invalid next_value"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"next_value": req.NextValue,
	}})
}

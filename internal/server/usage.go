package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
)

type recordReturnRequest struct {
	ReturnAt string `json:"return_at"`
}

func (s *Server) RecordDeparture(c *gin.Context) {
	var req usagedomain.RecordDepartureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.usageSvc.RecordDeparture(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": record})
}

func (s *Server) RecordReturn(c *gin.Context) {
	var req recordReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	returnAt, err := parseInstant("return_at", req.ReturnAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.usageSvc.RecordReturn(c.Request.Context(), usagedomain.RecordReturnRequest{
		ID:       c.Param("id"),
		ReturnAt: returnAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": record})
}

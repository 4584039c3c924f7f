package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/db/pagination"
	"github.com/spokeworks/chainline/pkg/money"
)

type createUnitRequest struct {
	ProductID  string      `json:"product_id"`
	Serial     string      `json:"serial"`
	ActualCost money.Cents `json:"actual_cost"`
	Status     string      `json:"status"`
}

func (s *Server) CreateUnit(c *gin.Context) {
	var req createUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.unitSvc.Create(c.Request.Context(), unitdomain.CreateUnitRequest{
		ProductID:  strings.TrimSpace(req.ProductID),
		Serial:     strings.TrimSpace(req.Serial),
		ActualCost: req.ActualCost,
		Status:     strings.TrimSpace(req.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListUnits(c *gin.Context) {
	var query struct {
		pagination.Pagination
		ProductID string `form:"product_id"`
		Status    string `form:"status"`
		InvoiceID string `form:"invoice_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.unitSvc.List(c.Request.Context(), unitdomain.ListUnitRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		ProductID: strings.TrimSpace(query.ProductID),
		Status:    strings.TrimSpace(query.Status),
		InvoiceID: strings.TrimSpace(query.InvoiceID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUnitByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	// Serial lookups share the endpoint: BK-00042 is not a snowflake id.
	if strings.Contains(id, "-") {
		resp, err := s.unitSvc.GetBySerial(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": resp})
		return
	}

	resp, err := s.unitSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReceiveUnit(c *gin.Context) {
	resp, err := s.unitSvc.MarkReceived(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setUnitStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) SetUnitStatus(c *gin.Context) {
	var req setUnitStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.unitSvc.SetStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RetryUnitSync(c *gin.Context) {
	resp, err := s.unitSvc.RetrySync(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteUnit(c *gin.Context) {
	if err := s.unitSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

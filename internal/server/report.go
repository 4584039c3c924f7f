package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	reportdomain "github.com/spokeworks/chainline/internal/report/domain"
)

func (s *Server) InventoryReport(c *gin.Context) {
	resp, err := s.reportSvc.InventorySummary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProfitReport(c *gin.Context) {
	var query struct {
		From string `form:"from"`
		To   string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalDate(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalDate(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}
	if to != nil {
		// Inclusive end date.
		end := to.Add(24 * time.Hour)
		to = &end
	}

	resp, err := s.reportSvc.Profit(c.Request.Context(), reportdomain.ProfitRequest{
		From: from,
		To:   to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReconcileReport(c *gin.Context) {
	resp, err := s.reportSvc.Reconcile(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SyncCatalog(c *gin.Context) {
	if !s.syncerConfigured() {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	created, linked, err := s.syncer.SyncCatalog(c.Request.Context(), s.genID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"products_created": created,
		"products_linked":  linked,
	}})
}

func (s *Server) syncerConfigured() bool {
	return s.syncer != nil && strings.TrimSpace(s.cfg.Shopify.StoreDomain) != ""
}

package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/spokeworks/chainline/internal/invoice/domain"
	"github.com/spokeworks/chainline/pkg/db/pagination"
	"github.com/spokeworks/chainline/pkg/money"
)

type createInvoiceRequest struct {
	Reference    string                     `json:"reference"`
	Supplier     string                     `json:"supplier"`
	InvoiceDate  string                     `json:"invoice_date"`
	ShippingCost money.Cents                `json:"shipping_cost"`
	Discount     money.Cents                `json:"discount"`
	CardFees     money.Cents                `json:"card_fees"`
	Tax          money.Cents                `json:"tax"`
	OtherFees    money.Cents                `json:"other_fees"`
	Lines        []invoicedomain.ParsedLine `json:"lines"`
	Overwrite    bool                       `json:"overwrite"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req createInvoiceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoiceDate, err := parseOptionalDate(req.InvoiceDate)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_date", "invalid_invoice_date", "invalid invoice_date"))
		return
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		Reference:    strings.TrimSpace(req.Reference),
		Supplier:     strings.TrimSpace(req.Supplier),
		InvoiceDate:  invoiceDate,
		ShippingCost: req.ShippingCost,
		Discount:     req.Discount,
		CardFees:     req.CardFees,
		Tax:          req.Tax,
		OtherFees:    req.OtherFees,
		Lines:        req.Lines,
		RawPayload:   raw,
		Overwrite:    req.Overwrite,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status   string `form:"status"`
		Supplier string `form:"supplier"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Status:    strings.TrimSpace(query.Status),
		Supplier:  strings.TrimSpace(query.Supplier),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	resp, err := s.invoiceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateChargesRequest struct {
	ShippingCost *money.Cents `json:"shipping_cost"`
	Discount     *money.Cents `json:"discount"`
	CardFees     *money.Cents `json:"card_fees"`
	Tax          *money.Cents `json:"tax"`
	OtherFees    *money.Cents `json:"other_fees"`
}

func (s *Server) UpdateInvoiceCharges(c *gin.Context) {
	var req updateChargesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.UpdateCharges(c.Request.Context(), invoicedomain.UpdateChargesRequest{
		ID:           strings.TrimSpace(c.Param("id")),
		ShippingCost: req.ShippingCost,
		Discount:     req.Discount,
		CardFees:     req.CardFees,
		Tax:          req.Tax,
		OtherFees:    req.OtherFees,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type matchLineRequest struct {
	ProductID string `json:"product_id"`
}

func (s *Server) MatchInvoiceLine(c *gin.Context) {
	var req matchLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.MatchLine(c.Request.Context(), invoicedomain.MatchLineRequest{
		InvoiceID:  strings.TrimSpace(c.Param("id")),
		LineItemID: strings.TrimSpace(c.Param("lineId")),
		ProductID:  strings.TrimSpace(req.ProductID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PreviewInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.Preview(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type approveInvoiceRequest struct {
	ApprovedBy string `json:"approved_by"`
}

func (s *Server) ApproveInvoice(c *gin.Context) {
	var req approveInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.Approve(c.Request.Context(), invoicedomain.ApproveRequest{
		ID:         strings.TrimSpace(c.Param("id")),
		ApprovedBy: strings.TrimSpace(req.ApprovedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.Reject(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseOptionalDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts, nil
		}
	}
	return nil, ErrInvalidRequest
}

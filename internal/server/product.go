package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	"github.com/spokeworks/chainline/pkg/db/pagination"
	"github.com/spokeworks/chainline/pkg/money"
)

type createProductRequest struct {
	Brand     string      `json:"brand"`
	Model     string      `json:"model"`
	SKU       string      `json:"sku"`
	Category  string      `json:"category"`
	Color     string      `json:"color"`
	Size      string      `json:"size"`
	ListPrice money.Cents `json:"list_price"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.Create(c.Request.Context(), productdomain.CreateProductRequest{
		Brand:     strings.TrimSpace(req.Brand),
		Model:     strings.TrimSpace(req.Model),
		SKU:       strings.TrimSpace(req.SKU),
		Category:  strings.TrimSpace(req.Category),
		Color:     strings.TrimSpace(req.Color),
		Size:      strings.TrimSpace(req.Size),
		ListPrice: req.ListPrice,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProducts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Brand    string `form:"brand"`
		Category string `form:"category"`
		SKU      string `form:"sku"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.List(c.Request.Context(), productdomain.ListProductRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Brand:     strings.TrimSpace(query.Brand),
		Category:  strings.TrimSpace(query.Category),
		SKU:       strings.TrimSpace(query.SKU),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProductByID(c *gin.Context) {
	resp, err := s.productSvc.GetByID(c.Request.Context(), productdomain.GetProductRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateProductRequest struct {
	Category  *string      `json:"category"`
	Color     *string      `json:"color"`
	Size      *string      `json:"size"`
	ListPrice *money.Cents `json:"list_price"`
}

func (s *Server) UpdateProduct(c *gin.Context) {
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.Update(c.Request.Context(), productdomain.UpdateProductRequest{
		ID:        strings.TrimSpace(c.Param("id")),
		Category:  req.Category,
		Color:     req.Color,
		Size:      req.Size,
		ListPrice: req.ListPrice,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteProduct(c *gin.Context) {
	err := s.productSvc.Delete(c.Request.Context(), productdomain.DeleteProductRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

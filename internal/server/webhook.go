package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	webhookdomain "github.com/spokeworks/chainline/internal/webhook/domain"
)

// HandleShopifyOrderCreate authenticates the delivery, then always
// acknowledges it. Shopify retries anything that is not a 2xx, so a
// processing problem must never surface as a failed delivery; it is
// recorded on the webhook log instead.
func (s *Server) HandleShopifyOrderCreate(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	signature := c.GetHeader("X-Shopify-Hmac-SHA256")
	if !webhookdomain.VerifySignature(s.cfg.Shopify.WebhookSecret, body, signature) {
		AbortWithError(c, webhookdomain.ErrInvalidSignature)
		return
	}

	webhookID := strings.TrimSpace(c.GetHeader("X-Shopify-Webhook-Id"))
	if webhookID == "" {
		// Old deliveries can miss the header; fall back to the event id.
		webhookID = strings.TrimSpace(c.GetHeader("X-Shopify-Event-Id"))
	}
	if webhookID == "" {
		// No delivery id means no dedup key. Still process the order,
		// logged under a generated id.
		webhookID = uuid.NewString()
	}

	resp, err := s.webhookSvc.HandleOrderCreate(c.Request.Context(), webhookID, body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"leadqual_backend/platform/config"
	"leadqual_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// rawBodyKey is the gin context key where the verified raw body is stashed.
const rawBodyKey = "webhookRawBody"

// SignatureMiddleware verifies the X-Hub-Signature-256 header against the
// raw request body using the app secret. The body is re-installed on the
// request so handlers can bind it normally, and is also stashed in the
// context for handlers that need the exact bytes.
func SignatureMiddleware(cfg config.MetaWebhookConfig, log *logger.Logger) gin.HandlerFunc {
	secret := []byte(cfg.GetMetaAppSecret())

	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(rawBodyKey, body)

		header := c.GetHeader("X-Hub-Signature-256")
		if !VerifySignature(secret, body, header) {
			log.WithContext(c.Request.Context()).Warn("webhook signature rejected",
				"path", c.FullPath(), "has_header", header != "")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Next()
	}
}

// VerifySignature checks an X-Hub-Signature-256 style header ("sha256=<hex>")
// against the HMAC-SHA256 of the body. Comparison is constant time.
func VerifySignature(secret, body []byte, header string) bool {
	provided, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}

// RawBody returns the verified request body stashed by SignatureMiddleware.
func RawBody(c *gin.Context) []byte {
	if v, ok := c.Get(rawBodyKey); ok {
		if body, ok := v.([]byte); ok {
			return body
		}
	}
	return nil
}

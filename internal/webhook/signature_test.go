package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadqual_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type testMetaConfig struct {
	secret string
	token  string
}

func (c testMetaConfig) GetMetaAppSecret() string   { return c.secret }
func (c testMetaConfig) GetMetaVerifyToken() string { return c.token }
func (c testMetaConfig) GetMetaGraphToken() string  { return "" }

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("app-secret")
	body := []byte(`{"object":"page"}`)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid", sign("app-secret", body), true},
		{"wrong secret", sign("other-secret", body), false},
		{"missing prefix", "deadbeef", false},
		{"empty header", "", false},
		{"tampered body", sign("app-secret", []byte(`{"object":"user"}`)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(secret, body, tt.header); got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignatureMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testMetaConfig{secret: "app-secret"}

	engine := gin.New()
	engine.Use(SignatureMiddleware(cfg, logger.New("test")))
	engine.POST("/hook", func(c *gin.Context) {
		// The body must still be readable by the handler.
		if len(RawBody(c)) == 0 {
			t.Error("raw body not stashed")
		}
		c.Status(http.StatusOK)
	})

	body := []byte(`{"object":"page","entry":[]}`)

	t.Run("valid signature passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", sign("app-secret", body))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("invalid signature rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", sign("wrong", body))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

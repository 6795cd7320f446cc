package auth_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundleworks/stockpilot/pkg/api"
	"github.com/bundleworks/stockpilot/pkg/auth"
)

const testSecret = "shpss_test_secret"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookMiddleware_ValidSignaturePassesBodyThrough(t *testing.T) {
	body := []byte(`{"id":1001,"line_items":[]}`)

	var seenBody []byte
	handler := auth.NewWebhookVerifier(testSecret).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", bytes.NewReader(body))
	req.Header.Set(api.HeaderShopifyTopic, "orders/paid")
	req.Header.Set(api.HeaderShopifyHmacSha256, sign(testSecret, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, seenBody, "handler must see the exact authenticated bytes")
}

func TestWebhookMiddleware_InvalidSignatureRejected(t *testing.T) {
	body := []byte(`{"id":1001}`)

	called := false
	handler := auth.NewWebhookVerifier(testSecret).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", bytes.NewReader(body))
	req.Header.Set(api.HeaderShopifyTopic, "orders/paid")
	req.Header.Set(api.HeaderShopifyHmacSha256, sign("wrong-secret", body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestWebhookMiddleware_MissingSignatureRejected(t *testing.T) {
	handler := auth.NewWebhookVerifier(testSecret).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached")
		}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(api.HeaderShopifyTopic, "orders/paid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookMiddleware_ShopRedactBypassesRejection(t *testing.T) {
	called := false
	handler := auth.NewWebhookVerifier(testSecret).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(api.HeaderShopifyTopic, "shop/redact")
	req.Header.Set(api.HeaderShopifyHmacSha256, "bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called, "redaction requests must reach the handler for acknowledgement")
}

func TestVerify(t *testing.T) {
	v := auth.NewWebhookVerifier(testSecret)
	body := []byte(`payload`)

	require.True(t, v.Verify(body, sign(testSecret, body)))
	assert.False(t, v.Verify(body, sign(testSecret, []byte(`other`))))
	assert.False(t, v.Verify(body, "not base64 even"))
	assert.False(t, v.Verify(body, ""))
}

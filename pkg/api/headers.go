package api

// Webhook request headers set by the commerce platform.
const (
	HeaderShopifyTopic      = "X-Shopify-Topic"
	HeaderShopifyHmacSha256 = "X-Shopify-Hmac-Sha256"
	HeaderShopifyShopDomain = "X-Shopify-Shop-Domain"
	HeaderShopifyWebhookID  = "X-Shopify-Webhook-Id"
)

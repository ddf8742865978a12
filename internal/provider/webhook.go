package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultWebhookTimeout = 3 * time.Second
	SignatureHeader       = "X-Reminder-Signature"
	signaturePrefix       = "sha256="
)

// WebhookClient posts event bodies to subscriber-configured endpoints.
type WebhookClient struct {
	client *resty.Client
}

func NewWebhookClient(timeout time.Duration) *WebhookClient {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &WebhookClient{client: client}
}

func NewWebhookClientWithClient(client *resty.Client) (*WebhookClient, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookClient{client: client}, nil
}

// Post delivers body to endpoint. When secret is set the body is signed with
// HMAC-SHA256 and the hex digest is sent in X-Reminder-Signature.
func (w *WebhookClient) Post(ctx context.Context, endpoint string, secret string, body []byte) error {
	if w == nil || w.client == nil {
		return fmt.Errorf("webhook client is not initialized")
	}

	trimmedEndpoint := strings.TrimSpace(endpoint)
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return fmt.Errorf("invalid webhook endpoint: %w", err)
	}

	req := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if secret != "" {
		req.SetHeader(SignatureHeader, Sign(secret, body))
	}

	response, err := req.Post(trimmedEndpoint)
	if err != nil {
		return &ProviderError{
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

// Sign returns the X-Reminder-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/reminder-engine/internal/domain"
)

const defaultGatewayTimeout = 5 * time.Second

// GatewayConfig points a channel adapter at its HTTP gateway.
type GatewayConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type inAppRequest struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

type gatewayResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
}

// Gateway posts channel payloads as JSON to a provider gateway. One Gateway
// serves one channel; it is built once at startup and shared by workers.
type Gateway struct {
	channel  domain.Channel
	client   *resty.Client
	endpoint string
	apiKey   string
	cfgErr   *ConfigurationError
}

var (
	_ EmailSender   = (*Gateway)(nil)
	_ SMSSender     = (*Gateway)(nil)
	_ InAppNotifier = (*Gateway)(nil)
)

// NewGateway never fails on missing settings: the gateway is built in a
// misconfigured state and every send returns a ConfigurationError result.
func NewGateway(channel domain.Channel, cfg GatewayConfig) (*Gateway, error) {
	client := resty.New()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	client.SetTimeout(timeout)

	return NewGatewayWithClient(channel, cfg, client)
}

func NewGatewayWithClient(channel domain.Channel, cfg GatewayConfig, client *resty.Client) (*Gateway, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid channel %q", channel)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	g := &Gateway{
		channel:  channel,
		client:   client,
		endpoint: strings.TrimSpace(cfg.URL),
		apiKey:   strings.TrimSpace(cfg.APIKey),
	}

	switch {
	case g.endpoint == "":
		g.cfgErr = &ConfigurationError{Channel: channel, Missing: "url"}
	case g.apiKey == "":
		g.cfgErr = &ConfigurationError{Channel: channel, Missing: "api key"}
	default:
		if _, err := url.ParseRequestURI(g.endpoint); err != nil {
			return nil, fmt.Errorf("invalid %s gateway url: %w", strings.ToLower(channel.String()), err)
		}
	}

	return g, nil
}

func (g *Gateway) SendEmail(ctx context.Context, to string, subject string, body string) domain.SendResult {
	return g.send(ctx, emailRequest{To: to, Subject: subject, Body: body})
}

func (g *Gateway) SendSMS(ctx context.Context, to string, body string) domain.SendResult {
	return g.send(ctx, smsRequest{To: to, Body: body})
}

func (g *Gateway) NotifyInApp(ctx context.Context, userID string, text string) domain.SendResult {
	return g.send(ctx, inAppRequest{UserID: userID, Text: text})
}

func (g *Gateway) send(ctx context.Context, payload any) domain.SendResult {
	id, err := g.post(ctx, payload)
	if err != nil {
		return domain.SendErr(err.Error())
	}
	return domain.SendOk(id)
}

func (g *Gateway) post(ctx context.Context, payload any) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("gateway is not initialized")
	}
	if g.cfgErr != nil {
		return "", g.cfgErr
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(g.apiKey).
		SetBody(payload).
		Post(g.endpoint)
	if err != nil {
		return "", &ProviderError{
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return "", &ProviderError{
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return providerMessageID(response), nil
	}

	return "", &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

// providerMessageID prefers an id from the JSON body, then request id headers.
func providerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	var body gatewayResponse
	if err := json.Unmarshal(response.Body(), &body); err == nil {
		if id := strings.TrimSpace(body.ID); id != "" {
			return id
		}
		if id := strings.TrimSpace(body.MessageID); id != "" {
			return id
		}
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}

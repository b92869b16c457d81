// Package wati is the outbound WhatsApp gateway client. It only sends; the
// inbound direction is the webhook in internal/handler.
package wati

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saqiah/waterbot/pkg/external"
	"github.com/saqiah/waterbot/pkg/logger"
)

// Sender is what the pipeline depends on.
type Sender interface {
	SendSessionMessage(ctx context.Context, phone, text string) error
}

// Client posts outbound text to the WATI gateway. The message travels
// URL-encoded in the query string of a POST with an empty body. On non-2xx
// the client falls back through a fixed list of endpoint variants before
// reporting failure.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		timeout:    15 * time.Second,
	}
}

// endpointVariants builds the ordered candidate URLs for one send. The
// primary sendSessionMessage path comes first, then the legacy sendMessage
// form and the api/v1-prefixed variants some tenants are still on.
func (c *Client) endpointVariants(phone, text string) []string {
	encoded := url.QueryEscape(text)
	return []string{
		fmt.Sprintf("%s/api/v1/sendSessionMessage/%s?messageText=%s", c.baseURL, phone, encoded),
		fmt.Sprintf("%s/sendSessionMessage/%s?messageText=%s", c.baseURL, phone, encoded),
		fmt.Sprintf("%s/api/v1/sendMessage?whatsappNumber=%s&messageText=%s", c.baseURL, phone, encoded),
		fmt.Sprintf("%s/sendMessage?whatsappNumber=%s&messageText=%s", c.baseURL, phone, encoded),
	}
}

// SendSessionMessage delivers one text message. Any 2xx counts as success.
// Errors are returned, never panicked, so a failed send surfaces as a
// failed journey rather than a crashed pipeline.
func (c *Client) SendSessionMessage(ctx context.Context, phone, text string) error {
	variants := c.endpointVariants(phone, text)

	return external.CallWithRetry(ctx, external.Policy{
		Name:       "wati.send",
		Timeout:    c.timeout,
		MaxRetries: 2,
		BaseDelay:  time.Second,
		Retryable:  external.RetryableStatus,
	}, func(ctx context.Context) error {
		var lastErr error
		for i, endpoint := range variants {
			err := c.post(ctx, endpoint)
			if err == nil {
				if i > 0 {
					logger.Base().Info("gateway send succeeded on fallback endpoint",
						zap.Int("variant", i), zap.String("phone", phone))
				}
				return nil
			}
			lastErr = err
			logger.Base().Debug("gateway endpoint variant failed",
				zap.Int("variant", i), zap.Error(err))
		}
		return fmt.Errorf("all gateway endpoints failed: %w", lastErr)
	})
}

func (c *Client) post(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &external.StatusError{Status: resp.StatusCode, Body: string(body)}
}

// Package upstream consumes the catalog HTTP API the sync worker mirrors.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/saqiah/waterbot/pkg/external"
	"github.com/saqiah/waterbot/pkg/logger"
)

// City is a city row as returned upstream.
type City struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Brand is a brand row as returned upstream.
type Brand struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image"`
}

// Product is a product row as returned upstream.
type Product struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Packing       string  `json:"packing"`
	ContractPrice float64 `json:"contract_price"`
}

type envelope struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// Client fetches catalog resources. Generic GETs retry on 429/5xx only;
// product GETs also retry 400 and 404 because the upstream intermittently
// returns those for valid brand ids.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an upstream catalog client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 35 * time.Second},
	}
}

// Langs are the two passes the sync worker merges by id.
var Langs = []string{"ar", "en"}

// GetCities fetches all cities in one language.
func (c *Client) GetCities(ctx context.Context, lang string) ([]City, error) {
	var cities []City
	err := c.get(ctx, fmt.Sprintf("%s/get-cities?lang=%s", c.baseURL, lang), "get-cities", external.RetryableStatus, &cities)
	return cities, err
}

// GetBrandsByCity fetches the brands serving one city in one language.
func (c *Client) GetBrandsByCity(ctx context.Context, cityID int, lang string) ([]Brand, error) {
	var brands []Brand
	url := fmt.Sprintf("%s/get-location-brands/%d?lang=%s", c.baseURL, cityID, lang)
	err := c.get(ctx, url, "get-location-brands", external.RetryableStatus, &brands)
	return brands, err
}

// GetBrandProducts fetches one brand's products in one language. 400/404
// are treated as retryable here, unlike every other endpoint.
func (c *Client) GetBrandProducts(ctx context.Context, brandID int, lang string) ([]Product, error) {
	var products []Product
	url := fmt.Sprintf("%s/get-brand-products/%d?lang=%s", c.baseURL, brandID, lang)
	err := c.get(ctx, url, "get-brand-products", productRetryable, &products)
	return products, err
}

func productRetryable(err error) bool {
	if external.RetryableStatus(err) {
		return true
	}
	var se *external.StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusBadRequest || se.Status == http.StatusNotFound
	}
	return false
}

func (c *Client) get(ctx context.Context, url, name string, retryable func(error) bool, out interface{}) error {
	return external.CallWithRetry(ctx, external.Policy{
		Name:       "upstream." + name,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Retryable:  retryable,
	}, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &external.StatusError{Status: resp.StatusCode, Body: truncate(body, 512)}
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decode %s response: %w", name, err)
		}
		if env.Key != "success" {
			// upstream data error: log and carry on with whatever parsed
			logger.Base().Warn("upstream returned non-success key",
				zap.String("endpoint", name), zap.String("key", env.Key))
		}
		if len(env.Data) == 0 {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	})
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

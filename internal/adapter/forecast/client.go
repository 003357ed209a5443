// Package forecast calls the earthquake prediction API and caches its
// responses.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Prediction is one forecast entry returned by the prediction API.
type Prediction struct {
	ID          string    `json:"id"`
	Year        int       `json:"year"`
	Region      string    `json:"region"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Magnitude   float64   `json:"magnitude"`
	Probability float64   `json:"probability"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Service fetches and generates yearly forecasts.
type Service interface {
	Predictions(ctx context.Context, year int) ([]Prediction, error)
	Generate(ctx context.Context, year int) ([]Prediction, error)
}

// Client implements Service against the prediction API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a prediction API client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Predictions fetches the stored forecasts for a year.
func (c *Client) Predictions(ctx context.Context, year int) ([]Prediction, error) {
	params := url.Values{
		"year": {strconv.Itoa(year)},
	}
	u := fmt.Sprintf("%s/api/predictions?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.doRequest(req, "fetch")
}

// Generate asks the API to (re)compute the forecasts for a year and returns
// the fresh set.
func (c *Client) Generate(ctx context.Context, year int) ([]Prediction, error) {
	body, err := json.Marshal(generateRequest{Year: year})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	u := fmt.Sprintf("%s/api/predictions/generate", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(req, "generate")
}

func (c *Client) doRequest(req *http.Request, source string) ([]Prediction, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s predictions: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("prediction API error: status %d: %s", resp.StatusCode, body)
	}

	var apiResp response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return apiResp.Predictions, nil
}

// Prediction API request/response types.

type generateRequest struct {
	Year int `json:"year"`
}

type response struct {
	Predictions []Prediction `json:"predictions"`
}

package promquery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/common/model"
)

const defaultTimeout = 5 * time.Second

// Client is the Metrics Adapter: it executes a single instantaneous
// scalar query against a Prometheus-compatible HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. http://localhost:9090).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type apiResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  model.SamplePair  `json:"value"`
		} `json:"result"`
	} `json:"data"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
}

// QueryScalar executes expr as an instant query and returns its single
// scalar result. A result with no series is treated as 0.0, per
// spec.md §4.B.
func (c *Client) QueryScalar(ctx context.Context, expr string) (float64, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", err, ErrFetchFailed)
	}
	u.Path = "/api/v1/query"
	q := u.Query()
	q.Set("query", expr)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("building query request: %w: %w", err, ErrFetchFailed)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("querying %q: %w: %w", expr, err, ErrFetchFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("query %q returned status %d: %w", expr, resp.StatusCode, ErrFetchFailed)
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding query response: %w: %w", err, ErrFetchFailed)
	}
	if out.Status != "success" {
		return 0, fmt.Errorf("query %q failed: %s (%s): %w", expr, out.Error, out.ErrorType, ErrFetchFailed)
	}
	if len(out.Data.Result) == 0 {
		return 0.0, nil
	}
	return float64(out.Data.Result[0].Value.Value), nil
}

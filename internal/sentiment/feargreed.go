package sentiment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ClientInterface supplies the market-wide Fear & Greed index, 0..100.
type ClientInterface interface {
	GetFearGreedIndex(ctx context.Context) (int, error)
}

// Client fetches the index from alternative.me.
type Client struct {
	client *resty.Client
	logger *zap.Logger
}

var _ ClientInterface = (*Client)(nil)

// fngResponse models the alternative.me /fng payload.
type fngResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
	Metadata struct {
		Error *string `json:"error,omitempty"`
	} `json:"metadata"`
}

// NewClient creates a Fear & Greed index client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		client: resty.New().SetBaseURL(baseURL),
		logger: logger,
	}
}

// GetFearGreedIndex fetches the latest index value. The value is clamped
// to [0,100] by the upstream API contract; out-of-range values are an error.
func (c *Client) GetFearGreedIndex(ctx context.Context) (int, error) {
	var raw fngResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&raw).
		SetQueryParams(map[string]string{"limit": "1", "format": "json"}).
		Get("/fng/")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch fear/greed index: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("fear/greed request failed with status %s", resp.Status())
	}

	result := resp.Result().(*fngResponse)
	if result.Metadata.Error != nil {
		return 0, fmt.Errorf("fear/greed API error: %s", *result.Metadata.Error)
	}
	if len(result.Data) == 0 {
		return 0, fmt.Errorf("fear/greed API returned no data")
	}

	value, err := strconv.Atoi(result.Data[0].Value)
	if err != nil {
		return 0, fmt.Errorf("invalid fear/greed value %q: %w", result.Data[0].Value, err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("fear/greed value %d out of range", value)
	}

	c.logger.Debug("Fetched fear/greed index",
		zap.Int("value", value),
		zap.String("classification", result.Data[0].ValueClassification))
	return value, nil
}

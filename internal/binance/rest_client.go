package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL         = "https://api.binance.com/api/v3"
	testnetBaseURL  = "https://testnet.binance.vision/api/v3"
	recvWindow      = "5000" // How long a request is valid in milliseconds
	OrderTypeMarket = "MARKET"
)

// RestClientInterface is the market data and execution gateway consumed by
// the trading engine. Prices cross this boundary as decimals; the upstream
// JSON string values are parsed here and floats never reach the ledger.
type RestClientInterface interface {
	GetServerTime() (int64, error)
	GetPrice(symbol string) (decimal.Decimal, error)
	GetAllTickerPrices() (map[string]decimal.Decimal, error)
	Get24hStats(symbol string) (models.Stats24h, error)
	GetKlines(symbol, interval string, limit int) ([]models.Candle, error)
	CreateOrder(symbol, side string, quantity decimal.Decimal) (*CreateOrderResponse, error)
}

// RestClient is a client for the Binance REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	var url string
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	} else {
		url = baseURL
		logger.Info("Using Binance Production API")
	}

	client := resty.New().SetBaseURL(url)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime() (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetPrice fetches the latest price for one symbol.
func (c *RestClient) GetPrice(symbol string) (decimal.Decimal, error) {
	var ticker TickerPrice

	req := c.client.R().
		SetResult(&ticker).
		SetQueryParam("symbol", symbol).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/ticker/price", req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}

	result := resp.Result().(*TickerPrice)
	price, err := decimal.NewFromString(result.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price %q for %s: %w", result.Price, symbol, err)
	}
	return price, nil
}

// GetAllTickerPrices fetches the latest price for all symbols.
func (c *RestClient) GetAllTickerPrices() (map[string]decimal.Decimal, error) {
	var prices []*TickerPrice

	req := c.client.R().
		SetResult(&prices).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/ticker/price", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get all ticker prices: %w", err)
	}

	result := resp.Result().(*[]*TickerPrice)
	priceMap := make(map[string]decimal.Decimal, len(*result))
	for _, p := range *result {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			c.logger.Warn("Skipping unparseable ticker price",
				zap.String("symbol", p.Symbol), zap.String("price", p.Price))
			continue
		}
		priceMap[p.Symbol] = price
	}

	return priceMap, nil
}

// stats24hResponse is the subset of /ticker/24hr we consume.
type stats24hResponse struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
}

// Get24hStats fetches the rolling 24-hour statistics for a symbol.
func (c *RestClient) Get24hStats(symbol string) (models.Stats24h, error) {
	var raw stats24hResponse

	req := c.client.R().
		SetResult(&raw).
		SetQueryParam("symbol", symbol).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/ticker/24hr", req)
	if err != nil {
		return models.Stats24h{}, fmt.Errorf("failed to get 24h stats for %s: %w", symbol, err)
	}

	result := resp.Result().(*stats24hResponse)
	changePct, err := decimal.NewFromString(result.PriceChangePercent)
	if err != nil {
		return models.Stats24h{}, fmt.Errorf("failed to parse 24h change %q for %s: %w", result.PriceChangePercent, symbol, err)
	}
	volume, err := decimal.NewFromString(result.Volume)
	if err != nil {
		return models.Stats24h{}, fmt.Errorf("failed to parse 24h volume %q for %s: %w", result.Volume, symbol, err)
	}
	return models.Stats24h{ChangePct: changePct, Volume: volume}, nil
}

// GetKlines fetches up to limit candles for a symbol at the given interval,
// oldest first. Binance returns each kline as a mixed-type JSON array:
// [openTime, open, high, low, close, volume, closeTime, ...].
func (c *RestClient) GetKlines(symbol, interval string, limit int) ([]models.Candle, error) {
	var raw [][]interface{}

	req := c.client.R().
		SetResult(&raw).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", symbol, err)
	}

	result := resp.Result().(*[][]interface{})
	candles := make([]models.Candle, 0, len(*result))
	for _, row := range *result {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline for %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKline(row []interface{}) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}
	openTimeMs, ok := row[0].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("kline open time %v is not a number", row[0])
	}

	fields := make([]decimal.Decimal, 5)
	for i := 1; i <= 5; i++ {
		s, ok := row[i].(string)
		if !ok {
			return models.Candle{}, fmt.Errorf("kline field %d (%v) is not a string", i, row[i])
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return models.Candle{}, fmt.Errorf("kline field %d: %w", i, err)
		}
		fields[i-1] = v
	}

	return models.Candle{
		OpenTime: time.UnixMilli(int64(openTimeMs)),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

// CreateOrderResponse represents the response from creating a new order.
type CreateOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	OrigQuantity        string `json:"origQty"`
	ExecutedQuantity    string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
}

// CreateOrder places a new MARKET order on Binance. Only used when the
// engine runs with dry_run disabled; paper trading never reaches here.
func (c *RestClient) CreateOrder(symbol, side string, quantity decimal.Decimal) (*CreateOrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", OrderTypeMarket)
	params.Set("quantity", quantity.String())
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)

	queryString := params.Encode()
	signature := c.sign(queryString)
	params.Set("signature", signature)

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(params.Encode()).
		SetResult(&CreateOrderResponse{})

	ctx := context.Background()

	resp, err := c.doRequest(ctx, "POST", "/order", req)
	if err != nil {
		c.logger.Error("Failed to create order after multiple attempts",
			zap.Error(err),
			zap.String("symbol", symbol),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := resp.Result().(*CreateOrderResponse)
	c.logger.Info("Successfully created order", zap.Any("order", result))
	return result, nil
}

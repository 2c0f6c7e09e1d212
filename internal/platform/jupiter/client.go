// Package jupiter is the quote and swap-building client for the Jupiter
// aggregator API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Config configures a Client.
type Config struct {
	BaseURL                   string
	APIKey                    string
	RequestsPerSecond         float64
	Burst                     int
	Timeout                   time.Duration
	DynamicComputeUnitLimit   bool
	PrioritizationFeeLamports int64 // 0 lets the API choose
}

// Client prices routes and builds unsigned swap transactions. All requests
// share one client-side rate limiter.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	dynamicCU  bool
	priority   int64
	shared     domain.RateLimiter
}

// WithSharedLimiter adds a limiter shared across processes, e.g. one backed
// by Redis, waited on after the local one.
func (c *Client) WithSharedLimiter(l domain.RateLimiter) *Client {
	c.shared = l
	return c
}

// NewClient creates a Jupiter client.
//
// cfg.BaseURL is the API root, e.g. "https://quote-api.jup.ag/v6".
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		dynamicCU:  cfg.DynamicComputeUnitLimit,
		priority:   cfg.PrioritizationFeeLamports,
	}
}

// Quote returns the best route for req.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if err := req.Validate(); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote: %w", err)
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.SwapModeExactIn
	}

	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatInt(req.Amount, 10))
	params.Set("swapMode", string(mode))
	if req.SlippageBps > 0 {
		params.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	}

	body, err := c.do(ctx, http.MethodGet, "/quote?"+params.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote %s -> %s: %w", req.InputMint, req.OutputMint, err)
	}
	q, err := parseQuote(body)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote %s -> %s: %w", req.InputMint, req.OutputMint, err)
	}
	return q, nil
}

// BuildSwap asks the API to build the transaction for a quote previously
// returned by Quote. The transaction is unsigned.
func (c *Client) BuildSwap(ctx context.Context, q domain.Quote, owner string) (domain.SwapTransaction, error) {
	if len(q.Raw) == 0 {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter: build swap: quote has no raw payload")
	}
	reqBody := swapRequest{
		QuoteResponse:           q.Raw,
		UserPublicKey:           owner,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: c.dynamicCU,
		PrioritizationFee:       prioritizationFee(c.priority),
	}

	body, err := c.do(ctx, http.MethodPost, "/swap", reqBody)
	if err != nil {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter: build swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter: decode swap: %w", err)
	}
	if resp.SwapTransaction == "" {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter: build swap: %w: empty transaction", domain.ErrSwapFailed)
	}
	payload, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter: decode swap transaction: %w", err)
	}
	return domain.SwapTransaction{
		Payload:              payload,
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

// parseQuote reads the fields the engine needs and keeps the full payload
// for the swap request.
func parseQuote(body []byte) (domain.Quote, error) {
	if !gjson.ValidBytes(body) {
		return domain.Quote{}, fmt.Errorf("decode quote: invalid json")
	}
	res := gjson.ParseBytes(body)

	in, err := amountField(res, "inAmount")
	if err != nil {
		return domain.Quote{}, err
	}
	out, err := amountField(res, "outAmount")
	if err != nil {
		return domain.Quote{}, err
	}
	minOut, err := amountField(res, "otherAmountThreshold")
	if err != nil {
		return domain.Quote{}, err
	}

	var labels []string
	for _, l := range res.Get("routePlan.#.swapInfo.label").Array() {
		if s := l.String(); s != "" {
			labels = append(labels, s)
		}
	}
	if len(labels) == 0 && !res.Get("routePlan").Exists() {
		return domain.Quote{}, domain.ErrNoRoute
	}

	return domain.Quote{
		InputMint:      res.Get("inputMint").String(),
		OutputMint:     res.Get("outputMint").String(),
		InAmount:       in,
		OutAmount:      out,
		MinOutAmount:   minOut,
		Mode:           domain.SwapMode(res.Get("swapMode").String()),
		SlippageBps:    int(res.Get("slippageBps").Int()),
		PriceImpactPct: res.Get("priceImpactPct").Float(),
		RouteLabels:    labels,
		Raw:            append(json.RawMessage(nil), body...),
	}, nil
}

// amountField parses a base-unit amount that the API encodes as a decimal
// string.
func amountField(res gjson.Result, name string) (int64, error) {
	v := res.Get(name)
	if !v.Exists() {
		return 0, fmt.Errorf("decode quote: missing %s", name)
	}
	n, err := strconv.ParseInt(v.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode quote: %s %q: %w", name, v.String(), domain.ErrAmountOverflow)
	}
	return n, nil
}

func prioritizationFee(lamports int64) any {
	if lamports <= 0 {
		return "auto"
	}
	return lamports
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	if c.shared != nil {
		if err := c.shared.Wait(ctx, "jupiter"); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, data); err != nil {
		return nil, err
	}
	return data, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = string(body)
	}
	switch {
	case gjson.GetBytes(body, "errorCode").String() == "COULD_NOT_FIND_ANY_ROUTE":
		return fmt.Errorf("%w: %s", domain.ErrNoRoute, msg)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Codes the server attaches to refusals that are not final.
const (
	codeRateLimited = "rate_limited"
	codeInFlight    = "in_flight"
)

// APIError is a non-2xx answer from the server. Anything else returned by
// the client is a transport failure.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the same request may succeed later without any
// change on the caller's side.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Code == codeRateLimited || e.Code == codeInFlight
}

// IsAPIError reports whether err came back from the server rather than from
// the network.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Refused reports whether the server gave a final answer to err's request,
// such as insufficient funds or an active cooldown.
func Refused(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Retryable()
}

// RetryAfter returns how long to wait before resending a request that failed
// with a retryable server error.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Retryable() {
		return 0, false
	}
	if apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return time.Second, true
}

type Client struct {
	BaseURL string
	Token   string
	UserID  string
	HTTP    *http.Client
}

func NewClient(baseURL string, s Session) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   s.APIToken,
		UserID:  s.UserID,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Balance(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/balance", nil, "")
}

func (c *Client) Portfolio(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/portfolio", nil, "")
}

func (c *Client) Inventory(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/inventory", nil, "")
}

func (c *Client) Achievements(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/achievements", nil, "")
}

func (c *Client) Cooldowns(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/cooldowns", nil, "")
}

func (c *Client) Shop(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/shop", nil, "")
}

func (c *Client) Jobs(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/jobs", nil, "")
}

func (c *Client) Leaderboard(ctx context.Context, limit int) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/leaderboard?limit="+strconv.Itoa(limit), nil, "")
}

func (c *Client) PendingTrades(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/trades/pending", nil, "")
}

// Call is a state-changing request, kept as data so it can be sent now or
// queued for replay.
type Call struct {
	Method string
	Path   string
	Body   map[string]any
}

func EarnCall(amountMicros int64) Call {
	return Call{Method: http.MethodPost, Path: "/v1/earn", Body: map[string]any{"amount_micros": amountMicros}}
}

func BuyCall(item string, qty int64) Call {
	return Call{Method: http.MethodPost, Path: "/v1/buy", Body: map[string]any{"item": item, "quantity": qty}}
}

func DailyCall() Call {
	return Call{Method: http.MethodPost, Path: "/v1/daily"}
}

func WorkCall(job string) Call {
	return Call{Method: http.MethodPost, Path: "/v1/jobs/" + url.PathEscape(job) + "/work"}
}

func CollectCall() Call {
	return Call{Method: http.MethodPost, Path: "/v1/collect"}
}

func InvestCall(amountMicros int64) Call {
	return Call{Method: http.MethodPost, Path: "/v1/invest", Body: map[string]any{"amount_micros": amountMicros}}
}

func PlayCall(game string) Call {
	return Call{Method: http.MethodPost, Path: "/v1/games/" + url.PathEscape(game)}
}

func ProposeTradeCall(target, item string, qty int64) Call {
	return Call{Method: http.MethodPost, Path: "/v1/trades", Body: map[string]any{
		"target":   target,
		"item":     item,
		"quantity": qty,
	}}
}

func AcceptTradeCall() Call {
	return Call{Method: http.MethodPost, Path: "/v1/trades/accept"}
}

func CancelTradeCall() Call {
	return Call{Method: http.MethodDelete, Path: "/v1/trades"}
}

// Send issues call under the given idempotency key.
func (c *Client) Send(ctx context.Context, call Call, idem string) (map[string]any, error) {
	return c.Do(ctx, call.Method, call.Path, call.Body, idem)
}

func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.UserID != "" {
		req.Header.Set("X-User-ID", c.UserID)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := decodeAPIError(raw)
		apiErr.Status = resp.StatusCode
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(raw []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return &APIError{Code: payload.Code, Message: payload.Error}
	}
	return &APIError{Message: strings.TrimSpace(string(raw))}
}

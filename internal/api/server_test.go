package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"coinbot/internal/config"
	"coinbot/internal/economy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg config.BotConfig) (*httptest.Server, *economy.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := economy.NewEngine(economy.Options{Seed: 7, Logger: logger})
	require.NoError(t, err)
	if cfg.APIRatePerSec == 0 {
		cfg.APIRatePerSec = 1000
	}
	if cfg.APIRateBurst == 0 {
		cfg.APIRateBurst = 1000
	}
	srv := httptest.NewServer(New(cfg, logger, engine).Handler())
	t.Cleanup(srv.Close)
	return srv, engine
}

func do(t *testing.T, srv *httptest.Server, method, path, user string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, config.BotConfig{})
	status, body := do(t, srv, http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["ok"])
}

func TestUserHeaderRequired(t *testing.T) {
	srv, _ := newTestServer(t, config.BotConfig{})
	status, body := do(t, srv, http.MethodGet, "/v1/balance", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Contains(t, body["error"], UserHeader)
}

func TestBearerTokenEnforced(t *testing.T) {
	srv, _ := newTestServer(t, config.BotConfig{APIToken: "s3cret"})

	status, _ := do(t, srv, http.MethodGet, "/v1/shop", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, srv, http.MethodGet, "/v1/shop", "", nil, map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := do(t, srv, http.MethodGet, "/v1/shop", "", nil, map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["items"], 3)
}

func TestEarnBuyAndInventory(t *testing.T) {
	srv, engine := newTestServer(t, config.BotConfig{})

	status, body := do(t, srv, http.MethodPost, "/v1/earn", "alice", map[string]any{"amount_micros": 50 * economy.MicrosPerCoin}, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 50*economy.MicrosPerCoin, body["balance_micros"])

	status, body = do(t, srv, http.MethodPost, "/v1/buy", "alice", map[string]any{"item": "Apple", "quantity": 2}, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "apple", body["item"])
	require.EqualValues(t, 30*economy.MicrosPerCoin, body["balance_micros"])

	status, body = do(t, srv, http.MethodGet, "/v1/inventory", "alice", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]any{"apple": float64(2)}, body["inventory"])
	require.Equal(t, map[string]int64{"apple": 2}, engine.Inventory("alice"))
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	srv, _ := newTestServer(t, config.BotConfig{})

	status, _ := do(t, srv, http.MethodPost, "/v1/buy", "bob", map[string]any{"item": "apple", "quantity": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/buy", "bob", map[string]any{"item": "durian", "quantity": 1}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/earn", "bob", map[string]any{"amount_micros": -1}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/trades/accept", "bob", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/games/roulette", "bob", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/earn", "bob", map[string]any{"amount_micros": 1, "extra": true}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEarnOverflowIsBadRequest(t *testing.T) {
	srv, engine := newTestServer(t, config.BotConfig{})
	_, err := engine.Earn("bob", math.MaxInt64)
	require.NoError(t, err)

	headers := map[string]string{"Idempotency-Key": "overflow-1"}
	status, body := do(t, srv, http.MethodPost, "/v1/earn", "bob", map[string]any{"amount_micros": 1}, headers)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid amount")

	status, _ = do(t, srv, http.MethodPost, "/v1/earn", "bob", map[string]any{"amount_micros": 1}, headers)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, int64(math.MaxInt64), engine.Balance("bob"))
}

func TestDailyCooldownReturnsRetryAfter(t *testing.T) {
	srv, _ := newTestServer(t, config.BotConfig{})

	status, body := do(t, srv, http.MethodPost, "/v1/daily", "carol", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 100*economy.MicrosPerCoin, body["amount_micros"])

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/daily", nil)
	require.NoError(t, err)
	req.Header.Set(UserHeader, "carol")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	status, body = do(t, srv, http.MethodGet, "/v1/cooldowns", "carol", nil, nil)
	require.Equal(t, http.StatusOK, status)
	daily := body["daily"].(map[string]any)
	require.Equal(t, false, daily["eligible"])
	work := body["work"].(map[string]any)
	require.Equal(t, true, work["eligible"])
}

func TestWorkAndCollectShareCooldown(t *testing.T) {
	srv, _ := newTestServer(t, config.BotConfig{})

	status, body := do(t, srv, http.MethodPost, "/v1/jobs/chef/work", "dave", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "job:chef", body["source"])

	status, _ = do(t, srv, http.MethodPost, "/v1/collect", "dave", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/jobs/astronaut/work", "erin", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestTradeLifecycle(t *testing.T) {
	srv, engine := newTestServer(t, config.BotConfig{})
	require.NoError(t, engine.Ledger().AddItem("alice", "apple", 3))

	status, _ := do(t, srv, http.MethodPost, "/v1/trades", "alice", map[string]any{"target": "bob", "item": "apple", "quantity": 2}, nil)
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, srv, http.MethodGet, "/v1/trades/pending", "bob", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["incoming"], 1)

	status, body = do(t, srv, http.MethodPost, "/v1/trades/accept", "bob", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", body["initiator"])

	require.Equal(t, map[string]int64{"apple": 1}, engine.Inventory("alice"))
	require.Equal(t, map[string]int64{"apple": 2}, engine.Inventory("bob"))

	status, _ = do(t, srv, http.MethodDelete, "/v1/trades", "alice", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestIdempotencyKeyReplaysResponse(t *testing.T) {
	srv, engine := newTestServer(t, config.BotConfig{})
	headers := map[string]string{idempotencyHeader: "k-1"}
	payload := map[string]any{"amount_micros": 5 * economy.MicrosPerCoin}

	status, first := do(t, srv, http.MethodPost, "/v1/earn", "frank", payload, headers)
	require.Equal(t, http.StatusOK, status)
	status, second := do(t, srv, http.MethodPost, "/v1/earn", "frank", payload, headers)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, first, second)
	require.Equal(t, 5*economy.MicrosPerCoin, engine.Balance("frank"))

	// Keys are scoped per user.
	status, _ = do(t, srv, http.MethodPost, "/v1/earn", "grace", payload, headers)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 5*economy.MicrosPerCoin, engine.Balance("grace"))
}

func TestRateLimitPerUser(t *testing.T) {
	srv, _ := newTestServer(t, config.BotConfig{APIRatePerSec: 0.001, APIRateBurst: 2})

	for i := 0; i < 2; i++ {
		status, _ := do(t, srv, http.MethodGet, "/v1/balance", "heidi", nil, nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, body := do(t, srv, http.MethodGet, "/v1/balance", "heidi", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, CodeRateLimited, body["code"])

	status, _ = do(t, srv, http.MethodGet, "/v1/balance", "ivan", nil, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestLeaderboardLimit(t *testing.T) {
	srv, engine := newTestServer(t, config.BotConfig{})
	_, err := engine.Earn("a", 3*economy.MicrosPerCoin)
	require.NoError(t, err)
	_, err = engine.Earn("b", 5*economy.MicrosPerCoin)
	require.NoError(t, err)

	status, body := do(t, srv, http.MethodGet, "/v1/leaderboard?limit=1", "", nil, nil)
	require.Equal(t, http.StatusOK, status)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	require.Equal(t, "b", rows[0].(map[string]any)["user_id"])

	status, _ = do(t, srv, http.MethodGet, "/v1/leaderboard?limit=0", "", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken(""))
}

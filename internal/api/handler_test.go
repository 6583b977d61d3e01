package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cardshield/fraud-api/internal/analysis"
	"cardshield/fraud-api/internal/api"
	"cardshield/fraud-api/internal/metrics"
	"cardshield/fraud-api/internal/scoring"
	"cardshield/fraud-api/internal/store"
)

// ─── Test server setup ────────────────────────────────────────────────────────

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := store.NewMemory(0)
	m := metrics.New("test")
	svc := analysis.New(scoring.New(fixedSource(0.5)), s, zap.NewNop(), analysis.WithMetrics(m))
	h := api.NewHandler(svc, s, m, zap.NewNop(), api.DefaultLimits, "test")
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err, "POST %s", path)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err, "GET %s", path)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	env := decodeEnvelope(t, resp)
	d, ok := env["data"].(map[string]any)
	require.True(t, ok, "response has no object 'data' key: %v", env)
	return d
}

func decodeList(t *testing.T, resp *http.Response) []any {
	t.Helper()
	env := decodeEnvelope(t, resp)
	d, ok := env["data"].([]any)
	require.True(t, ok, "response has no list 'data' key: %v", env)
	return d
}

func decodeError(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	env := decodeEnvelope(t, resp)
	e, ok := env["error"].(map[string]any)
	require.True(t, ok, "response has no 'error' key: %v", env)
	return e
}

func validTxPayload(id string) map[string]any {
	return map[string]any{
		"transaction_id": id,
		"card_number":    "4111 1111 1111 1111",
		"amount":         75.5,
		"merchant":       "walmart",
		"location":       "local",
		"hour":           13,
		"type":           "purchase",
	}
}

func fraudTxPayload(id string) map[string]any {
	return map[string]any{
		"transaction_id": id,
		"amount":         1500,
		"merchant":       "unknown",
		"location":       "international",
		"time":           "23:40",
		"type":           "withdrawal",
	}
}

// ─── Health / metrics ─────────────────────────────────────────────────────────

func TestHealth_Returns200(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decodeData(t, resp)["status"])
}

func TestMetrics_Exposed(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, "/api/v1/transactions", validTxPayload("m-1"))

	resp := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_transactions_scored_total{source="http",verdict="legitimate"} 1`)
}

// ─── POST /api/v1/transactions ────────────────────────────────────────────────

func TestAnalyze_ValidRequest_Returns201(t *testing.T) {
	srv := newTestServer(t)
	resp := post(t, srv, "/api/v1/transactions", validTxPayload("tx-api-001"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	d := decodeData(t, resp)
	tx := d["transaction"].(map[string]any)
	a := d["analysis"].(map[string]any)

	assert.Equal(t, "tx-api-001", tx["transaction_id"])
	assert.Equal(t, "**** **** **** 1111", tx["card_number"])
	// amount 75.5 → 0, local → 0, 13h → 0, sample 0.5 → 5
	assert.Equal(t, 5.0, a["total_risk"])
	assert.Equal(t, false, a["is_fraud"])
	assert.Equal(t, "minimal", a["risk_level"])
}

func TestAnalyze_WorstCase_IsFraud(t *testing.T) {
	srv := newTestServer(t)
	resp := post(t, srv, "/predict", fraudTxPayload("tx-fraud"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	a := decodeData(t, resp)["analysis"].(map[string]any)
	assert.Equal(t, 30.0, a["amount_risk"])
	assert.Equal(t, 35.0, a["location_risk"])
	assert.Equal(t, 20.0, a["time_risk"])
	assert.Equal(t, 40.0, a["pattern_risk"])
	assert.Equal(t, 100.0, a["total_risk"])
	assert.Equal(t, true, a["is_fraud"])
}

func TestAnalyze_AssignsIDWhenMissing(t *testing.T) {
	srv := newTestServer(t)
	payload := validTxPayload("")
	delete(payload, "transaction_id")
	resp := post(t, srv, "/api/v1/transactions", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tx := decodeData(t, resp)["transaction"].(map[string]any)
	assert.NotEmpty(t, tx["transaction_id"])
}

func TestAnalyze_MissingField_Returns400(t *testing.T) {
	srv := newTestServer(t)
	bad := validTxPayload("bad-001")
	delete(bad, "merchant")
	delete(bad, "hour")
	resp := post(t, srv, "/api/v1/transactions", bad)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decodeError(t, resp)
	assert.Equal(t, "VALIDATION_ERROR", e["code"])
	assert.ElementsMatch(t, []any{"hour", "merchant"}, e["fields"])
}

func TestAnalyze_InvalidJSON_Returns400(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/v1/transactions", "application/json", bytes.NewBufferString("not-json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_JSON", decodeError(t, resp)["code"])
}

func TestAnalyze_ZeroAmount_Returns400(t *testing.T) {
	srv := newTestServer(t)
	bad := validTxPayload("zero-amount")
	bad["amount"] = 0
	resp := post(t, srv, "/api/v1/transactions", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyze_HourOutOfRange_Returns400(t *testing.T) {
	srv := newTestServer(t)
	bad := validTxPayload("late")
	bad["hour"] = 24
	resp := post(t, srv, "/api/v1/transactions", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ─── History endpoints ────────────────────────────────────────────────────────

func TestGetTransaction_FoundAndMissing(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, "/api/v1/transactions", validTxPayload("tx-get"))

	resp := get(t, srv, "/api/v1/transactions/tx-get")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tx-get", decodeData(t, resp)["transaction"].(map[string]any)["transaction_id"])

	resp = get(t, srv, "/api/v1/transactions/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListTransactions_NewestFirstWithLimit(t *testing.T) {
	srv := newTestServer(t)
	for i := 1; i <= 12; i++ {
		post(t, srv, "/api/v1/transactions", validTxPayload(fmt.Sprintf("tx-%02d", i)))
	}

	list := decodeList(t, get(t, srv, "/api/v1/transactions"))
	require.Len(t, list, 10)
	first := list[0].(map[string]any)["transaction"].(map[string]any)
	assert.Equal(t, "tx-12", first["transaction_id"])

	list = decodeList(t, get(t, srv, "/api/v1/transactions?limit=3"))
	assert.Len(t, list, 3)

	resp := get(t, srv, "/api/v1/transactions?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = get(t, srv, "/api/v1/transactions?limit=51")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListTransactions_EmptyIsList(t *testing.T) {
	srv := newTestServer(t)
	env := decodeEnvelope(t, get(t, srv, "/api/v1/transactions"))
	// empty list is omitted by the envelope; must not be an error
	assert.Nil(t, env["error"])
}

func TestStatisticsAndAlerts(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, "/api/v1/transactions", validTxPayload("ok-1"))
	post(t, srv, "/api/v1/transactions", fraudTxPayload("fraud-1"))
	post(t, srv, "/api/v1/transactions", validTxPayload("ok-2"))
	post(t, srv, "/api/v1/transactions", fraudTxPayload("fraud-2"))

	stats := decodeData(t, get(t, srv, "/api/v1/statistics"))
	assert.Equal(t, 4.0, stats["total"])
	assert.Equal(t, 2.0, stats["fraud"])
	assert.Equal(t, 2.0, stats["legitimate"])
	assert.Equal(t, 50.0, stats["detection_rate"])

	alerts := decodeList(t, get(t, srv, "/api/v1/alerts"))
	require.Len(t, alerts, 2)
	assert.Equal(t, "fraud-2", alerts[0].(map[string]any)["transaction_id"])
	assert.Equal(t, 100.0, alerts[0].(map[string]any)["risk_score"])
}

func TestSample_Returns201AndRecords(t *testing.T) {
	srv := newTestServer(t)
	resp := post(t, srv, "/api/v1/transactions/sample", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	stats := decodeData(t, get(t, srv, "/api/v1/statistics"))
	assert.Equal(t, 1.0, stats["total"])
}

func TestReset_ClearsEverything(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, "/api/v1/transactions", fraudTxPayload("fraud-1"))

	resp := post(t, srv, "/api/v1/admin/reset", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stats := decodeData(t, get(t, srv, "/api/v1/statistics"))
	assert.Equal(t, 0.0, stats["total"])
	resp = get(t, srv, "/api/v1/transactions/fraud-1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

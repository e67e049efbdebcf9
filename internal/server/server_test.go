package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingolead-stack/levelbot/internal/dispatch"
	"github.com/bingolead-stack/levelbot/internal/strategy"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestServer(t *testing.T, withStrategy bool) *Server {
	t.Helper()
	d := dispatch.New(testLogger(), func() time.Time {
		return time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC)
	})
	if withStrategy {
		s, err := strategy.New(strategy.Params{
			Name:                 "web",
			EntryOffsetTicks:     4,
			TakeProfitTicks:      40,
			StopLossTicks:        20,
			TrailTrigger:         2,
			ReEntryDistance:      1,
			MaxOpenTrades:        1,
			MaxContractsPerTrade: 1,
			SymbolSize:           50,
			IsTradingLong:        true,
			StaticLevels:         []float64{495, 500, 505, 510, 515, 520},
		}, nil, nil, testLogger())
		require.NoError(t, err)
		d.Register(s)
	}
	return New(":0", d, testLogger())
}

func postWebhook(srv *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcceptsBar(t *testing.T) {
	srv := newTestServer(t, true)

	rec := postWebhook(srv, `{"open":504,"high":506,"low":503,"close":504}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
}

func TestWebhookMalformedBody(t *testing.T) {
	srv := newTestServer(t, true)

	rec := postWebhook(srv, `{"open":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookInvalidBar(t *testing.T) {
	srv := newTestServer(t, true)

	rec := postWebhook(srv, `{"open":100,"high":99,"low":105,"close":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookWithoutStrategies(t *testing.T) {
	srv := newTestServer(t, false)

	rec := postWebhook(srv, `{"open":504,"high":506,"low":503,"close":504}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"strategies":1`)
}

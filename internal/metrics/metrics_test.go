package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHandlerExposesRecordedSeries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/metrics", Handler())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	RecordSettlement("webhook", "settled")
	RecordWebhook("applied")
	RecordWalletCreditFailure("affiliate_credit")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	body := w.Body.String()
	for _, series := range []string{
		`affiliate_settlements_total{outcome="settled",trigger="webhook"}`,
		`affiliate_webhook_events_total{result="applied"}`,
		`affiliate_wallet_credit_failures_total{step="affiliate_credit"}`,
		`affiliate_http_request_duration_seconds_count{method="GET",route="/ping",status="200"}`,
	} {
		if !strings.Contains(body, series) {
			t.Fatalf("metrics output missing %s", series)
		}
	}
}

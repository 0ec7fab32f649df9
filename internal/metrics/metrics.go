package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_settlements_total",
		Help: "Settlement attempts by trigger and outcome",
	}, []string{
		"trigger", // webhook, verify, callback, expiry_sweep
		"outcome", // settled, already_settled, not_pending, not_found, failed
	})

	walletCreditFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_wallet_credit_failures_total",
		Help: "Wallet credit steps that failed after the sale was marked completed",
	}, []string{"step"})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_webhook_events_total",
		Help: "Processor webhook deliveries by result",
	}, []string{"result"})

	salesExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_sales_expired_total",
		Help: "Pending sales resolved by the expiry sweep",
	}, []string{"outcome"})

	withdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_withdrawals_total",
		Help: "Withdrawal workflow transitions",
	}, []string{"action"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "affiliate_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 12},
	}, []string{"method", "route", "status"})
)

// RecordSettlement 记录结算结果
func RecordSettlement(trigger, outcome string) {
	settlementsTotal.WithLabelValues(trigger, outcome).Inc()
}

// RecordWalletCreditFailure 记录入账失败步骤
func RecordWalletCreditFailure(step string) {
	walletCreditFailuresTotal.WithLabelValues(step).Inc()
}

// RecordWebhook 记录 Webhook 处理结果
func RecordWebhook(result string) {
	webhookEventsTotal.WithLabelValues(result).Inc()
}

// RecordSaleExpired 记录过期扫描结果
func RecordSaleExpired(outcome string) {
	salesExpiredTotal.WithLabelValues(outcome).Inc()
}

// RecordWithdrawal 记录提现流转
func RecordWithdrawal(action string) {
	withdrawalsTotal.WithLabelValues(action).Inc()
}

// GinMiddleware 统计请求耗时
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler 暴露 Prometheus 指标
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

var (
	pollFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_poll_fetches_total",
		Help:      "Payment status fetches issued by the confirmation poller, by outcome.",
	}, []string{"outcome"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_notifications_total",
		Help:      "Payment provider notifications received, by result.",
	}, []string{"result"})

	notificationForwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_notification_forwards_total",
		Help:      "Notification forwards to the backend, by result.",
	}, []string{"result"})

	stateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_state_changes_total",
		Help:      "Order fulfillment state changes, by flag and result.",
	}, []string{"flag", "result"})

	backendRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Latency of outbound requests, by target, operation and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"target", "operation", "code"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Resource cache lookups, by resource and result.",
	}, []string{"resource", "result"})
)

// ObservePollFetch 记录一次轮询查询
func ObservePollFetch(outcome string) {
	pollFetches.WithLabelValues(outcome).Inc()
}

// ObserveNotification 记录 webhook 处理结果
func ObserveNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

// ObserveNotificationForward 记录通知转发结果
func ObserveNotificationForward(result string) {
	notificationForwards.WithLabelValues(result).Inc()
}

// ObserveStateChange 记录订单状态变更
func ObserveStateChange(flag, result string) {
	stateChanges.WithLabelValues(flag, result).Inc()
}

// ObserveRequest 记录外部请求耗时，code 为 0 表示未拿到响应
func ObserveRequest(target, operation string, code int, elapsed time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	backendRequests.WithLabelValues(target, operation, label).Observe(elapsed.Seconds())
}

// ObserveCacheLookup 记录缓存命中情况
func ObserveCacheLookup(resource string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(resource, result).Inc()
}

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}

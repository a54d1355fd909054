package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of checkout attempts",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	StockDecrementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_decrements_total",
		Help: "Total number of successful stock decrements",
	})

	StockDecrementFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_decrement_failed_total",
		Help: "Total number of failed stock decrements",
	}, []string{"reason"})

	StockReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_released_total",
		Help: "Total number of compensating stock releases",
	})

	PaymentsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Total number of payments submitted to the gateway",
	})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of payments confirmed COMPLETED",
	})

	PaymentsTerminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_terminal_total",
		Help: "Total number of terminal payment transitions",
	}, []string{"status"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	GatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Total number of payment gateway errors",
	}, []string{"operation", "kind"})

	IPNReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipn_received_total",
		Help: "Total number of provider payment notifications received",
	})

	IPNDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipn_duplicate_total",
		Help: "Total number of duplicate provider notifications skipped",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Total number of order notification deliveries",
	}, []string{"channel", "audience", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

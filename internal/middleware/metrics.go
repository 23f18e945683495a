package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	ReviewsTotal       uint64
	ReviewsRunning     uint64
	ReviewsFailed      uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementSuccess increments successful request counter
func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementReviews increments total review session counter
func IncrementReviews() {
	atomic.AddUint64(&globalMetrics.ReviewsTotal, 1)
}

// IncrementReviewsRunning increments running review counter
func IncrementReviewsRunning() {
	atomic.AddUint64(&globalMetrics.ReviewsRunning, 1)
}

// DecrementReviewsRunning decrements running review counter
func DecrementReviewsRunning() {
	atomic.AddUint64(&globalMetrics.ReviewsRunning, ^uint64(0))
}

// IncrementReviewsFailed increments failed review counter
func IncrementReviewsFailed() {
	atomic.AddUint64(&globalMetrics.ReviewsFailed, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":      atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_success":    atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":     atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"reviews_total":       atomic.LoadUint64(&globalMetrics.ReviewsTotal),
		"reviews_running":     atomic.LoadUint64(&globalMetrics.ReviewsRunning),
		"reviews_failed":      atomic.LoadUint64(&globalMetrics.ReviewsFailed),
		"uptime_seconds":      time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsHandler exposes metrics as JSON
func MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetMetrics())
	}
}

// MetricsMiddleware counts requests and outcomes
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if wrapped.statusCode < 500 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

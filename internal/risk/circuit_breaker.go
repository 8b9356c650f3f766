package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker states for Prometheus metrics
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	// Metric result labels
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Circuit breaker thresholds - configurable per service type
const (
	// Exchange circuit breaker settings
	ExchangeMinRequests     = 5                // Minimum requests before tripping
	ExchangeFailureRatio    = 0.6              // Failure ratio threshold (60%)
	ExchangeOpenTimeout     = 30 * time.Second // How long circuit stays open
	ExchangeHalfOpenMaxReqs = 3                // Max requests in half-open state
	ExchangeCountInterval   = 10 * time.Second // Window for counting failures

	// Alert delivery circuit breaker settings (longer timeouts for third-party
	// bot APIs like Telegram that rate-limit more aggressively than an exchange)
	AlertDeliveryMinRequests     = 3                // Minimum requests before tripping
	AlertDeliveryFailureRatio    = 0.6              // Failure ratio threshold (60%)
	AlertDeliveryOpenTimeout     = 60 * time.Second // How long circuit stays open
	AlertDeliveryHalfOpenMaxReqs = 2                // Max requests in half-open state
	AlertDeliveryCountInterval   = 10 * time.Second // Window for counting failures

	// Database circuit breaker settings (faster recovery)
	DBMinRequests     = 10               // Minimum requests before tripping
	DBFailureRatio    = 0.6              // Failure ratio threshold (60%)
	DBOpenTimeout     = 15 * time.Second // How long circuit stays open (quick recovery)
	DBHalfOpenMaxReqs = 5                // Max requests in half-open state
	DBCountInterval   = 10 * time.Second // Window for counting failures
)

// CircuitBreakerManager manages circuit breakers for different service types
type CircuitBreakerManager struct {
	exchange      *gobreaker.CircuitBreaker
	alertDelivery *gobreaker.CircuitBreaker
	database      *gobreaker.CircuitBreaker
	metrics       *CircuitBreakerMetrics
}

// CircuitBreakerMetrics holds Prometheus metrics for circuit breakers
type CircuitBreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	// Global metrics instance (singleton)
	globalMetrics *CircuitBreakerMetrics
	metricsOnce   sync.Once
)

// initMetrics initializes the global metrics instance exactly once in a thread-safe manner
func initMetrics() {
	metricsOnce.Do(func() {
		globalMetrics = &CircuitBreakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_requests_total",
					Help: "Total number of requests through circuit breaker",
				},
				[]string{"service", "result"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_failures_total",
					Help: "Total number of failures tracked by circuit breaker",
				},
				[]string{"service"},
			),
		}
	})
}

// ServiceSettings holds circuit breaker configuration for a single service
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// NewCircuitBreakerManager creates a new circuit breaker manager with default settings.
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return NewCircuitBreakerManagerWithSettings(nil, nil, nil)
}

// NewCircuitBreakerManagerWithSettings creates a new circuit breaker manager with Prometheus metrics
// If settings are nil, defaults to the constants defined above
func NewCircuitBreakerManagerWithSettings(exchangeSettings, alertSettings, dbSettings *ServiceSettings) *CircuitBreakerManager {
	// Register metrics only once using sync.Once for thread safety
	initMetrics()

	metrics := globalMetrics

	manager := &CircuitBreakerManager{
		metrics: metrics,
	}

	// Use defaults if settings not provided
	if exchangeSettings == nil {
		exchangeSettings = &ServiceSettings{
			MinRequests:     ExchangeMinRequests,
			FailureRatio:    ExchangeFailureRatio,
			OpenTimeout:     ExchangeOpenTimeout,
			HalfOpenMaxReqs: ExchangeHalfOpenMaxReqs,
			CountInterval:   ExchangeCountInterval,
		}
	}
	if alertSettings == nil {
		alertSettings = &ServiceSettings{
			MinRequests:     AlertDeliveryMinRequests,
			FailureRatio:    AlertDeliveryFailureRatio,
			OpenTimeout:     AlertDeliveryOpenTimeout,
			HalfOpenMaxReqs: AlertDeliveryHalfOpenMaxReqs,
			CountInterval:   AlertDeliveryCountInterval,
		}
	}
	if dbSettings == nil {
		dbSettings = &ServiceSettings{
			MinRequests:     DBMinRequests,
			FailureRatio:    DBFailureRatio,
			OpenTimeout:     DBOpenTimeout,
			HalfOpenMaxReqs: DBHalfOpenMaxReqs,
			CountInterval:   DBCountInterval,
		}
	}

	// Exchange circuit breaker: configurable thresholds
	manager.exchange = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: exchangeSettings.HalfOpenMaxReqs,
		Interval:    exchangeSettings.CountInterval,
		Timeout:     exchangeSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= exchangeSettings.MinRequests && failureRatio >= exchangeSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("exchange", to)
		},
	})

	// Alert delivery circuit breaker: longer timeouts for third-party bot APIs
	manager.alertDelivery = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alert_delivery",
		MaxRequests: alertSettings.HalfOpenMaxReqs,
		Interval:    alertSettings.CountInterval,
		Timeout:     alertSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= alertSettings.MinRequests && failureRatio >= alertSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("alert_delivery", to)
		},
	})

	// Database circuit breaker: quick recovery for DB connections
	manager.database = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database",
		MaxRequests: dbSettings.HalfOpenMaxReqs,
		Interval:    dbSettings.CountInterval,
		Timeout:     dbSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= dbSettings.MinRequests && failureRatio >= dbSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("database", to)
		},
	})

	// Initialize metrics
	manager.updateMetrics("exchange", manager.exchange.State())
	manager.updateMetrics("alert_delivery", manager.alertDelivery.State())
	manager.updateMetrics("database", manager.database.State())

	return manager
}

// Exchange returns the breaker sized for outbound exchange REST calls. The
// exchange connectors and the execution engine in this module do not call
// through it.
func (m *CircuitBreakerManager) Exchange() *gobreaker.CircuitBreaker {
	return m.exchange
}

// AlertDelivery returns the breaker guarding outbound alert delivery
// (Telegram/Discord), sized for a slower, more rate-limit-prone third party
// than the exchange breaker.
func (m *CircuitBreakerManager) AlertDelivery() *gobreaker.CircuitBreaker {
	return m.alertDelivery
}

// Database returns the database circuit breaker
func (m *CircuitBreakerManager) Database() *gobreaker.CircuitBreaker {
	return m.database
}

// updateMetrics updates Prometheus metrics for a circuit breaker state change
func (m *CircuitBreakerManager) updateMetrics(service string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	m.metrics.state.WithLabelValues(service).Set(stateValue)
}

// RecordRequest records a request result for metrics
func (m *CircuitBreakerMetrics) RecordRequest(service string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		m.failures.WithLabelValues(service).Inc()
	}
	m.requests.WithLabelValues(service, result).Inc()
}

// Metrics returns the metrics instance for manual recording
func (m *CircuitBreakerManager) Metrics() *CircuitBreakerMetrics {
	return m.metrics
}

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики протокола checkout.
type CheckoutMetrics struct {
	// Счётчики исходов попыток
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutCancelled prometheus.Counter
	checkoutFailed    *prometheus.CounterVec

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	phaseDuration    *prometheus.HistogramVec

	// Счётчики событий
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
	cartClearRetries prometheus.Counter

	// Gauge для активных попыток
	activeCheckouts prometheus.Gauge
}

// NewCheckoutMetrics создаёт новый экземпляр метрик checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_started_total",
			Help: "Total number of checkout attempts started",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_completed_total",
			Help: "Total number of checkout attempts completed successfully",
		}),
		checkoutCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_cancelled_total",
			Help: "Total number of checkout attempts cancelled by the user",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failed_total",
			Help: "Total number of checkout attempts failed, by reason",
		}, []string{"reason"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		phaseDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_phase_duration_seconds",
			Help:    "Duration of individual checkout phases in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"phase"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		cartClearRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_clear_retries_total",
			Help: "Total number of retried cart clear calls after checkout completion",
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_checkouts",
			Help: "Number of currently active checkout attempts",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCheckoutStarted увеличивает счётчик начатых попыток.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	m.checkoutStarted.Inc()
	m.activeCheckouts.Inc()
}

// RecordCheckoutCompleted увеличивает счётчик успешных попыток.
func (m *CheckoutMetrics) RecordCheckoutCompleted() {
	m.checkoutCompleted.Inc()
	m.activeCheckouts.Dec()
}

// RecordCheckoutCancelled увеличивает счётчик отменённых пользователем попыток.
func (m *CheckoutMetrics) RecordCheckoutCancelled() {
	m.checkoutCancelled.Inc()
	m.activeCheckouts.Dec()
}

// RecordCheckoutFailed увеличивает счётчик неудачных попыток с причиной.
func (m *CheckoutMetrics) RecordCheckoutFailed(reason string) {
	m.checkoutFailed.WithLabelValues(reason).Inc()
	m.activeCheckouts.Dec()
}

// RecordCheckoutDuration записывает время жизни попытки.
func (m *CheckoutMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordPhaseDuration записывает время выполнения фазы протокола.
func (m *CheckoutMetrics) RecordPhaseDuration(phase string, duration time.Duration) {
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordCartClearRetry увеличивает счётчик повторов очистки корзины.
func (m *CheckoutMetrics) RecordCartClearRetry() {
	m.cartClearRetries.Inc()
}

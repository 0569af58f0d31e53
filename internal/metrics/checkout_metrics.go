package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики для операций чекаут-саги.
type CheckoutMetrics struct {
	// Счётчики операций
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutFailed    prometheus.Counter
	compensations     prometheus.Counter
	refunds           prometheus.Counter

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	// Счётчики событий outbox
	outboxEvents prometheus.Counter
}

// NewCheckoutMetrics создаёт новый экземпляр метрик чекаута.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_checkout_started_total",
			Help: "Total number of checkout operations started",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_checkout_completed_total",
			Help: "Total number of checkout operations completed successfully",
		}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_checkout_failed_total",
			Help: "Total number of checkout operations failed",
		}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_checkout_compensations_total",
			Help: "Total number of stock reservation compensations",
		}),
		refunds: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_refunds_total",
			Help: "Total number of refund operations",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "commerce_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "commerce_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

// RecordCheckoutStarted инкрементирует счётчик начатых чекаутов.
func (m *CheckoutMetrics) RecordCheckoutStarted() { m.checkoutStarted.Inc() }

// RecordCheckoutCompleted инкрементирует счётчик успешных чекаутов.
func (m *CheckoutMetrics) RecordCheckoutCompleted() { m.checkoutCompleted.Inc() }

// RecordCheckoutFailed инкрементирует счётчик неуспешных чекаутов.
func (m *CheckoutMetrics) RecordCheckoutFailed() { m.checkoutFailed.Inc() }

// RecordCompensation инкрементирует счётчик компенсаций резервов.
func (m *CheckoutMetrics) RecordCompensation() { m.compensations.Inc() }

// RecordRefund инкрементирует счётчик возвратов.
func (m *CheckoutMetrics) RecordRefund() { m.refunds.Inc() }

// RecordCheckoutDuration записывает длительность чекаута.
func (m *CheckoutMetrics) RecordCheckoutDuration(d time.Duration) {
	m.checkoutDuration.Observe(d.Seconds())
}

// RecordStepDuration записывает длительность отдельного шага саги.
func (m *CheckoutMetrics) RecordStepDuration(step string, d time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordOutboxEvent инкрементирует счётчик поставленных в outbox событий.
func (m *CheckoutMetrics) RecordOutboxEvent() { m.outboxEvents.Inc() }

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

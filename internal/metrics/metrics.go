// Package metrics exposes delivery and cycle counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives delivery events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	MessageSent(channel string)
	SendFailed(channel string)
	CycleFinished(task string, err error)
	Breaching(horizon string, count int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) MessageSent(string)          {}
func (Nop) SendFailed(string)           {}
func (Nop) CycleFinished(string, error) {}
func (Nop) Breaching(string, int)       {}

// Collector is a Prometheus-backed Recorder.
type Collector struct {
	sent      *prometheus.CounterVec
	failed    *prometheus.CounterVec
	cycles    *prometheus.CounterVec
	breaching *prometheus.GaugeVec
}

// NewCollector registers the bot's metrics on reg. A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "vopb"
	}
	c := &Collector{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages delivered by channel (broadcast, private, response).",
		}, []string{"channel"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Failed deliveries by channel.",
		}, []string{"channel"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed periodic cycles by task and result.",
		}, []string{"task", "result"}),
		breaching: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaching_operators",
			Help:      "Operators below at least one threshold in the last evaluation.",
		}, []string{"horizon"}),
	}
	reg.MustRegister(c.sent, c.failed, c.cycles, c.breaching)
	return c
}

func (c *Collector) MessageSent(channel string) { c.sent.WithLabelValues(channel).Inc() }

func (c *Collector) SendFailed(channel string) { c.failed.WithLabelValues(channel).Inc() }

func (c *Collector) CycleFinished(task string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.cycles.WithLabelValues(task, result).Inc()
}

func (c *Collector) Breaching(horizon string, count int) {
	c.breaching.WithLabelValues(horizon).Set(float64(count))
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*Collector)(nil)
)

package stats

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillvault/syncwire/events"
	"github.com/quillvault/syncwire/synclib"
)

const (
	MetricClientConnections     = "client_connections"
	MetricAuthenticatedSessions = "authenticated_sessions"
	MetricAuthResults           = "auth_results"
	MetricRateLimited           = "rate_limited"
	MetricConcurrencyLimited    = "concurrency_limited"
	MetricReplayAttacks         = "replay_attacks"
	MetricBroadcasts            = "broadcasts"
	MetricBroadcastDeliveries   = "broadcast_deliveries"
	MetricSessionDuration       = "session_duration_seconds"

	TagAuthResult = "result"

	tagAuthenticated = "authenticated"
)

type prometheusProcessor struct {
	conns   map[string]*connInfo
	factory *PrometheusFactory
}

func (p prometheusProcessor) EventConnectionOpened(evt synclib.EventConnectionOpened) {
	info := acquireConnInfo()
	info.startTime = time.Now()
	info.tags[TagIPFamily] = ipFamilyTag(evt.RemoteIP.To4() != nil)

	p.conns[evt.ConnID()] = info

	p.factory.metricClientConnections.
		WithLabelValues(info.tags[TagIPFamily]).
		Inc()
}

func (p prometheusProcessor) EventConnectionClosed(evt synclib.EventConnectionClosed) {
	info, ok := p.conns[evt.ConnID()]
	if !ok {
		return
	}

	defer func() {
		delete(p.conns, evt.ConnID())
		releaseConnInfo(info)
	}()

	if !info.startTime.IsZero() {
		p.factory.metricSessionDuration.Observe(time.Since(info.startTime).Seconds())
	}

	p.factory.metricClientConnections.
		WithLabelValues(info.tags[TagIPFamily]).
		Dec()

	if info.tags[tagAuthenticated] != "" {
		p.factory.metricAuthenticatedSessions.Dec()
	}
}

func (p prometheusProcessor) EventAuthenticated(evt synclib.EventAuthenticated) {
	p.factory.metricAuthResults.WithLabelValues(TagAuthResultOK).Inc()

	info, ok := p.conns[evt.ConnID()]
	if !ok {
		return
	}

	info.tags[tagAuthenticated] = TagAuthResultOK

	p.factory.metricAuthenticatedSessions.Inc()
}

func (p prometheusProcessor) EventAuthFailed(_ synclib.EventAuthFailed) {
	p.factory.metricAuthResults.WithLabelValues(TagAuthResultFailed).Inc()
}

func (p prometheusProcessor) EventRateLimited(_ synclib.EventRateLimited) {
	p.factory.metricRateLimited.Inc()
}

func (p prometheusProcessor) EventConcurrencyLimited(_ synclib.EventConcurrencyLimited) {
	p.factory.metricConcurrencyLimited.Inc()
}

func (p prometheusProcessor) EventReplayAttack(_ synclib.EventReplayAttack) {
	p.factory.metricReplayAttacks.Inc()
}

func (p prometheusProcessor) EventBroadcast(evt synclib.EventBroadcast) {
	p.factory.metricBroadcasts.
		WithLabelValues(evt.MessageType).
		Inc()
	p.factory.metricBroadcastDeliveries.
		WithLabelValues(evt.MessageType).
		Add(float64(evt.Delivered))
}

func (p prometheusProcessor) Shutdown() {
	for k, v := range p.conns {
		releaseConnInfo(v)
		delete(p.conns, k)
	}
}

// PrometheusFactory is a factory of [events.Observer] which collect
// information in a format suitable for Prometheus.
//
// This factory can also serve on a given listener. In that case it starts HTTP
// server with a single endpoint - a Prometheus-compatible scrape output.
type PrometheusFactory struct {
	httpServer *http.Server

	metricClientConnections *prometheus.GaugeVec
	metricAuthResults       *prometheus.CounterVec

	metricBroadcasts          *prometheus.CounterVec
	metricBroadcastDeliveries *prometheus.CounterVec

	metricAuthenticatedSessions prometheus.Gauge
	metricRateLimited           prometheus.Counter
	metricConcurrencyLimited    prometheus.Counter
	metricReplayAttacks         prometheus.Counter

	metricSessionDuration prometheus.Histogram

	metricBuildInfo *prometheus.GaugeVec
}

// Make builds a new observer.
func (p *PrometheusFactory) Make() events.Observer {
	return prometheusProcessor{
		conns:   make(map[string]*connInfo),
		factory: p,
	}
}

// Serve starts an HTTP server on a given listener.
func (p *PrometheusFactory) Serve(listener net.Listener) error {
	return p.httpServer.Serve(listener) //nolint: wrapcheck
}

// Close stops a factory. Please pay attention that underlying listener
// is not closed.
func (p *PrometheusFactory) Close() error {
	return p.httpServer.Shutdown(context.Background()) //nolint: wrapcheck
}

// NewPrometheus builds a factory which can serve HTTP endpoint with
// Prometheus scrape data.
func NewPrometheus(metricPrefix, httpPath, version string) *PrometheusFactory {
	registry := prometheus.NewPedanticRegistry()
	httpHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	mux := http.NewServeMux()

	mux.Handle(httpPath, httpHandler)

	factory := &PrometheusFactory{
		httpServer: &http.Server{
			Handler: mux,
		},

		metricClientConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricPrefix,
			Name:      MetricClientConnections,
			Help:      "A number of open client websocket connections.",
		}, []string{TagIPFamily}),
		metricAuthResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricAuthResults,
			Help:      "A number of finished auth handshakes by result.",
		}, []string{TagAuthResult}),

		metricBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricBroadcasts,
			Help:      "A number of fan-out attempts by sync frame type.",
		}, []string{TagFrame}),
		metricBroadcastDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricBroadcastDeliveries,
			Help:      "A number of devices reached by fan-outs, by sync frame type.",
		}, []string{TagFrame}),

		metricAuthenticatedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricPrefix,
			Name:      MetricAuthenticatedSessions,
			Help:      "A number of connections which completed the auth handshake.",
		}),
		metricRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricRateLimited,
			Help:      "A number of frames or connection attempts rejected by rate limiters.",
		}),
		metricConcurrencyLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricConcurrencyLimited,
			Help:      "A number of sessions that were rejected by concurrency limiter.",
		}),
		metricReplayAttacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricReplayAttacks,
			Help:      "A number of detected replay attacks.",
		}),

		metricSessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricPrefix,
			Name:      MetricSessionDuration,
			Help:      "Duration of client sessions in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800, 3600},
		}),

		metricBuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricPrefix,
			Name:      "build_info",
			Help:      "Build information about the sync engine.",
		}, []string{"version"}),
	}

	registry.MustRegister(factory.metricClientConnections)
	registry.MustRegister(factory.metricAuthResults)

	registry.MustRegister(factory.metricBroadcasts)
	registry.MustRegister(factory.metricBroadcastDeliveries)

	registry.MustRegister(factory.metricAuthenticatedSessions)
	registry.MustRegister(factory.metricRateLimited)
	registry.MustRegister(factory.metricConcurrencyLimited)
	registry.MustRegister(factory.metricReplayAttacks)

	registry.MustRegister(factory.metricSessionDuration)

	registry.MustRegister(factory.metricBuildInfo)
	factory.metricBuildInfo.WithLabelValues(version).Set(1)

	return factory
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Endpoint/zone/route inventory
	EndpointsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ztgateway_endpoints_total",
			Help: "Total number of registered endpoints by role",
		},
		[]string{"role"},
	)

	ZonesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ztgateway_zones_total",
			Help: "Total number of configured zones",
		},
	)

	RoutesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ztgateway_routes_total",
			Help: "Total number of configured routes",
		},
	)

	// CA metrics
	CertificatesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ztgateway_certificates_issued_total",
			Help: "Total number of endpoint certificates issued by role",
		},
		[]string{"role"},
	)

	// DNS metrics
	DNSQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ztgateway_dns_queries_total",
			Help: "Total number of DNS-over-TLS queries by result",
		},
		[]string{"result"}, // private, forwarded, refused, servfail, formerr
	)

	DNSQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ztgateway_dns_query_duration_seconds",
			Help:    "Time taken to answer a DNS query in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DNSConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ztgateway_dns_connections_total",
			Help: "Total number of accepted DNS-over-TLS connections",
		},
	)

	// Proxy metrics
	TunnelsOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ztgateway_tunnels_opened_total",
			Help: "Total number of transport tunnels opened by zone",
		},
		[]string{"zone"},
	)

	TunnelsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ztgateway_tunnels_active",
			Help: "Number of transport tunnels currently open",
		},
	)

	TunnelBytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ztgateway_tunnel_bytes_total",
			Help: "Total bytes transferred through tunnels by direction",
		},
		[]string{"direction"}, // client_to_backend, backend_to_client
	)

	TunnelDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ztgateway_tunnel_drops_total",
			Help: "Total number of connections dropped before a tunnel was established",
		},
		[]string{"reason"}, // unknown_cn, unauthorized, no_hostname, dial_failed
	)

	// Admin API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ztgateway_api_requests_total",
			Help: "Total number of admin API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ztgateway_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	BundlesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ztgateway_bundles_issued_total",
			Help: "Total number of client configuration bundles issued",
		},
	)
)

func init() {
	prometheus.MustRegister(EndpointsTotal)
	prometheus.MustRegister(ZonesTotal)
	prometheus.MustRegister(RoutesTotal)
	prometheus.MustRegister(CertificatesIssuedTotal)

	prometheus.MustRegister(DNSQueriesTotal)
	prometheus.MustRegister(DNSQueryDuration)
	prometheus.MustRegister(DNSConnectionsTotal)

	prometheus.MustRegister(TunnelsOpenedTotal)
	prometheus.MustRegister(TunnelsActive)
	prometheus.MustRegister(TunnelBytesTransferred)
	prometheus.MustRegister(TunnelDropsTotal)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(BundlesIssuedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

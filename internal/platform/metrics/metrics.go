package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by both listeners. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	EPPCommands               *prometheus.CounterVec
	EPPCommandDuration        *prometheus.HistogramVec
	EPPSessions               prometheus.Gauge
	LedgerWriteFailures       *prometheus.CounterVec
	WHOISQueries              *prometheus.CounterVec
	ConnectionsRejected       *prometheus.CounterVec
	AccessListSize            prometheus.Gauge
	AccessListRefreshFailures prometheus.Counter
	ZoneCacheLookups          *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EPPCommands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regcore_epp_commands_total",
			Help: "EPP commands answered, by command and result code",
		}, []string{"command", "code"}),
		EPPCommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regcore_epp_command_duration_seconds",
			Help:    "Time from frame receipt to framed response",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		EPPSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "regcore_epp_sessions",
			Help: "Open EPP sessions",
		}),
		LedgerWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regcore_ledger_write_failures_total",
			Help: "Transaction ledger writes that failed, by phase",
		}, []string{"phase"}),
		WHOISQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regcore_whois_queries_total",
			Help: "WHOIS queries answered, by query kind and outcome",
		}, []string{"kind", "outcome"}),
		ConnectionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regcore_connections_rejected_total",
			Help: "Connections closed before service, by listener and reason",
		}, []string{"listener", "reason"}),
		AccessListSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "regcore_accesslist_addresses",
			Help: "Addresses in the current permitted set",
		}),
		AccessListRefreshFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "regcore_accesslist_refresh_failures_total",
			Help: "Permitted set refreshes that failed and kept the previous set",
		}),
		ZoneCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regcore_zonecache_lookups_total",
			Help: "Zone policy cache lookups, by tier and result",
		}, []string{"tier", "result"}),
	}
}

func (m *Metrics) ObserveEPPCommand(command string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EPPCommands.WithLabelValues(command, strconv.Itoa(code)).Inc()
	m.EPPCommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.EPPSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.EPPSessions.Dec()
}

func (m *Metrics) IncrementLedgerFailure(phase string) {
	if m == nil {
		return
	}
	m.LedgerWriteFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) IncrementWHOISQuery(kind, outcome string) {
	if m == nil {
		return
	}
	m.WHOISQueries.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncrementRejected(listener, reason string) {
	if m == nil {
		return
	}
	m.ConnectionsRejected.WithLabelValues(listener, reason).Inc()
}

func (m *Metrics) SetAccessListSize(n int) {
	if m == nil {
		return
	}
	m.AccessListSize.Set(float64(n))
}

func (m *Metrics) IncrementAccessListRefreshFailure() {
	if m == nil {
		return
	}
	m.AccessListRefreshFailures.Inc()
}

func (m *Metrics) IncrementZoneCache(tier, result string) {
	if m == nil {
		return
	}
	m.ZoneCacheLookups.WithLabelValues(tier, result).Inc()
}

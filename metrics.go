package gourdiansession

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "gourdiansession"

// Metrics holds the Prometheus collectors of a SessionManager. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	sessionsCreated  *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	updates          *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	degradedResolves prometheus.Counter
	cacheRequests    *prometheus.CounterVec
	revocations      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created, by outcome.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_verifications_total",
			Help:      "Access token verifications, by outcome.",
		}, []string{"result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_updates_total",
			Help:      "In-place session updates, by outcome.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_refreshes_total",
			Help:      "Refresh token exchanges, by team resolution path and outcome.",
		}, []string{"path", "result"}),
		degradedResolves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "team_access_degraded_total",
			Help:      "Team resolutions that fell back to reconstruction from group names.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "team_access_cache_requests_total",
			Help:      "Team access cache lookups, by hit or miss.",
		}, []string{"result"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_revocations_total",
			Help:      "Sessions added to the revocation denylist.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.sessionsCreated,
			m.verifications,
			m.updates,
			m.refreshes,
			m.degradedResolves,
			m.cacheRequests,
			m.revocations,
		)
	}
	return m
}

const (
	resultOK       = "ok"
	resultError    = "error"
	resultInvalid  = "invalid_token"
	resultDecrypt  = "decrypt_failed"
	resultInactive = "inactive"
	resultRevoked  = "revoked"

	pathResolver = "resolver"
	pathDegraded = "degraded"
	pathNone     = "none"
)

func (m *Metrics) sessionCreated(result string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(result).Inc()
}

func (m *Metrics) verified(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) updated(result string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(result).Inc()
}

func (m *Metrics) refreshed(path, result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(path, result).Inc()
}

func (m *Metrics) degraded() {
	if m == nil {
		return
	}
	m.degradedResolves.Inc()
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("hit").Inc()
}

func (m *Metrics) cacheMiss() {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("miss").Inc()
}

func (m *Metrics) revoked() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}

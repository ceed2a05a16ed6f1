package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the custody service.
type Metrics struct {
	DocumentsIngested prometheus.Counter
	DocumentsAttested prometheus.Counter
	DocumentsDeleted  prometheus.Counter
	Disclosures       prometheus.Counter
	// Verifications is labeled by result: valid, unsigned, tampered, signature_invalid.
	Verifications *prometheus.CounterVec
	// OTPOutcomes is labeled by outcome: issued, verified, mismatch,
	// exhausted, expired, missing.
	OTPOutcomes *prometheus.CounterVec
	Lockouts    prometheus.Counter
	// AuthzDenials is labeled by the denied action.
	AuthzDenials *prometheus.CounterVec
	// AccessRequests is labeled by the transition: created, approved, rejected.
	AccessRequests *prometheus.CounterVec
	CryptoDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "custody_documents_ingested_total",
			Help: "Total number of documents encrypted and stored",
		}),
		DocumentsAttested: f.NewCounter(prometheus.CounterOpts{
			Name: "custody_documents_attested_total",
			Help: "Total number of custodian attestations",
		}),
		DocumentsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "custody_documents_deleted_total",
			Help: "Total number of documents deleted",
		}),
		Disclosures: f.NewCounter(prometheus.CounterOpts{
			Name: "custody_disclosures_total",
			Help: "Total number of decrypted document disclosures",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_verifications_total",
			Help: "Verification verdicts by result",
		}, []string{"result"}),
		OTPOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_otp_outcomes_total",
			Help: "One-time code lifecycle outcomes",
		}, []string{"outcome"}),
		Lockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "custody_auth_lockouts_total",
			Help: "Identities locked out after repeated credential failures",
		}),
		AuthzDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_authorization_denials_total",
			Help: "Authorization denials by action",
		}, []string{"action"}),
		AccessRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_access_requests_total",
			Help: "Access request transitions",
		}, []string{"transition"}),
		CryptoDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custody_crypto_duration_seconds",
			Help:    "Latency of cryptographic pipeline steps",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"op"}),
	}
}

func (m *Metrics) IncrementIngested() { m.DocumentsIngested.Inc() }
func (m *Metrics) IncrementAttested() { m.DocumentsAttested.Inc() }
func (m *Metrics) IncrementDeleted()  { m.DocumentsDeleted.Inc() }
func (m *Metrics) IncrementDisclosed() {
	m.Disclosures.Inc()
}

func (m *Metrics) ObserveVerification(result string) {
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOTP(outcome string) {
	m.OTPOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLockouts() { m.Lockouts.Inc() }

func (m *Metrics) ObserveDenial(action string) {
	m.AuthzDenials.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveAccessRequest(transition string) {
	m.AccessRequests.WithLabelValues(transition).Inc()
}

func (m *Metrics) ObserveCrypto(op string, seconds float64) {
	m.CryptoDuration.WithLabelValues(op).Observe(seconds)
}

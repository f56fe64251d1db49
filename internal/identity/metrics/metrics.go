package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	AuthenticationsTotal *prometheus.CounterVec
	VerificationsTotal   *prometheus.CounterVec
	RegistrationsTotal   prometheus.Counter
	TokensRevokedTotal   prometheus.Counter
}

// New registers the identity metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AuthenticationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskguard_identity_authentications_total",
			Help: "Authentication attempts by result",
		}, []string{"result"}), // success, invalid_credentials, error

		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskguard_identity_token_verifications_total",
			Help: "Token verifications by result",
		}, []string{"result"}), // valid, expired_token, malformed_token, revoked_token, error

		RegistrationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "taskguard_identity_registrations_total",
			Help: "Principals registered",
		}),

		TokensRevokedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "taskguard_identity_tokens_revoked_total",
			Help: "Tokens added to the revocation list",
		}),
	}
}

func (m *Metrics) IncrementAuthentication(result string) {
	if m != nil {
		m.AuthenticationsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementVerification(result string) {
	if m != nil {
		m.VerificationsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementRegistration() {
	if m != nil {
		m.RegistrationsTotal.Inc()
	}
}

func (m *Metrics) IncrementTokenRevoked() {
	if m != nil {
		m.TokensRevokedTotal.Inc()
	}
}

// Package metrics exposes prometheus counters for the validator's
// consensus, signing, and finalization pipeline, and a /metrics endpoint
// for scraping alongside the health check.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the counters a single party process increments over
// its lifetime. All counters are labeled by dest_chain where a session
// can target more than one destination.
type Registry struct {
	SessionsStarted  *prometheus.CounterVec
	SessionsWon      *prometheus.CounterVec
	ProposalsSent    *prometheus.CounterVec
	Responses        *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	SignaturesMade   *prometheus.CounterVec
	Finalizations    *prometheus.CounterVec
	FinalizeFailures *prometheus.CounterVec
}

// New registers and returns a Registry against reg. Callers pass a fresh
// *prometheus.Registry in tests and prometheus.DefaultRegisterer in
// cmd/party.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "consensus",
			Name:      "sessions_started_total",
			Help:      "Sessions this party has run, by destination chain and role.",
		}, []string{"dest_chain", "role"}),
		SessionsWon: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "consensus",
			Name:      "sessions_won_total",
			Help:      "Sessions this party produced an agreed signer set for, by destination chain.",
		}, []string{"dest_chain"}),
		ProposalsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "consensus",
			Name:      "proposals_sent_total",
			Help:      "Proposals broadcast while acting as leader, by destination chain.",
		}, []string{"dest_chain"}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "consensus",
			Name:      "responses_total",
			Help:      "Acceptor responses sent, by destination chain and whether accepted.",
		}, []string{"dest_chain", "accepted"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "consensus",
			Name:      "rejections_total",
			Help:      "Acceptor rejections sent, by reason.",
		}, []string{"dest_chain", "reason"}),
		SignaturesMade: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "signing",
			Name:      "signatures_total",
			Help:      "TSS group signatures this party participated in producing, by destination chain.",
		}, []string{"dest_chain"}),
		Finalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "finalize",
			Name:      "finalizations_total",
			Help:      "Withdrawals landed on their destination chain, by destination chain and outcome.",
		}, []string{"dest_chain", "outcome"}),
		FinalizeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "finalize",
			Name:      "finalize_failures_total",
			Help:      "Withdrawal submissions that failed and were reverted to pending, by destination chain.",
		}, []string{"dest_chain"}),
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

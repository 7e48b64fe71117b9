// Package metrics defines Prometheus metrics for the distributor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistrationsTotal counts successful registrations by method (self, trusted, admin)
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beercoin_registrations_total",
			Help: "Total number of successful user registrations",
		},
		[]string{"method"},
	)

	// ClaimsTotal counts reward claims by outcome
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beercoin_claims_total",
			Help: "Total number of reward claim settlements",
		},
		[]string{"status"},
	)

	// ClaimAmount tracks the token amount settled per claim
	ClaimAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beercoin_claim_amount",
			Help:    "Token amount settled per claim",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 100, 1000, 10000},
		},
	)

	// TokensMinted counts total tokens ever minted
	TokensMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beercoin_tokens_minted_total",
			Help: "Total token amount minted",
		},
	)

	// TokensBurned counts total tokens ever burned
	TokensBurned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beercoin_tokens_burned_total",
			Help: "Total token amount burned",
		},
	)

	// TransfersTotal counts ledger transfers
	TransfersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beercoin_transfers_total",
			Help: "Total number of token transfers",
		},
	)

	// KicksTotal counts user deactivations
	KicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beercoin_kicks_total",
			Help: "Total number of kicked users",
		},
	)
)

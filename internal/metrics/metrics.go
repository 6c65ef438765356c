package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks adapter attempts per task, provider and outcome
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genroute_attempts_total",
			Help: "Total number of generation attempts",
		},
		[]string{"task", "provider", "model", "outcome"},
	)

	// CooldownsTotal tracks provider quarantines
	CooldownsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genroute_cooldowns_total",
			Help: "Total number of provider cooldowns set",
		},
		[]string{"provider"},
	)

	// CooldownSkipsTotal tracks candidates skipped because their provider was cooling down
	CooldownSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genroute_cooldown_skips_total",
			Help: "Total number of candidates skipped due to an active cooldown",
		},
		[]string{"provider"},
	)

	// GenerationLatency tracks adapter call latency
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genroute_generation_latency_seconds",
			Help:    "Generation call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	// RotationAdvances tracks round-robin cursor advances per tier
	RotationAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genroute_rotation_advances_total",
			Help: "Total number of rotation cursor advances",
		},
		[]string{"tier"},
	)
)

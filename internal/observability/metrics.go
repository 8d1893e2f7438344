package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers the operator-visible signals of the settlement engine.
// ConflictingFinality and CompensationFailures are the two alert-grade
// counters: both mean the ledger may disagree with the chain.
type Metrics struct {
	SettlementsTotal            *prometheus.CounterVec
	CompensationFailures        prometheus.Counter
	ConflictingFinality         prometheus.Counter
	LiquidationRetriesExhausted prometheus.Counter
	SweepRowFailures            prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credlend",
			Name:      "settlements_total",
			Help:      "Terminal settlement outcomes by purpose and status.",
		}, []string{"purpose", "status"}),
		CompensationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credlend",
			Name:      "compensation_failures_total",
			Help:      "Compensating rollbacks that themselves failed; ledger may be inconsistent with the chain.",
		}),
		ConflictingFinality: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credlend",
			Name:      "conflicting_finality_total",
			Help:      "Reconciliation events that disagreed on a transaction's terminal outcome.",
		}),
		LiquidationRetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credlend",
			Name:      "liquidation_retries_exhausted_total",
			Help:      "Defaulted loans whose liquidation attempts hit the configured maximum.",
		}),
		SweepRowFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credlend",
			Name:      "sweep_row_failures_total",
			Help:      "Repayment rows the lifecycle sweeper skipped due to errors.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SettlementsTotal,
			m.CompensationFailures,
			m.ConflictingFinality,
			m.LiquidationRetriesExhausted,
			m.SweepRowFailures,
		)
	}
	return m
}

// NewUnregistered is for tests that only need counter plumbing.
func NewUnregistered() *Metrics { return New(nil) }

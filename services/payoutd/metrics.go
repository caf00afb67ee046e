package payoutd

import "lendledger/observability"

// Metrics exposes Prometheus collectors for payout instrumentation.
type Metrics = observability.PayoutMetrics

// NewMetrics returns the lazily initialised payout collectors.
func NewMetrics() *Metrics { return observability.Payouts() }

package executor

import "github.com/prometheus/client_golang/prometheus"

// Safety-block guards, one label value per place execution can be refused
// before an order is ever sent.
const (
	GuardKillSwitch     = "kill_switch"
	GuardAccountState   = "account_state"
	GuardRiskGovernor   = "risk_governor"
	GuardCircuitBreaker = "circuit_breaker"
)

// safetyBlockRegistry is package-scoped rather than the global default
// registry: nothing in this binary serves an HTTP /metrics endpoint, so
// registering on prometheus.DefaultRegisterer would just leak counters no
// one scrapes. Keeping a private registry makes the counters inspectable by
// tests (and by anything that later wants to wire a /metrics handler)
// without depending on global registration order.
var safetyBlockRegistry = prometheus.NewRegistry()

var safetyBlockTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "decide_safety_block_total",
		Help: "Execution blocked by a safety check, labeled by the guard that blocked it.",
	},
	[]string{"guard"},
)

func init() {
	safetyBlockRegistry.MustRegister(safetyBlockTotal)
}

func incrementSafetyBlock(guard string) {
	safetyBlockTotal.WithLabelValues(guard).Inc()
}

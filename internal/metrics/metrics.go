// Package metrics defines the Prometheus metrics exported by calcd. It is
// the single source of truth for metric names, labels, and help strings.
// Collectors register themselves with the default registry at init; the
// health listener serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "calcserv"

// ConnectionsTotal counts accepted TCP connections.
var ConnectionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_total",
		Help:      "Total number of accepted client connections.",
	},
)

// ActiveSessions tracks currently running session loops.
var ActiveSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Number of client sessions currently connected.",
	},
)

// CommandsTotal counts processed requests.
// Labels:
//   - verb: the command verb, or "invalid" when no verb parsed
//   - outcome: "ok", "client_error" or "internal_error"
var CommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Total number of processed commands, by verb and outcome.",
	},
	[]string{"verb", "outcome"},
)

// CalcBalanceDebited counts balance units consumed by successful calcs.
var CalcBalanceDebited = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calc_balance_debited_total",
		Help:      "Total balance units debited by successful calc commands.",
	},
)

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Signal evaluation ticks processed"},
		[]string{"symbol"},
	)
	LockChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lock_changes_total", Help: "Signal lock direction changes"},
		[]string{"symbol", "direction"},
	)
	OrderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_attempts_total", Help: "Limit orders placed by the fill loop"},
		[]string{"symbol", "side"},
	)
	FilledSizeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "filled_size_total", Help: "Contracts filled across all order attempts"},
		[]string{"symbol", "side"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Completed trades by close reason"},
		[]string{"symbol", "reason"},
	)
	CumulativePnl = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "cumulative_pnl", Help: "Realized session pnl"},
		[]string{"symbol"},
	)
	PositionOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "position_open", Help: "1 while a position is open or being worked"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, LockChangesTotal, OrderAttemptsTotal, FilledSizeTotal, TradesTotal, CumulativePnl, PositionOpen)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

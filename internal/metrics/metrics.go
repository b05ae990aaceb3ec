// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floorline",
		Name:      "orders_created_total",
		Help:      "Orders committed by orders.create.",
	})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorline",
		Name:      "order_status_transitions_total",
		Help:      "Committed order status transitions by target status.",
	}, []string{"to"})

	ConflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorline",
		Name:      "optimistic_conflicts_total",
		Help:      "Version conflicts that forced a re-read and retry.",
	}, []string{"operation"})

	StockMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorline",
		Name:      "stock_movements_total",
		Help:      "Stock movements appended to the ledger by type.",
	}, []string{"type"})

	LowStockSignals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floorline",
		Name:      "low_stock_signals_total",
		Help:      "Inventory items that fell below minimum stock after a movement.",
	})

	IdempotentReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorline",
		Name:      "idempotent_replays_total",
		Help:      "Mutating commands answered from the idempotency registry.",
	}, []string{"operation"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "floorline",
		Name:      "websocket_clients",
		Help:      "Connected push channel clients.",
	})

	BrokerPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorline",
		Name:      "broker_publish_failures_total",
		Help:      "Change events that could not be forwarded to the broker.",
	}, []string{"broker"})
)

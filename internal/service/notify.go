package service

import (
	"context"
	"time"

	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/event"
	"github.com/floorline/api/internal/metrics"
	"github.com/google/uuid"
)

// Changes are collected while a transaction runs and published only after it
// commits, so subscribers never re-fetch state that was rolled back.
type changeSet []event.Change

func (cs *changeSet) order(typ string, orderID uuid.UUID, table int32) {
	*cs = append(*cs, event.Change{
		Type:        typ,
		Topics:      []string{enum.TopicOrders, event.TableTopic(table)},
		OrderID:     orderID.String(),
		TableNumber: table,
	})
}

func (cs *changeSet) table(number int32) {
	*cs = append(*cs, event.Change{
		Type:        enum.EventTableUpdated,
		Topics:      []string{enum.TopicTables, event.TableTopic(number)},
		TableNumber: number,
	})
}

func (cs *changeSet) stock(effects []stockEffect) {
	for _, e := range effects {
		if !e.low {
			continue
		}
		*cs = append(*cs, event.Change{
			Type:            enum.EventInventoryLowStock,
			Topics:          []string{enum.TopicInventory},
			InventoryItemID: e.itemID,
		})
	}
}

func (cs *changeSet) serviceRequest(typ string, id uuid.UUID, table int32) {
	*cs = append(*cs, event.Change{
		Type:             typ,
		Topics:           []string{enum.TopicServiceRequests, event.TableTopic(table)},
		ServiceRequestID: id.String(),
		TableNumber:      table,
	})
}

func (cs changeSet) publish(ctx context.Context, pub event.Publisher) {
	if pub == nil {
		return
	}
	now := time.Now()
	for _, c := range cs {
		if c.Type == enum.EventInventoryLowStock {
			metrics.LowStockSignals.Inc()
		}
		c.At = now
		pub.Publish(ctx, c)
	}
}

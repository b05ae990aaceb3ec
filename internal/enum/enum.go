package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusNew       = "new"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusServed    = "served"
	OrderStatusPaid      = "paid"
)

const (
	TableStatusAvailable     = "available"
	TableStatusOccupied      = "occupied"
	TableStatusReserved      = "reserved"
	TableStatusNeedsCleaning = "needs-cleaning"
)

const (
	ServiceRequestOpen     = "open"
	ServiceRequestResolved = "resolved"
)

// ── Group B: Ledger and queue labels (CHECK constrained in DB / local store) ──

const (
	MovementPurchase   = "purchase"
	MovementWaste      = "waste"
	MovementAdjustment = "adjustment"
	MovementOrder      = "order"
)

const (
	ServiceRequestCallWaiter  = "call_waiter"
	ServiceRequestRequestBill = "request_bill"
	ServiceRequestAssistance  = "assistance"
)

// Offline queue entry types. Each maps to one mutating RPC operation.
const (
	QueueOrderCreate    = "order.create"
	QueueStatusUpdate   = "order.updateStatus"
	QueueServiceRequest = "serviceRequest.create"
)

// ── Group C: Roles ──

const (
	RoleManager  = "MANAGER"
	RoleCashier  = "CASHIER"
	RoleWaiter   = "WAITER"
	RoleKitchen  = "KITCHEN"
	RoleCustomer = "CUSTOMER"
)

// ── Group D: Change events (push channel) ──

const (
	EventOrderCreated          = "order.created"
	EventOrderUpdated          = "order.updated"
	EventOrderDeleted          = "order.deleted"
	EventTableUpdated          = "table.updated"
	EventInventoryLowStock     = "inventory.low_stock"
	EventInventoryAdjusted     = "inventory.adjusted"
	EventServiceRequestCreated = "service_request.created"
	EventServiceRequestUpdated = "service_request.updated"
)

// Push channel topics. Per-table topics are "table:<n>", see event.TableTopic.
const (
	TopicOrders          = "orders"
	TopicTables          = "tables"
	TopicInventory       = "inventory"
	TopicServiceRequests = "service-requests"
)

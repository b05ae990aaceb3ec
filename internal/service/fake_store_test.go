package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- Mock transaction plumbing ---

// mockTx implements pgx.Tx. Rollback restores the fake database to the
// snapshot taken at Begin unless Commit ran first. The unused methods panic so
// we catch accidental calls.
type mockTx struct {
	db        *fakeDB
	snapshot  fakeState
	committed bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.db.commitErr != nil {
		return m.db.commitErr
	}
	m.committed = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error {
	if !m.committed {
		m.db.fakeState = m.snapshot
	}
	m.committed = true
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockPool implements Pool. Reads go straight to the fake store, so the
// DBTX methods are never used.
type mockPool struct {
	db       *fakeDB
	beginErr error
	begins   int
}

func (p *mockPool) Begin(ctx context.Context) (pgx.Tx, error) {
	p.begins++
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return &mockTx{db: p.db, snapshot: p.db.clone()}, nil
}
func (p *mockPool) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (p *mockPool) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (p *mockPool) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	panic("not implemented")
}

// --- In-memory store ---

type fakeState struct {
	menu      map[string]database.MenuItem
	recipes   map[string][]database.MenuItemIngredient
	inventory map[string]database.InventoryItem
	orders    map[uuid.UUID]database.Order
	lines     map[uuid.UUID]database.OrderLine
	statusLog []database.InsertOrderStatusLogParams
	tables    map[int32]database.RestaurantTable
	movements []database.StockMovement
	requests  map[uuid.UUID]database.ServiceRequest
	keys      map[string]database.IdempotencyKey
}

// fakeDB satisfies every store interface in this package. It mirrors the
// constraints of the real schema that the services rely on: the occupancy
// CHECK, the (order, menu item) unique index and version-conditional updates.
type fakeDB struct {
	fakeState
	clock     time.Time
	commitErr error

	// fail injects an error into the named method.
	fail map[string]error
	// before runs at the start of the named method, e.g. to simulate a
	// concurrent writer.
	before map[string]func()
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		fakeState: fakeState{
			menu:      map[string]database.MenuItem{},
			recipes:   map[string][]database.MenuItemIngredient{},
			inventory: map[string]database.InventoryItem{},
			orders:    map[uuid.UUID]database.Order{},
			lines:     map[uuid.UUID]database.OrderLine{},
			tables:    map[int32]database.RestaurantTable{},
			requests:  map[uuid.UUID]database.ServiceRequest{},
			keys:      map[string]database.IdempotencyKey{},
		},
		clock:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		fail:   map[string]error{},
		before: map[string]func(){},
	}
}

func (f *fakeDB) clone() fakeState {
	recipes := make(map[string][]database.MenuItemIngredient, len(f.recipes))
	for k, v := range f.recipes {
		recipes[k] = slices.Clone(v)
	}
	return fakeState{
		menu:      maps.Clone(f.menu),
		recipes:   recipes,
		inventory: maps.Clone(f.inventory),
		orders:    maps.Clone(f.orders),
		lines:     maps.Clone(f.lines),
		statusLog: slices.Clone(f.statusLog),
		tables:    maps.Clone(f.tables),
		movements: slices.Clone(f.movements),
		requests:  maps.Clone(f.requests),
		keys:      maps.Clone(f.keys),
	}
}

func (f *fakeDB) now() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

func (f *fakeDB) hook(name string) error {
	if fn := f.before[name]; fn != nil {
		fn()
	}
	return f.fail[name]
}

var errCheckViolation = &pgconn.PgError{Code: "23514", Message: "restaurant_tables occupancy check"}

// --- Seed helpers ---

func (f *fakeDB) addMenuItem(id, price string) {
	f.menu[id] = database.MenuItem{ID: id, Name: id, Price: makeNumeric(price), Available: true, CreatedAt: f.now()}
}

func (f *fakeDB) addIngredient(id, stock, minimum string) {
	f.inventory[id] = database.InventoryItem{
		ID:           id,
		Name:         id,
		Unit:         "g",
		CurrentStock: makeNumeric(stock),
		MinimumStock: makeNumeric(minimum),
		CostPerUnit:  makeNumeric("0"),
		Version:      1,
		UpdatedAt:    f.now(),
	}
}

func (f *fakeDB) addRecipe(menuItemID, inventoryItemID, qty string) {
	f.recipes[menuItemID] = append(f.recipes[menuItemID], database.MenuItemIngredient{
		MenuItemID:      menuItemID,
		InventoryItemID: inventoryItemID,
		QuantityNeeded:  makeNumeric(qty),
	})
}

func (f *fakeDB) addTable(number int32) {
	f.tables[number] = database.RestaurantTable{
		Number:    number,
		Status:    enum.TableStatusAvailable,
		Capacity:  4,
		UpdatedAt: f.now(),
	}
}

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func stockOf(f *fakeDB, id string) decimal.Decimal {
	return numericToDecimal(f.inventory[id].CurrentStock)
}

// --- IdempotencyStore ---

func (f *fakeDB) ClaimIdempotencyKey(ctx context.Context, arg database.ClaimIdempotencyKeyParams) (int64, error) {
	if err := f.hook("ClaimIdempotencyKey"); err != nil {
		return 0, err
	}
	if _, ok := f.keys[arg.Key]; ok {
		return 0, nil
	}
	f.keys[arg.Key] = database.IdempotencyKey{Key: arg.Key, Operation: arg.Operation, CreatedAt: f.now()}
	return 1, nil
}

func (f *fakeDB) GetIdempotencyKey(ctx context.Context, key string) (database.IdempotencyKey, error) {
	k, ok := f.keys[key]
	if !ok {
		return k, pgx.ErrNoRows
	}
	return k, nil
}

func (f *fakeDB) SaveIdempotencyResult(ctx context.Context, arg database.SaveIdempotencyResultParams) error {
	k := f.keys[arg.Key]
	k.Result = arg.Result
	f.keys[arg.Key] = k
	return nil
}

func (f *fakeDB) DeleteExpiredIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	if err := f.hook("DeleteExpiredIdempotencyKeys"); err != nil {
		return 0, err
	}
	var n int64
	for k, v := range f.keys {
		if v.CreatedAt.Before(before) {
			delete(f.keys, k)
			n++
		}
	}
	return n, nil
}

// --- InventoryStore ---

func (f *fakeDB) ListRecipeIngredients(ctx context.Context, menuItemID string) ([]database.MenuItemIngredient, error) {
	if err := f.hook("ListRecipeIngredients"); err != nil {
		return nil, err
	}
	return slices.Clone(f.recipes[menuItemID]), nil
}

func (f *fakeDB) GetInventoryItem(ctx context.Context, id string) (database.InventoryItem, error) {
	i, ok := f.inventory[id]
	if !ok {
		return i, pgx.ErrNoRows
	}
	return i, nil
}

func (f *fakeDB) ListInventoryItems(ctx context.Context) ([]database.InventoryItem, error) {
	out := slices.Collect(maps.Values(f.inventory))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDB) applyDelta(arg database.ApplyStockDeltaParams, nonNegative bool) (database.InventoryItem, error) {
	i, ok := f.inventory[arg.ID]
	if !ok {
		return i, pgx.ErrNoRows
	}
	next := numericToDecimal(i.CurrentStock).Add(numericToDecimal(arg.Delta))
	if nonNegative && next.IsNegative() {
		return database.InventoryItem{}, pgx.ErrNoRows
	}
	i.CurrentStock = decimalToNumeric(next)
	i.Version++
	i.UpdatedAt = f.now()
	f.inventory[arg.ID] = i
	return i, nil
}

func (f *fakeDB) ApplyStockDelta(ctx context.Context, arg database.ApplyStockDeltaParams) (database.InventoryItem, error) {
	if err := f.hook("ApplyStockDelta"); err != nil {
		return database.InventoryItem{}, err
	}
	return f.applyDelta(arg, false)
}

func (f *fakeDB) ApplyStockDeltaNonNegative(ctx context.Context, arg database.ApplyStockDeltaParams) (database.InventoryItem, error) {
	if err := f.hook("ApplyStockDeltaNonNegative"); err != nil {
		return database.InventoryItem{}, err
	}
	return f.applyDelta(arg, true)
}

func (f *fakeDB) CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error) {
	if err := f.hook("CreateStockMovement"); err != nil {
		return database.StockMovement{}, err
	}
	m := database.StockMovement{
		ID:              uuid.New(),
		InventoryItemID: arg.InventoryItemID,
		MovementType:    arg.MovementType,
		Quantity:        arg.Quantity,
		ReferenceID:     arg.ReferenceID,
		Notes:           arg.Notes,
		CreatedAt:       f.now(),
	}
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeDB) ListStockMovements(ctx context.Context, arg database.ListStockMovementsParams) ([]database.StockMovement, error) {
	var out []database.StockMovement
	for i := len(f.movements) - 1; i >= 0 && int32(len(out)) < arg.Limit; i-- {
		if f.movements[i].InventoryItemID == arg.InventoryItemID {
			out = append(out, f.movements[i])
		}
	}
	return out, nil
}

func (f *fakeDB) movementSum(id string) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range f.movements {
		if m.InventoryItemID == id {
			sum = sum.Add(numericToDecimal(m.Quantity))
		}
	}
	return sum
}

// --- TableStore ---

func (f *fakeDB) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if err := f.hook("GetOrder"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[id]
	if !ok {
		return o, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeDB) GetTable(ctx context.Context, number int32) (database.RestaurantTable, error) {
	t, ok := f.tables[number]
	if !ok {
		return t, pgx.ErrNoRows
	}
	return t, nil
}

func (f *fakeDB) GetTableForUpdate(ctx context.Context, number int32) (database.RestaurantTable, error) {
	return f.GetTable(ctx, number)
}

func (f *fakeDB) ListTables(ctx context.Context) ([]database.RestaurantTable, error) {
	out := slices.Collect(maps.Values(f.tables))
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *fakeDB) putTable(t database.RestaurantTable) (database.RestaurantTable, error) {
	if (t.Status == enum.TableStatusOccupied) != t.CurrentOrderID.Valid {
		return database.RestaurantTable{}, errCheckViolation
	}
	t.UpdatedAt = f.now()
	f.tables[t.Number] = t
	return t, nil
}

func (f *fakeDB) AssignTableOrder(ctx context.Context, arg database.AssignTableOrderParams) (database.RestaurantTable, error) {
	if err := f.hook("AssignTableOrder"); err != nil {
		return database.RestaurantTable{}, err
	}
	t, ok := f.tables[arg.Number]
	if !ok {
		return t, pgx.ErrNoRows
	}
	t.Status = enum.TableStatusOccupied
	t.CurrentOrderID = pgtype.UUID{Bytes: arg.OrderID, Valid: true}
	return f.putTable(t)
}

func (f *fakeDB) ReleaseTableOrder(ctx context.Context, arg database.ReleaseTableOrderParams) (database.RestaurantTable, error) {
	t, ok := f.tables[arg.Number]
	if !ok || !t.CurrentOrderID.Valid || uuid.UUID(t.CurrentOrderID.Bytes) != arg.OrderID {
		return database.RestaurantTable{}, pgx.ErrNoRows
	}
	t.Status = arg.Status
	t.CurrentOrderID = pgtype.UUID{}
	t.ReservedFor = pgtype.Text{}
	return f.putTable(t)
}

func (f *fakeDB) SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) (database.RestaurantTable, error) {
	t, ok := f.tables[arg.Number]
	if !ok {
		return t, pgx.ErrNoRows
	}
	t.Status = arg.Status
	t.CurrentOrderID = arg.CurrentOrderID
	t.ReservedFor = arg.ReservedFor
	if arg.MarkCleaned {
		t.LastCleaned = pgtype.Timestamptz{Time: f.now(), Valid: true}
	}
	return f.putTable(t)
}

// --- OrderStore ---

func (f *fakeDB) GetMenuItemForOrder(ctx context.Context, id string) (database.MenuItem, error) {
	m, ok := f.menu[id]
	if !ok {
		return m, pgx.ErrNoRows
	}
	return m, nil
}

func (f *fakeDB) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if err := f.hook("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	now := f.now()
	o := database.Order{
		ID:          uuid.New(),
		TableNumber: arg.TableNumber,
		Status:      enum.OrderStatusNew,
		Total:       makeNumeric("0"),
		WaiterName:  arg.WaiterName,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeDB) CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error) {
	if err := f.hook("CreateOrderLine"); err != nil {
		return database.OrderLine{}, err
	}
	for _, l := range f.lines {
		if l.OrderID == arg.OrderID && l.MenuItemID == arg.MenuItemID {
			return database.OrderLine{}, &pgconn.PgError{Code: "23505"}
		}
	}
	l := database.OrderLine{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		MenuItemID: arg.MenuItemID,
		Quantity:   arg.Quantity,
		Notes:      arg.Notes,
		UnitPrice:  arg.UnitPrice,
		CreatedAt:  f.now(),
	}
	f.lines[l.ID] = l
	return l, nil
}

func (f *fakeDB) GetOrderLine(ctx context.Context, id uuid.UUID) (database.OrderLine, error) {
	l, ok := f.lines[id]
	if !ok {
		return l, pgx.ErrNoRows
	}
	return l, nil
}

func (f *fakeDB) GetOrderLineByItem(ctx context.Context, arg database.GetOrderLineByItemParams) (database.OrderLine, error) {
	if err := f.hook("GetOrderLineByItem"); err != nil {
		return database.OrderLine{}, err
	}
	for _, l := range f.lines {
		if l.OrderID == arg.OrderID && l.MenuItemID == arg.MenuItemID {
			return l, nil
		}
	}
	return database.OrderLine{}, pgx.ErrNoRows
}

func sortLines(ls []database.OrderLine) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].CreatedAt.Before(ls[j].CreatedAt) })
}

func (f *fakeDB) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]database.OrderLine, error) {
	out := []database.OrderLine{}
	for _, l := range f.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sortLines(out)
	return out, nil
}

func (f *fakeDB) ListActiveOrderLines(ctx context.Context) ([]database.OrderLine, error) {
	out := []database.OrderLine{}
	for _, l := range f.lines {
		if f.orders[l.OrderID].Status != enum.OrderStatusPaid {
			out = append(out, l)
		}
	}
	sortLines(out)
	return out, nil
}

func (f *fakeDB) AddOrderLineQuantity(ctx context.Context, arg database.AddOrderLineQuantityParams) (database.OrderLine, error) {
	l, ok := f.lines[arg.ID]
	if !ok {
		return l, pgx.ErrNoRows
	}
	l.Quantity += arg.Delta
	f.lines[l.ID] = l
	return l, nil
}

func (f *fakeDB) SetOrderLineQuantity(ctx context.Context, arg database.SetOrderLineQuantityParams) (database.OrderLine, error) {
	l, ok := f.lines[arg.ID]
	if !ok {
		return l, pgx.ErrNoRows
	}
	l.Quantity = arg.Quantity
	f.lines[l.ID] = l
	return l, nil
}

func (f *fakeDB) DeleteOrderLine(ctx context.Context, id uuid.UUID) error {
	delete(f.lines, id)
	return nil
}

func (f *fakeDB) CountOrderLines(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	for _, l := range f.lines {
		if l.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) lineTotal(orderID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, l := range f.lines {
		if l.OrderID == orderID {
			total = total.Add(numericToDecimal(l.UnitPrice).Mul(decimal.NewFromInt32(l.Quantity)))
		}
	}
	return total
}

func (f *fakeDB) RecalculateOrderTotal(ctx context.Context, arg database.RecalculateOrderTotalParams) (database.Order, error) {
	if err := f.hook("RecalculateOrderTotal"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[arg.ID]
	if !ok || o.Version != arg.Version {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Total = decimalToNumeric(f.lineTotal(o.ID))
	o.Version++
	o.UpdatedAt = f.now()
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeDB) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if err := f.hook("UpdateOrderStatus"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[arg.ID]
	if !ok || o.Version != arg.Version {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.Version++
	o.UpdatedAt = f.now()
	if arg.Status == enum.OrderStatusPaid {
		o.PaidAt = pgtype.Timestamptz{Time: o.UpdatedAt, Valid: true}
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeDB) DeleteOrder(ctx context.Context, arg database.DeleteOrderParams) (int64, error) {
	o, ok := f.orders[arg.ID]
	if !ok || o.Version != arg.Version {
		return 0, nil
	}
	// ON DELETE SET NULL on restaurant_tables.current_order_id trips the
	// occupancy CHECK if the table still points here.
	for _, t := range f.tables {
		if t.CurrentOrderID.Valid && uuid.UUID(t.CurrentOrderID.Bytes) == arg.ID {
			return 0, errCheckViolation
		}
	}
	delete(f.orders, arg.ID)
	for id, l := range f.lines {
		if l.OrderID == arg.ID {
			delete(f.lines, id)
		}
	}
	return 1, nil
}

func (f *fakeDB) ListActiveOrders(ctx context.Context) ([]database.Order, error) {
	out := []database.Order{}
	for _, o := range f.orders {
		if o.Status != enum.OrderStatusPaid {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeDB) ListPaidOrders(ctx context.Context, arg database.ListPaidOrdersParams) ([]database.Order, error) {
	out := []database.Order{}
	for _, o := range f.orders {
		if o.Status != enum.OrderStatusPaid {
			continue
		}
		if arg.FromDate.Valid && o.PaidAt.Time.Before(arg.FromDate.Time) {
			continue
		}
		if arg.ToDate.Valid && !o.PaidAt.Time.Before(arg.ToDate.Time) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Time.After(out[j].PaidAt.Time) })
	if int32(len(out)) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (f *fakeDB) InsertOrderStatusLog(ctx context.Context, arg database.InsertOrderStatusLogParams) error {
	f.statusLog = append(f.statusLog, arg)
	return nil
}

// --- ServiceRequestStore ---

func (f *fakeDB) CreateServiceRequest(ctx context.Context, arg database.CreateServiceRequestParams) (database.ServiceRequest, error) {
	r := database.ServiceRequest{
		ID:          uuid.New(),
		TableNumber: arg.TableNumber,
		Kind:        arg.Kind,
		Notes:       arg.Notes,
		Status:      enum.ServiceRequestOpen,
		CreatedAt:   f.now(),
	}
	f.requests[r.ID] = r
	return r, nil
}

func (f *fakeDB) ListOpenServiceRequests(ctx context.Context) ([]database.ServiceRequest, error) {
	out := []database.ServiceRequest{}
	for _, r := range f.requests {
		if r.Status == enum.ServiceRequestOpen {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeDB) ResolveServiceRequest(ctx context.Context, id uuid.UUID) (database.ServiceRequest, error) {
	r, ok := f.requests[id]
	if !ok || r.Status != enum.ServiceRequestOpen {
		return database.ServiceRequest{}, pgx.ErrNoRows
	}
	r.Status = enum.ServiceRequestResolved
	r.ResolvedAt = pgtype.Timestamptz{Time: f.now(), Valid: true}
	f.requests[id] = r
	return r, nil
}

func (f *fakeDB) GetServiceRequest(ctx context.Context, id uuid.UUID) (database.ServiceRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return r, pgx.ErrNoRows
	}
	return r, nil
}

// --- Wiring ---

var errDBDown = errors.New("connection refused")

func newTestPool() (*mockPool, *fakeDB) {
	db := newFakeDB()
	return &mockPool{db: db}, db
}

func orderStoreFor(db *fakeDB) NewOrderStore {
	return func(database.DBTX) OrderStore { return db }
}

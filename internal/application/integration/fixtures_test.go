package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/erp/crmsync/internal/domain/integration"
)

// =============================================================================
// Mock source
// =============================================================================

// MockSourceClient is a mock implementation of integration.SourceClient
type MockSourceClient struct {
	mock.Mock
}

func (m *MockSourceClient) FetchCustomers(ctx context.Context, filter string) ([]integration.Customer, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Customer), args.Error(1)
}

func (m *MockSourceClient) FetchQuotes(ctx context.Context, filter string) ([]integration.Quote, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Quote), args.Error(1)
}

func (m *MockSourceClient) FetchOrders(ctx context.Context, filter string) ([]integration.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Order), args.Error(1)
}

func (m *MockSourceClient) GetOrderByQuote(ctx context.Context, quoteNum int64) (*integration.Order, error) {
	args := m.Called(ctx, quoteNum)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Order), args.Error(1)
}

// =============================================================================
// In-memory CRM
// =============================================================================

type association struct {
	From   integration.ObjectType
	FromID string
	To     integration.ObjectType
	ToID   string
	Kind   integration.AssociationKind
}

// fakeCRM stores records as flat property maps, the way the CRM does
type fakeCRM struct {
	mu      sync.Mutex
	nextID  int
	records map[integration.ObjectType]map[string]map[string]string
	assocs  map[association]struct{}
	calls   map[string]int

	// failOn returns an error to inject for an operation on an object type
	failOn func(op string, objectType integration.ObjectType, props map[string]string) error
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		nextID:  100,
		records: make(map[integration.ObjectType]map[string]map[string]string),
		assocs:  make(map[association]struct{}),
		calls:   make(map[string]int),
	}
}

func (f *fakeCRM) inject(op string, objectType integration.ObjectType, props map[string]string) error {
	f.calls[op+":"+string(objectType)]++
	if f.failOn == nil {
		return nil
	}
	return f.failOn(op, objectType, props)
}

func (f *fakeCRM) FindByNaturalKey(_ context.Context, objectType integration.ObjectType, property, value string, _ ...string) (*integration.CRMRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.inject("search", objectType, map[string]string{property: value}); err != nil {
		return nil, err
	}
	for id, props := range f.records[objectType] {
		if props[property] == value {
			return &integration.CRMRecord{ID: id, Properties: copyProps(props)}, nil
		}
	}
	return nil, nil
}

func (f *fakeCRM) Create(_ context.Context, objectType integration.ObjectType, properties any) (*integration.CRMRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props := integration.PropertyMap(properties)
	if err := f.inject("create", objectType, props); err != nil {
		return nil, err
	}
	f.nextID++
	id := fmt.Sprint(f.nextID)
	if f.records[objectType] == nil {
		f.records[objectType] = make(map[string]map[string]string)
	}
	f.records[objectType][id] = props
	return &integration.CRMRecord{ID: id, Properties: copyProps(props)}, nil
}

func (f *fakeCRM) Update(_ context.Context, objectType integration.ObjectType, id string, properties any) (*integration.CRMRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props := integration.PropertyMap(properties)
	if err := f.inject("update", objectType, props); err != nil {
		return nil, err
	}
	stored, ok := f.records[objectType][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", objectType, id, integration.ErrCRMRequestFailed)
	}
	for k, v := range props {
		stored[k] = v
	}
	return &integration.CRMRecord{ID: id, Properties: copyProps(stored)}, nil
}

func (f *fakeCRM) Associate(_ context.Context, from integration.ObjectType, fromID string, to integration.ObjectType, toID string, kind integration.AssociationKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.inject("associate", from, nil); err != nil {
		return err
	}
	f.assocs[association{from, fromID, to, toID, kind}] = struct{}{}
	return nil
}

// seed stores a record directly and returns its id
func (f *fakeCRM) seed(objectType integration.ObjectType, props map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprint(f.nextID)
	if f.records[objectType] == nil {
		f.records[objectType] = make(map[string]map[string]string)
	}
	f.records[objectType][id] = props
	return id
}

func (f *fakeCRM) find(objectType integration.ObjectType, property, value string) (string, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, props := range f.records[objectType] {
		if props[property] == value {
			return id, copyProps(props)
		}
	}
	return "", nil
}

func (f *fakeCRM) count(objectType integration.ObjectType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[objectType])
}

func (f *fakeCRM) associated(from integration.ObjectType, fromID string, to integration.ObjectType, toID string, kind integration.AssociationKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.assocs[association{from, fromID, to, toID, kind}]
	return ok
}

// withProperty counts records of a type that carry the property
func (f *fakeCRM) withProperty(objectType integration.ObjectType, property string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, props := range f.records[objectType] {
		if props[property] != "" {
			n++
		}
	}
	return n
}

// associationsFrom counts stored associations of a kind leaving a record
func (f *fakeCRM) associationsFrom(from integration.ObjectType, fromID string, kind integration.AssociationKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for a := range f.assocs {
		if a.From == from && a.FromID == fromID && a.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeCRM) callCount(op string, objectType integration.ObjectType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+":"+string(objectType)]
}

func copyProps(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// =============================================================================
// Builders
// =============================================================================

var testNow = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func i64(v int64) *int64 { return &v }

func str(v string) *string { return &v }

func flag(v bool) *bool { return &v }

func dec(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func testTransformer() *integration.Transformer {
	return integration.NewTransformer(integration.Pipelines{
		QuotesPipelineID: "quotes-pipeline",
		OrdersPipelineID: "orders-pipeline",
	}, nil)
}

func testDeps(source integration.SourceClient, crm integration.CRMClient, sink integration.FailureSink) Dependencies {
	return Dependencies{
		Source:      source,
		CRM:         crm,
		Transformer: testTransformer(),
		Failures:    sink,
	}
}

func customer(num int64, name string) integration.Customer {
	return integration.Customer{CustNum: i64(num), CustID: str(fmt.Sprintf("C%d", num)), Name: str(name)}
}

func quote(num, custNum int64, lines ...integration.QuoteLine) integration.Quote {
	return integration.Quote{
		QuoteNum:  i64(num),
		CustNum:   i64(custNum),
		EntryDate: str("2024-03-01T00:00:00"),
		QuoteAmt:  dec("100.00"),
		QuoteDtls: lines,
	}
}

func quoteLine(quoteNum, line int64, part string) integration.QuoteLine {
	return integration.QuoteLine{
		QuoteNum:     i64(quoteNum),
		QuoteLine:    i64(line),
		PartNum:      str(part),
		LineDesc:     str("Widget"),
		OrderQty:     dec("2"),
		ExpUnitPrice: dec("5.00"),
		ExtPriceDtl:  dec("10.00"),
	}
}

func order(num, custNum int64, lines ...integration.OrderLine) integration.Order {
	return integration.Order{
		OrderNum:  i64(num),
		CustNum:   i64(custNum),
		OpenOrder: flag(true),
		OrderDate: str("2024-04-01T00:00:00"),
		OrderAmt:  dec("100.00"),
		OrderDtls: lines,
	}
}

func orderLine(orderNum, line int64, part string) integration.OrderLine {
	return integration.OrderLine{
		OrderNum:    i64(orderNum),
		OrderLine:   i64(line),
		PartNum:     str(part),
		LineDesc:    str("Widget"),
		OrderQty:    dec("1"),
		UnitPrice:   dec("10.00"),
		ExtPriceDtl: dec("10.00"),
	}
}

package integration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/crmsync/internal/domain/integration"
)

func newTestReconciler(crm integration.CRMClient, sink integration.FailureSink) *LineItemReconciler {
	return NewLineItemReconciler(crm, testTransformer(), sink, nil)
}

func TestLineItemReconciler_CreatesProductsAndLines(t *testing.T) {
	crm := newFakeCRM()
	sink := NewMemoryFailureReport()
	r := newTestReconciler(crm, sink)
	ctx := context.Background()

	lines := []integration.QuoteLine{quoteLine(500, 1, "WIDGET-1"), quoteLine(500, 2, "WIDGET-1")}
	summary := r.SyncQuoteLines(ctx, "deal-1", lines, 500)

	assert.Equal(t, integration.LineSyncSummary{Created: 2, ProductsCreated: 1}, summary)
	assert.Equal(t, 1, crm.count(integration.ObjectTypeProduct))
	assert.Equal(t, 2, crm.count(integration.ObjectTypeLineItem))
	assert.Equal(t, 1, r.CachedProducts())
	assert.Zero(t, sink.Count())

	id, props := crm.find(integration.ObjectTypeLineItem, integration.KeyLineItemID, "Q500-1")
	require.NotEmpty(t, id)
	assert.Equal(t, "WIDGET-1", props["sku"])
	assert.Equal(t, "WIDGET-1 Widget", props["name"])
	assert.Equal(t, "2", props["quantity"])
	assert.True(t, crm.associated(integration.ObjectTypeLineItem, id, integration.ObjectTypeDeal, "deal-1", integration.AssociationLineItemToDeal))
}

func TestLineItemReconciler_SecondPassUpdates(t *testing.T) {
	crm := newFakeCRM()
	r := newTestReconciler(crm, nil)
	ctx := context.Background()
	lines := []integration.OrderLine{orderLine(900, 1, "BOLT")}

	first := r.SyncOrderLines(ctx, "deal-9", lines, 900)
	assert.Equal(t, 1, first.Created)

	lines[0].OrderQty = dec("3")
	second := r.SyncOrderLines(ctx, "deal-9", lines, 900)

	assert.Equal(t, integration.LineSyncSummary{Updated: 1}, second)
	assert.Equal(t, 1, crm.count(integration.ObjectTypeLineItem))
	assert.Equal(t, 1, crm.count(integration.ObjectTypeProduct))
	assert.Equal(t, 1, crm.callCount("search", integration.ObjectTypeProduct), "product lookups are cached for the run")

	_, props := crm.find(integration.ObjectTypeLineItem, integration.KeyLineItemID, "O900-1")
	assert.Equal(t, "3", props["quantity"])
}

func TestLineItemReconciler_MissingQuantityAndAmount(t *testing.T) {
	crm := newFakeCRM()
	r := newTestReconciler(crm, nil)

	line := quoteLine(500, 3, "NUT")
	line.OrderQty = decimal.NullDecimal{}
	line.ExtPriceDtl = decimal.NullDecimal{}
	line.ExpUnitPrice = decimal.NullDecimal{}

	summary := r.SyncQuoteLines(context.Background(), "deal-1", []integration.QuoteLine{line}, 500)
	assert.Equal(t, 1, summary.Created)

	_, props := crm.find(integration.ObjectTypeLineItem, integration.KeyLineItemID, "Q500-3")
	assert.Equal(t, "1", props["quantity"])
	assert.NotContains(t, props, "amount")
	assert.NotContains(t, props, "price")

	_, product := crm.find(integration.ObjectTypeProduct, integration.KeyProductSKU, "NUT")
	assert.NotContains(t, product, "price")
}

func TestLineItemReconciler_SkipsLinesWithoutKeys(t *testing.T) {
	crm := newFakeCRM()
	r := newTestReconciler(crm, nil)

	noPart := quoteLine(500, 1, "")
	noPart.PartNum = nil
	blankPart := quoteLine(500, 2, "   ")
	noLine := quoteLine(500, 0, "WIDGET")
	noLine.QuoteLine = nil

	summary := r.SyncQuoteLines(context.Background(), "deal-1", []integration.QuoteLine{noPart, blankPart, noLine}, 500)

	assert.Equal(t, 3, summary.Skipped)
	assert.Zero(t, crm.count(integration.ObjectTypeLineItem))
	assert.Zero(t, crm.count(integration.ObjectTypeProduct))
}

func TestLineItemReconciler_ProductFailureStillWritesLine(t *testing.T) {
	crm := newFakeCRM()
	crm.failOn = func(op string, objectType integration.ObjectType, _ map[string]string) error {
		if op == "create" && objectType == integration.ObjectTypeProduct {
			return errors.New("product property missing")
		}
		return nil
	}
	sink := NewMemoryFailureReport()
	r := newTestReconciler(crm, sink)

	summary := r.SyncQuoteLines(context.Background(), "deal-1", []integration.QuoteLine{quoteLine(500, 1, "WIDGET")}, 500)

	assert.Equal(t, integration.LineSyncSummary{Created: 1}, summary)
	failures := sink.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, integration.EntityTypeProduct, failures[0].Entity)
	assert.Equal(t, integration.FailureKindProduct, failures[0].Kind)
	assert.Equal(t, "WIDGET", failures[0].EntityID)
}

func TestLineItemReconciler_LineFailureIsolated(t *testing.T) {
	crm := newFakeCRM()
	crm.failOn = func(op string, objectType integration.ObjectType, props map[string]string) error {
		if op == "create" && objectType == integration.ObjectTypeLineItem && props[integration.KeyLineItemID] == "Q500-1" {
			return integration.ErrCRMRequestFailed
		}
		return nil
	}
	sink := NewMemoryFailureReport()
	r := newTestReconciler(crm, sink)

	lines := []integration.QuoteLine{quoteLine(500, 1, "A"), quoteLine(500, 2, "B")}
	summary := r.SyncQuoteLines(context.Background(), "deal-1", lines, 500)

	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Created)
	failures := sink.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, integration.EntityTypeLineItem, failures[0].Entity)
	assert.Equal(t, "Q500-1", failures[0].EntityID)
	assert.Equal(t, integration.OperationCreate, failures[0].Operation)
}

func TestLineItemReconciler_AssociationFailureIsWarning(t *testing.T) {
	crm := newFakeCRM()
	crm.failOn = func(op string, objectType integration.ObjectType, _ map[string]string) error {
		if op == "associate" && objectType == integration.ObjectTypeLineItem {
			return errors.New("association rejected")
		}
		return nil
	}
	sink := NewMemoryFailureReport()
	r := newTestReconciler(crm, sink)

	summary := r.SyncQuoteLines(context.Background(), "deal-1", []integration.QuoteLine{quoteLine(500, 1, "A")}, 500)

	assert.Equal(t, 1, summary.Created)
	failures := sink.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, integration.FailureKindAssociation, failures[0].Kind)
}

// foldingCRM matches keys case-insensitively, the way CRM string search does
type foldingCRM struct{ *fakeCRM }

func (f foldingCRM) FindByNaturalKey(_ context.Context, objectType integration.ObjectType, property, value string, _ ...string) (*integration.CRMRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, props := range f.records[objectType] {
		if strings.EqualFold(props[property], value) {
			return &integration.CRMRecord{ID: id, Properties: copyProps(props)}, nil
		}
	}
	return nil, nil
}

func TestLineItemReconciler_ForeignKeyMatchIsSkipped(t *testing.T) {
	crm := newFakeCRM()
	foreignID := crm.seed(integration.ObjectTypeLineItem, map[string]string{
		integration.KeyLineItemID: "q500-1",
		"quantity":                "9",
	})
	sink := NewMemoryFailureReport()
	r := newTestReconciler(foldingCRM{crm}, sink)

	lines := []integration.QuoteLine{quoteLine(500, 1, "A"), quoteLine(500, 2, "B")}
	summary := r.SyncQuoteLines(context.Background(), "deal-1", lines, 500)

	assert.Equal(t, integration.LineSyncSummary{Created: 1, Skipped: 1, ProductsCreated: 2}, summary)
	assert.Equal(t, 2, crm.count(integration.ObjectTypeLineItem))
	_, props := crm.find(integration.ObjectTypeLineItem, integration.KeyLineItemID, "q500-1")
	assert.Equal(t, "9", props["quantity"])
	assert.False(t, crm.associated(integration.ObjectTypeLineItem, foreignID, integration.ObjectTypeDeal, "deal-1", integration.AssociationLineItemToDeal))

	failures := sink.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "Q500-1", failures[0].EntityID)
	assert.Equal(t, integration.OperationLookup, failures[0].Operation)
	assert.Equal(t, integration.FailureKindValidation, failures[0].Kind)
	assert.Contains(t, failures[0].Message, `"q500-1"`)
}

func TestMatchLineID(t *testing.T) {
	tests := []struct {
		name    string
		stored  map[string]string
		wantErr bool
	}{
		{"exact key", map[string]string{integration.KeyLineItemID: "Q500-1"}, false},
		{"key not returned", map[string]string{}, false},
		{"different case", map[string]string{integration.KeyLineItemID: "q500-1"}, true},
		{"other line", map[string]string{integration.KeyLineItemID: "Q500-2"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := matchLineID(&integration.CRMRecord{ID: "1", Properties: tt.stored}, "Q500-1")
			if tt.wantErr {
				assert.ErrorIs(t, err, integration.ErrInvalidLineID)
				return
			}
			assert.NoError(t, err)
		})
	}
}

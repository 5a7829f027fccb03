package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Transformer
// ---------------------------------------------------------------------------

// Pipelines holds the CRM deal pipeline ids quotes and orders are written to
type Pipelines struct {
	QuotesPipelineID string
	OrdersPipelineID string
}

// Transformer maps source records to CRM property bags. It performs no I/O.
type Transformer struct {
	pipelines   Pipelines
	owners      OwnerResolver
	phoneRegion string
	now         func() time.Time
}

// TransformerOption configures a Transformer
type TransformerOption func(*Transformer)

// WithClock overrides the clock used for epicor_last_sync_timestamp
func WithClock(now func() time.Time) TransformerOption {
	return func(t *Transformer) {
		t.now = now
	}
}

// DefaultPhoneRegion is the region of phone numbers without a country code
const DefaultPhoneRegion = "US"

// WithPhoneRegion sets the region used for phone numbers without a country
// code, as an ISO 3166 alpha-2 code
func WithPhoneRegion(region string) TransformerOption {
	return func(t *Transformer) {
		if region != "" {
			t.phoneRegion = region
		}
	}
}

// NewTransformer creates a transformer. A nil resolver assigns no owners.
func NewTransformer(pipelines Pipelines, owners OwnerResolver, opts ...TransformerOption) *Transformer {
	if owners == nil {
		owners = NoOwner{}
	}
	t := &Transformer{
		pipelines:   pipelines,
		owners:      owners,
		phoneRegion: DefaultPhoneRegion,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StageDecision explains how the dealstage property was decided.
// ReplacesCRMOnly is set when Apply overwrites a hand-set CRM-only stage.
type StageDecision struct {
	Current         *string
	Derived         DealStage
	Apply           bool
	ReplacesCRMOnly bool
}

// TransformCustomer maps a customer to company properties
func (t *Transformer) TransformCustomer(c *Customer) (*CompanyProperties, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &CompanyProperties{
		EpicorCustomerNumber: c.CustNum,
		EpicorCustomerCode:   c.CustID,
		Name:                 c.Name,
		Address:              c.Address1,
		Address2:             c.Address2,
		City:                 c.City,
		State:                c.State,
		Zip:                  c.Zip,
		Country:              c.Country,
		Phone:                FormatPhoneE164(c.PhoneNum, t.phoneRegion),
		FaxNumber:            c.FaxNum,
		EpicorEmail:          c.EmailAddress,
		CurrencyCode:         c.CurrencyCode,
		EpicorSysRowID:       GUIDToString(c.SysRowID),
	}, nil
}

// TransformQuote maps a quote header to deal properties. current is the
// dealstage the CRM holds today, nil for a new deal; dealstage is only set
// when the quote stage policy allows it.
func (t *Transformer) TransformQuote(q *Quote, current *string) (*QuoteDealProperties, StageDecision, error) {
	if err := q.Validate(); err != nil {
		return nil, StageDecision{}, err
	}

	derived := DeriveQuoteStage(q)
	decision := QuoteStagePolicy.Decide(current, derived)

	props := &QuoteDealProperties{
		DealName:                stringPtr(fmt.Sprintf("Quote #%d", *q.QuoteNum)),
		EpicorQuoteNumber:       q.QuoteNum,
		Pipeline:                nonEmpty(t.pipelines.QuotesPipelineID),
		CreateDate:              EpicorTimeToUnixMs(q.EntryDate),
		CloseDate:               EpicorTimeToUnixMs(q.DueDate),
		QuoteExpirationDate:     EpicorTimeToUnixMs(q.ExpirationDate),
		QuoteSentDate:           EpicorTimeToUnixMs(q.DateQuoted),
		Amount:                  decimalPtr(q.QuoteAmt),
		EpicorDocAmount:         decimalPtr(q.DocQuoteAmt),
		DiscountPercentage:      decimalPtr(q.DiscountPercent),
		CustomerPONumber:        q.PONum,
		DealCurrencyCode:        q.CurrencyCode,
		EpicorQuoted:            boolOrFalse(q.Quoted),
		EpicorClosed:            boolOrFalse(q.QuoteClosed),
		EpicorConvertedToOrder:  boolOrFalse(q.Ordered),
		EpicorExpired:           boolOrFalse(q.Expired),
		EpicorSalesRepCode:      trimmed(q.SalesRepCode),
		HubSpotOwnerID:          t.resolveOwner(q.SalesRepCode),
		EpicorQuoteSysRowID:     GUIDToString(q.SysRowID),
		EpicorLastSyncStage:     &derived,
		EpicorLastSyncTimestamp: t.timestamp(),
	}
	if decision.Apply {
		props.DealStage = &derived
	}
	return props, decision, nil
}

// TransformOrder maps a sales order header to deal properties, gated by the
// order stage policy the same way quotes are.
func (t *Transformer) TransformOrder(o *Order, current *string) (*OrderDealProperties, StageDecision, error) {
	if err := o.Validate(); err != nil {
		return nil, StageDecision{}, err
	}

	derived := DeriveOrderStage(o)
	decision := OrderStagePolicy.Decide(current, derived)

	rep := o.PrimarySalesRep()
	props := &OrderDealProperties{
		DealName:                stringPtr(fmt.Sprintf("Order #%d", *o.OrderNum)),
		EpicorOrderNumber:       o.OrderNum,
		Pipeline:                nonEmpty(t.pipelines.OrdersPipelineID),
		CreateDate:              EpicorTimeToUnixMs(o.OrderDate),
		CloseDate:               EpicorTimeToUnixMs(o.RequestDate),
		NeedByDate:              EpicorTimeToUnixMs(o.NeedByDate),
		Amount:                  decimalPtr(o.OrderAmt),
		EpicorDocAmount:         decimalPtr(o.DocOrderAmt),
		CustomerPONumber:        o.PONum,
		DealCurrencyCode:        o.CurrencyCode,
		EpicorOpenOrder:         o.OpenOrder,
		EpicorOrderHeld:         boolOrFalse(o.OrderHeld),
		EpicorVoidOrder:         boolOrFalse(o.VoidOrder),
		EpicorSalesRepCode:      rep,
		HubSpotOwnerID:          t.resolveOwner(rep),
		EpicorOrderSysRowID:     GUIDToString(o.SysRowID),
		EpicorLastSyncStage:     &derived,
		EpicorLastSyncTimestamp: t.timestamp(),
	}
	if decision.Apply {
		props.DealStage = &derived
	}
	return props, decision, nil
}

// ---------------------------------------------------------------------------
// Line items and products
// ---------------------------------------------------------------------------

type lineFields struct {
	kind   LineKind
	parent *int64
	line   *int64
	part   *string
	desc   *string
	qty    decimal.NullDecimal
	price  decimal.NullDecimal
	amount decimal.NullDecimal
}

// TransformQuoteLine maps a quote detail line. A non-nil parentNum overrides
// the QuoteNum carried on the line.
func (t *Transformer) TransformQuoteLine(line *QuoteLine, parentNum *int64) *LineItemProperties {
	parent := line.QuoteNum
	if parentNum != nil {
		parent = parentNum
	}
	return transformLine(lineFields{
		kind:   LineKindQuote,
		parent: parent,
		line:   line.QuoteLine,
		part:   line.PartNum,
		desc:   line.LineDesc,
		qty:    line.OrderQty,
		price:  line.ExpUnitPrice,
		amount: line.ExtPriceDtl,
	})
}

// TransformOrderLine maps a sales order detail line. A non-nil parentNum
// overrides the OrderNum carried on the line.
func (t *Transformer) TransformOrderLine(line *OrderLine, parentNum *int64) *LineItemProperties {
	parent := line.OrderNum
	if parentNum != nil {
		parent = parentNum
	}
	return transformLine(lineFields{
		kind:   LineKindOrder,
		parent: parent,
		line:   line.OrderLine,
		part:   line.PartNum,
		desc:   line.LineDesc,
		qty:    line.OrderQty,
		price:  line.UnitPrice,
		amount: line.ExtPriceDtl,
	})
}

func transformLine(f lineFields) *LineItemProperties {
	sku := trimmed(f.part)
	props := &LineItemProperties{
		SKU:         sku,
		Description: trimmed(f.desc),
		Quantity:    decimalPtr(f.qty),
		Price:       decimalPtr(f.price),
		Amount:      decimalPtr(f.amount),
	}
	if sku != nil {
		props.Name = stringPtr(ComposeLineName(*sku, stringValue(f.desc)))
	}
	if props.Quantity == nil {
		one := decimal.NewFromInt(1)
		props.Quantity = &one
	}
	if f.parent != nil && f.line != nil && *f.parent > 0 && *f.line > 0 {
		props.EpicorLineItemID = stringPtr(EncodeLineID(f.kind, *f.parent, *f.line))
	}
	return props
}

// ComposeLineName joins part number and description, falling back to "Part {part}"
func ComposeLineName(part, desc string) string {
	if name := strings.TrimSpace(part + " " + desc); name != "" {
		return name
	}
	return "Part " + part
}

// MinimalProduct builds the placeholder product created for an unknown SKU.
// Price is only set when the line carries one.
func (t *Transformer) MinimalProduct(line *LineItemProperties) *ProductProperties {
	sku := stringValue(line.SKU)
	return &ProductProperties{
		SKU:         stringPtr(sku),
		Name:        stringPtr(ComposeLineName(sku, stringValue(line.Description))),
		Description: line.Description,
		Price:       line.Price,
	}
}

func (t *Transformer) resolveOwner(repCode *string) *string {
	if repCode == nil {
		return nil
	}
	owner, ok := t.owners.ResolveOwner(*repCode)
	if !ok || owner == "" {
		return nil
	}
	return &owner
}

func (t *Transformer) timestamp() *int64 {
	ms := t.now().UnixMilli()
	return &ms
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func stringPtr(s string) *string {
	return &s
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nonEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	return nonEmpty(strings.TrimSpace(*p))
}

func boolOrFalse(p *bool) *bool {
	v := boolValue(p)
	return &v
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

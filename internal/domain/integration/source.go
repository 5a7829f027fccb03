package integration

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// EntityType names the kind of record being synchronized
type EntityType string

const (
	EntityTypeCustomer EntityType = "customer"
	EntityTypeQuote    EntityType = "quote"
	EntityTypeOrder    EntityType = "order"
	EntityTypeLineItem EntityType = "line_item"
	EntityTypeProduct  EntityType = "product"
)

// String returns the string representation of EntityType
func (t EntityType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// Source Records (Epicor OData payloads)
// ---------------------------------------------------------------------------

// Customer is an Epicor Erp.BO.CustomerSvc/Customers record
type Customer struct {
	CustNum      *int64  `json:"CustNum" validate:"required"`
	CustID       *string `json:"CustID"`
	Name         *string `json:"Name" validate:"required"`
	Address1     *string `json:"Address1"`
	Address2     *string `json:"Address2"`
	City         *string `json:"City"`
	State        *string `json:"State"`
	Zip          *string `json:"Zip"`
	Country      *string `json:"Country"`
	PhoneNum     *string `json:"PhoneNum"`
	FaxNum       *string `json:"FaxNum"`
	EmailAddress *string `json:"EmailAddress"`
	CurrencyCode *string `json:"CurrencyCode"`
	SysRowID     *string `json:"SysRowID"`

	Raw json.RawMessage `json:"-"`
}

// Quote is an Epicor Erp.BO.QuoteSvc/Quotes header with its QuoteDtls
type Quote struct {
	QuoteNum        *int64              `json:"QuoteNum" validate:"required"`
	CustNum         *int64              `json:"CustNum" validate:"required"`
	EntryDate       *string             `json:"EntryDate"`
	DueDate         *string             `json:"DueDate"`
	ExpirationDate  *string             `json:"ExpirationDate"`
	DateQuoted      *string             `json:"DateQuoted"`
	QuoteAmt        decimal.NullDecimal `json:"QuoteAmt"`
	DocQuoteAmt     decimal.NullDecimal `json:"DocQuoteAmt"`
	DiscountPercent decimal.NullDecimal `json:"DiscountPercent"`
	PONum           *string             `json:"PONum"`
	CurrencyCode    *string             `json:"CurrencyCode"`
	SalesRepCode    *string             `json:"SalesRepCode"`
	SysRowID        *string             `json:"SysRowID"`
	Quoted          *bool               `json:"Quoted"`
	QuoteClosed     *bool               `json:"QuoteClosed"`
	Ordered         *bool               `json:"Ordered"`
	Expired         *bool               `json:"Expired"`
	QuoteDtls       []QuoteLine         `json:"QuoteDtls"`

	Raw json.RawMessage `json:"-"`
}

// QuoteLine is an Epicor QuoteDtl record
type QuoteLine struct {
	QuoteNum     *int64              `json:"QuoteNum"`
	QuoteLine    *int64              `json:"QuoteLine"`
	PartNum      *string             `json:"PartNum"`
	LineDesc     *string             `json:"LineDesc"`
	OrderQty     decimal.NullDecimal `json:"OrderQty"`
	ExpUnitPrice decimal.NullDecimal `json:"ExpUnitPrice"`
	ExtPriceDtl  decimal.NullDecimal `json:"ExtPriceDtl"`
}

// Order is an Epicor Erp.BO.SalesOrderSvc/SalesOrders header with its OrderDtls
type Order struct {
	OrderNum     *int64              `json:"OrderNum" validate:"required"`
	CustNum      *int64              `json:"CustNum" validate:"required"`
	OpenOrder    *bool               `json:"OpenOrder" validate:"required"`
	OrderDate    *string             `json:"OrderDate"`
	RequestDate  *string             `json:"RequestDate"`
	NeedByDate   *string             `json:"NeedByDate"`
	OrderAmt     decimal.NullDecimal `json:"OrderAmt"`
	DocOrderAmt  decimal.NullDecimal `json:"DocOrderAmt"`
	PONum        *string             `json:"PONum"`
	CurrencyCode *string             `json:"CurrencyCode"`
	SalesRepList *string             `json:"SalesRepList"`
	OrderHeld    *bool               `json:"OrderHeld"`
	VoidOrder    *bool               `json:"VoidOrder"`
	TotalShipped decimal.NullDecimal `json:"TotalShipped"`
	QuoteNum     *int64              `json:"QuoteNum"`
	SysRowID     *string             `json:"SysRowID"`
	OrderDtls    []OrderLine         `json:"OrderDtls"`

	Raw json.RawMessage `json:"-"`
}

// OrderLine is an Epicor OrderDtl record
type OrderLine struct {
	OrderNum    *int64              `json:"OrderNum"`
	OrderLine   *int64              `json:"OrderLine"`
	PartNum     *string             `json:"PartNum"`
	LineDesc    *string             `json:"LineDesc"`
	OrderQty    decimal.NullDecimal `json:"OrderQty"`
	UnitPrice   decimal.NullDecimal `json:"UnitPrice"`
	ExtPriceDtl decimal.NullDecimal `json:"ExtPriceDtl"`
}

// UnmarshalJSON keeps the raw payload for failure snapshots
func (c *Customer) UnmarshalJSON(data []byte) error {
	type alias Customer
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = Customer(a)
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// UnmarshalJSON keeps the raw payload for failure snapshots
func (q *Quote) UnmarshalJSON(data []byte) error {
	type alias Quote
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*q = Quote(a)
	q.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// UnmarshalJSON keeps the raw payload for failure snapshots
func (o *Order) UnmarshalJSON(data []byte) error {
	type alias Order
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = Order(a)
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Number returns CustNum or 0 when absent
func (c *Customer) Number() int64 { return int64Value(c.CustNum) }

// Number returns QuoteNum or 0 when absent
func (q *Quote) Number() int64 { return int64Value(q.QuoteNum) }

// Number returns OrderNum or 0 when absent
func (o *Order) Number() int64 { return int64Value(o.OrderNum) }

// Snapshot returns the record as JSON for failure reporting
func (c *Customer) Snapshot() string { return snapshot(c.Raw, c) }

// Snapshot returns the record as JSON for failure reporting
func (q *Quote) Snapshot() string { return snapshot(q.Raw, q) }

// Snapshot returns the record as JSON for failure reporting
func (o *Order) Snapshot() string { return snapshot(o.Raw, o) }

// PrimarySalesRep returns the first rep of a "~" separated SalesRepList
func (o *Order) PrimarySalesRep() *string {
	if o.SalesRepList == nil {
		return nil
	}
	first := strings.TrimSpace(strings.SplitN(*o.SalesRepList, "~", 2)[0])
	if first == "" {
		return nil
	}
	return &first
}

// ---------------------------------------------------------------------------
// Required field validation
// ---------------------------------------------------------------------------

var recordValidator = newRecordValidator()

func newRecordValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequired checks the required tags of a source record and maps the
// first failure to a ValidationError.
func validateRequired(entity EntityType, record any) error {
	err := recordValidator.Struct(record)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{Entity: entity, Field: fieldErrs[0].Field()}
	}
	return err
}

// Validate checks that CustNum and Name are present
func (c *Customer) Validate() error { return validateRequired(EntityTypeCustomer, c) }

// Validate checks that QuoteNum and CustNum are present
func (q *Quote) Validate() error { return validateRequired(EntityTypeQuote, q) }

// Validate checks that OrderNum, CustNum and OpenOrder are present
func (o *Order) Validate() error { return validateRequired(EntityTypeOrder, o) }

func int64Value(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func boolValue(p *bool) bool {
	return p != nil && *p
}

func snapshot(raw json.RawMessage, v any) string {
	if len(raw) > 0 {
		return string(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

package integration

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// CRM property bags
//
// Every field is optional; nil fields are never serialized so that partial
// updates leave previously set CRM values untouched.
// ---------------------------------------------------------------------------

// CompanyProperties is the HubSpot company payload built from a Customer
type CompanyProperties struct {
	EpicorCustomerNumber *int64  `json:"epicor_customer_number,omitempty"`
	EpicorCustomerCode   *string `json:"epicor_customer_code,omitempty"`
	Name                 *string `json:"name,omitempty"`
	Address              *string `json:"address,omitempty"`
	Address2             *string `json:"address2,omitempty"`
	City                 *string `json:"city,omitempty"`
	State                *string `json:"state,omitempty"`
	Zip                  *string `json:"zip,omitempty"`
	Country              *string `json:"country,omitempty"`
	Phone                *string `json:"phone,omitempty"`
	FaxNumber            *string `json:"fax_number,omitempty"`
	EpicorEmail          *string `json:"epicor_email,omitempty"`
	CurrencyCode         *string `json:"currency_code,omitempty"`
	EpicorSysRowID       *string `json:"epicor_sysrowid,omitempty"`
}

// QuoteDealProperties is the HubSpot deal payload built from a Quote
type QuoteDealProperties struct {
	DealName                *string          `json:"dealname,omitempty"`
	EpicorQuoteNumber       *int64           `json:"epicor_quote_number,omitempty"`
	Pipeline                *string          `json:"pipeline,omitempty"`
	DealStage               *DealStage       `json:"dealstage,omitempty"`
	CreateDate              *int64           `json:"createdate,omitempty"`
	CloseDate               *int64           `json:"closedate,omitempty"`
	QuoteExpirationDate     *int64           `json:"quote_expiration_date,omitempty"`
	QuoteSentDate           *int64           `json:"quote_sent_date,omitempty"`
	Amount                  *decimal.Decimal `json:"amount,omitempty"`
	EpicorDocAmount         *decimal.Decimal `json:"epicor_doc_amount,omitempty"`
	DiscountPercentage      *decimal.Decimal `json:"discount_percentage,omitempty"`
	CustomerPONumber        *string          `json:"customer_po_number,omitempty"`
	DealCurrencyCode        *string          `json:"deal_currency_code,omitempty"`
	EpicorQuoted            *bool            `json:"epicor_quoted,omitempty"`
	EpicorClosed            *bool            `json:"epicor_closed,omitempty"`
	EpicorConvertedToOrder  *bool            `json:"epicor_converted_to_order,omitempty"`
	EpicorExpired           *bool            `json:"epicor_expired,omitempty"`
	EpicorSalesRepCode      *string          `json:"epicor_sales_rep_code,omitempty"`
	HubSpotOwnerID          *string          `json:"hubspot_owner_id,omitempty"`
	EpicorQuoteSysRowID     *string          `json:"epicor_quote_sysrowid,omitempty"`
	EpicorLastSyncStage     *DealStage       `json:"epicor_last_sync_stage,omitempty"`
	EpicorLastSyncTimestamp *int64           `json:"epicor_last_sync_timestamp,omitempty"`
}

// OrderDealProperties is the HubSpot deal payload built from an Order
type OrderDealProperties struct {
	DealName                *string          `json:"dealname,omitempty"`
	EpicorOrderNumber       *int64           `json:"epicor_order_number,omitempty"`
	Pipeline                *string          `json:"pipeline,omitempty"`
	DealStage               *DealStage       `json:"dealstage,omitempty"`
	CreateDate              *int64           `json:"createdate,omitempty"`
	CloseDate               *int64           `json:"closedate,omitempty"`
	NeedByDate              *int64           `json:"need_by_date,omitempty"`
	Amount                  *decimal.Decimal `json:"amount,omitempty"`
	EpicorDocAmount         *decimal.Decimal `json:"epicor_doc_amount,omitempty"`
	CustomerPONumber        *string          `json:"customer_po_number,omitempty"`
	DealCurrencyCode        *string          `json:"deal_currency_code,omitempty"`
	EpicorOpenOrder         *bool            `json:"epicor_open_order,omitempty"`
	EpicorOrderHeld         *bool            `json:"epicor_order_held,omitempty"`
	EpicorVoidOrder         *bool            `json:"epicor_void_order,omitempty"`
	EpicorSalesRepCode      *string          `json:"epicor_sales_rep_code,omitempty"`
	HubSpotOwnerID          *string          `json:"hubspot_owner_id,omitempty"`
	EpicorOrderSysRowID     *string          `json:"epicor_order_sysrowid,omitempty"`
	EpicorLastSyncStage     *DealStage       `json:"epicor_last_sync_stage,omitempty"`
	EpicorLastSyncTimestamp *int64           `json:"epicor_last_sync_timestamp,omitempty"`
}

// LineItemProperties is the HubSpot line item payload built from a quote or order line
type LineItemProperties struct {
	SKU              *string          `json:"sku,omitempty"`
	Name             *string          `json:"name,omitempty"`
	Description      *string          `json:"description,omitempty"`
	Quantity         *decimal.Decimal `json:"quantity,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	EpicorLineItemID *string          `json:"epicor_line_item_id,omitempty"`
}

// ProductProperties is the minimal HubSpot product created for an unknown SKU
type ProductProperties struct {
	SKU         *string          `json:"hs_sku,omitempty"`
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
}

// PropertyMap flattens a property bag into the key/value form the CRM stores.
// Absent properties do not appear as keys.
func PropertyMap(bag any) map[string]string {
	data, err := json.Marshal(bag)
	if err != nil {
		return map[string]string{}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}

package epicor

import "strconv"

// OData services and entity sets read by the sync
const (
	ServiceCustomer   = "Erp.BO.CustomerSvc"
	ServiceQuote      = "Erp.BO.QuoteSvc"
	ServiceSalesOrder = "Erp.BO.SalesOrderSvc"
	ServiceSalesRep   = "Erp.BO.SalesRepSvc"

	EntitySetCustomers   = "Customers"
	EntitySetQuotes      = "Quotes"
	EntitySetSalesOrders = "SalesOrders"
	EntitySetSalesReps   = "SalesReps"

	ExpandQuoteLines = "QuoteDtls"
	ExpandOrderLines = "OrderDtls"
)

// Query describes one OData collection read. A positive Top reads a
// single page of that size instead of paging through the collection.
type Query struct {
	Service   string
	EntitySet string
	Filter    string
	Expand    string
	Select    string
	OrderBy   string
	Top       int
}

// page is one OData collection response
type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// SalesRep is an Erp.BO.SalesRepSvc/SalesReps record
type SalesRep struct {
	SalesRepCode string `json:"SalesRepCode"`
	Name         string `json:"Name"`
	EMailAddress string `json:"EMailAddress"`
	RoleCode     string `json:"RoleCode"`
}

// orderByQuoteFilter matches sales orders with a line converted from the quote
func orderByQuoteFilter(quoteNum int64) string {
	return "OrderDtls/any(d: d/QuoteNum eq " + strconv.FormatInt(quoteNum, 10) + ")"
}

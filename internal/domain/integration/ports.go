package integration

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// CRM object model
// ---------------------------------------------------------------------------

// ObjectType is a HubSpot CRM object type as used in API paths
type ObjectType string

const (
	ObjectTypeCompany  ObjectType = "companies"
	ObjectTypeDeal     ObjectType = "deals"
	ObjectTypeLineItem ObjectType = "line_items"
	ObjectTypeProduct  ObjectType = "products"
)

// IsValid returns true if the object type is known
func (t ObjectType) IsValid() bool {
	switch t {
	case ObjectTypeCompany, ObjectTypeDeal, ObjectTypeLineItem, ObjectTypeProduct:
		return true
	default:
		return false
	}
}

// String returns the string representation of ObjectType
func (t ObjectType) String() string {
	return string(t)
}

// AssociationKind is a HubSpot-defined association type id
type AssociationKind int

const (
	// AssociationDealToCompany links a deal to its company
	AssociationDealToCompany AssociationKind = 5
	// AssociationDealToDeal links a quote deal to the order deal it converted into
	AssociationDealToDeal AssociationKind = 6
	// AssociationLineItemToDeal links a line item to its deal
	AssociationLineItemToDeal AssociationKind = 20
)

// Natural key properties used for idempotent lookups
const (
	KeyCustomerNumber = "epicor_customer_number"
	KeyQuoteNumber    = "epicor_quote_number"
	KeyOrderNumber    = "epicor_order_number"
	KeyLineItemID     = "epicor_line_item_id"
	KeyProductSKU     = "hs_sku"
	PropertyDealStage = "dealstage"
)

// CRMRecord is a record read back from the CRM
type CRMRecord struct {
	ID         string
	Properties map[string]string
}

// Property returns the named property, nil when the CRM did not return it
func (r *CRMRecord) Property(name string) *string {
	if r == nil || r.Properties == nil {
		return nil
	}
	v, ok := r.Properties[name]
	if !ok {
		return nil
	}
	return &v
}

// CurrentStage returns the deal stage stored in the CRM, nil when blank
func (r *CRMRecord) CurrentStage() *string {
	v := r.Property(PropertyDealStage)
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}

// ---------------------------------------------------------------------------
// Collaborator ports
// ---------------------------------------------------------------------------

// SourceClient reads records from the ERP. Implementations paginate and
// retry internally and return fully materialized slices.
type SourceClient interface {
	FetchCustomers(ctx context.Context, filter string) ([]Customer, error)
	// FetchQuotes returns quote headers with their QuoteDtls expanded
	FetchQuotes(ctx context.Context, filter string) ([]Quote, error)
	// FetchOrders returns order headers with their OrderDtls expanded
	FetchOrders(ctx context.Context, filter string) ([]Order, error)
	// GetOrderByQuote returns the sales order created from a quote, nil when none exists
	GetOrderByQuote(ctx context.Context, quoteNum int64) (*Order, error)
}

// CRMClient writes records to the CRM. All calls are rate limited and
// retried by the implementation; each call either succeeds or fails as a whole.
type CRMClient interface {
	// FindByNaturalKey returns the first record whose property equals value, nil when none
	FindByNaturalKey(ctx context.Context, objectType ObjectType, property, value string, properties ...string) (*CRMRecord, error)
	Create(ctx context.Context, objectType ObjectType, properties any) (*CRMRecord, error)
	Update(ctx context.Context, objectType ObjectType, id string, properties any) (*CRMRecord, error)
	// Associate creates a typed edge; associating twice is not an error
	Associate(ctx context.Context, from ObjectType, fromID string, to ObjectType, toID string, kind AssociationKind) error
}

// OwnerResolver maps an ERP sales rep code to a CRM owner id
type OwnerResolver interface {
	ResolveOwner(repCode string) (string, bool)
}

// NoOwner resolves every rep code to no owner
type NoOwner struct{}

// ResolveOwner implements OwnerResolver
func (NoOwner) ResolveOwner(string) (string, bool) { return "", false }

// FailureSink receives one entry per irrecoverable per-record error.
// Record must not fail the caller.
type FailureSink interface {
	Record(failure RecordFailure)
}

// CheckpointStore persists backfill progress
type CheckpointStore interface {
	// Load returns ErrCheckpointNotFound when nothing was saved yet
	Load(ctx context.Context) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	Reset(ctx context.Context) error
}

// RunLock prevents overlapping sync runs
type RunLock interface {
	// TryAcquire returns false without error when another holder owns the lock
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ArtifactStore keeps run artifacts such as failure reports and checkpoints
type ArtifactStore interface {
	// Put stores the content under key and returns its location
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// SyncRunRepository persists run history
type SyncRunRepository interface {
	Save(ctx context.Context, run *RunSummary) error
	FindByID(ctx context.Context, id uuid.UUID) (*RunSummary, error)
	FindRecent(ctx context.Context, limit int) ([]*RunSummary, error)
	FindLatest(ctx context.Context) (*RunSummary, error)
}

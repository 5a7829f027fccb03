package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/telemetry"
)

// Dependencies are the collaborators shared by the synchronizers of one run
type Dependencies struct {
	Source      integration.SourceClient
	CRM         integration.CRMClient
	Transformer *integration.Transformer
	Failures    integration.FailureSink
	Logger      *zap.Logger
	Metrics     *telemetry.SyncMetrics
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Synchronizers is the set of synchronizers built for one run. They share a
// failure sink and a line-item reconciler, so the product cache spans the run.
type Synchronizers struct {
	Customers *CustomerSyncService
	Quotes    *QuoteSyncService
	Orders    *OrderSyncService
	Lines     *LineItemReconciler
}

// NewSynchronizers wires the per-run synchronizers
func NewSynchronizers(deps Dependencies) *Synchronizers {
	lines := NewLineItemReconciler(deps.CRM, deps.Transformer, deps.Failures, deps.logger().Named("line_items"))
	lines.SetMetrics(deps.Metrics)

	orders := NewOrderSyncService(deps, lines)
	return &Synchronizers{
		Customers: NewCustomerSyncService(deps),
		Quotes:    NewQuoteSyncService(deps, lines, orders),
		Orders:    orders,
		Lines:     lines,
	}
}

// ---------------------------------------------------------------------------
// Outcome recording
// ---------------------------------------------------------------------------

// outcomeRecorder forwards failures and warnings to the sink and metrics
type outcomeRecorder struct {
	entity   integration.EntityType
	failures integration.FailureSink
	metrics  *telemetry.SyncMetrics
}

func (r outcomeRecorder) record(ctx context.Context, o integration.SyncOutcome) {
	r.metrics.RecordRecord(ctx, r.entity, o.Action)
	if o.Failure != nil {
		r.sink(ctx, *o.Failure)
	}
	for _, w := range o.Warnings {
		r.sink(ctx, w)
	}
}

func (r outcomeRecorder) sink(ctx context.Context, f integration.RecordFailure) {
	if r.failures != nil {
		r.failures.Record(f)
	}
	r.metrics.RecordFailure(ctx, f.Entity, f.Kind)
}

// fetchFailure records a phase-fatal fetch error and returns it wrapped
func (r outcomeRecorder) fetchFailure(ctx context.Context, err error, filter string) error {
	f := integration.NewRecordFailure(r.entity, "*", integration.OperationFetch, integration.FailureKindFetch, err, filter)
	r.sink(ctx, f)
	return fmt.Errorf("fetch %ss: %w", r.entity, err)
}

// validationOutcome maps a transform error to a skipped or failed outcome
func validationOutcome(entity integration.EntityType, id int64, err error, snapshot string) integration.SyncOutcome {
	if integration.IsValidationError(err) {
		f := integration.NewRecordFailure(entity, id, integration.OperationTransform, integration.FailureKindValidation, err, snapshot)
		return integration.Skipped(&f)
	}
	return integration.Failed(integration.NewRecordFailure(entity, id, integration.OperationTransform, integration.FailureKindWrite, err, snapshot))
}

// missingParentOutcome skips a deal whose company is not in the CRM yet
func missingParentOutcome(entity integration.EntityType, id, custNum int64, snapshot string) integration.SyncOutcome {
	err := fmt.Errorf("%w: company %d", integration.ErrMissingParent, custNum)
	f := integration.NewRecordFailure(entity, id, integration.OperationAssociate, integration.FailureKindMissingParent, err, snapshot)
	return integration.Skipped(&f)
}

func writeFailure(entity integration.EntityType, id int64, op integration.Operation, err error, snapshot string) integration.SyncOutcome {
	return integration.Failed(integration.NewRecordFailure(entity, id, op, integration.FailureKindWrite, err, snapshot))
}

// upsert updates the record found by lookup or creates a new one
func upsert(ctx context.Context, crm integration.CRMClient, objectType integration.ObjectType, existing *integration.CRMRecord, props any) (integration.SyncOutcome, integration.Operation, error) {
	if existing != nil {
		rec, err := crm.Update(ctx, objectType, existing.ID, props)
		if err != nil {
			return integration.SyncOutcome{}, integration.OperationUpdate, err
		}
		id := existing.ID
		if rec != nil && rec.ID != "" {
			id = rec.ID
		}
		return integration.Updated(id), integration.OperationUpdate, nil
	}
	rec, err := crm.Create(ctx, objectType, props)
	if err != nil {
		return integration.SyncOutcome{}, integration.OperationCreate, err
	}
	if rec == nil || rec.ID == "" {
		return integration.SyncOutcome{}, integration.OperationCreate, errors.New("crm returned no record id")
	}
	return integration.Created(rec.ID), integration.OperationCreate, nil
}

// findCompany returns the CRM company id for a customer number, "" when absent
func findCompany(ctx context.Context, crm integration.CRMClient, custNum int64) (string, error) {
	rec, err := crm.FindByNaturalKey(ctx, integration.ObjectTypeCompany, integration.KeyCustomerNumber, fmt.Sprint(custNum))
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.ID, nil
}

func snapshotOf(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

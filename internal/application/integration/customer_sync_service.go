package integration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/telemetry"
)

// CustomerSyncService upserts ERP customers as CRM companies
type CustomerSyncService struct {
	source      integration.SourceClient
	crm         integration.CRMClient
	transformer *integration.Transformer
	recorder    outcomeRecorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewCustomerSyncService creates a new CustomerSyncService
func NewCustomerSyncService(deps Dependencies) *CustomerSyncService {
	return &CustomerSyncService{
		source:      deps.Source,
		crm:         deps.CRM,
		transformer: deps.Transformer,
		recorder: outcomeRecorder{
			entity:   integration.EntityTypeCustomer,
			failures: deps.Failures,
			metrics:  deps.Metrics,
		},
		logger: deps.logger().Named("customer_sync"),
		now:    time.Now,
	}
}

// SyncAll fetches customers matching filter and syncs each one. The returned
// error is non-nil only when the fetch failed; the summary is aborted then.
func (s *CustomerSyncService) SyncAll(ctx context.Context, filter string) (*integration.PhaseSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "customer_sync", "sync_all",
		telemetry.WithAttribute(telemetry.SpanAttrFilter, filter))
	defer span.End()

	summary := integration.NewPhaseSummary(integration.PhaseCustomers, s.now())

	customers, err := s.source.FetchCustomers(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		err = s.recorder.fetchFailure(ctx, err, filter)
		s.logger.Error("Failed to fetch customers", zap.String("filter", filter), zap.Error(err))
		summary.Abort(err, s.now())
		return summary, err
	}

	s.logger.Info("Syncing customers", zap.Int("count", len(customers)), zap.String("filter", filter))
	telemetry.SetAttribute(span, telemetry.SpanAttrRecordCount, len(customers))

	for i := range customers {
		summary.Record(s.SyncOne(ctx, &customers[i]))
	}

	summary.Finish(s.now())
	s.logger.Info("Customer sync finished",
		zap.String("status", summary.Status.String()),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// SyncOne upserts a single customer. Failures are reported in the outcome.
func (s *CustomerSyncService) SyncOne(ctx context.Context, c *integration.Customer) integration.SyncOutcome {
	outcome := s.syncOne(ctx, c)
	s.recorder.record(ctx, outcome)
	return outcome
}

func (s *CustomerSyncService) syncOne(ctx context.Context, c *integration.Customer) integration.SyncOutcome {
	custNum := c.Number()

	props, err := s.transformer.TransformCustomer(c)
	if err != nil {
		s.logger.Warn("Skipping invalid customer", zap.Int64("cust_num", custNum), zap.Error(err))
		return validationOutcome(integration.EntityTypeCustomer, custNum, err, c.Snapshot())
	}

	existing, err := s.crm.FindByNaturalKey(ctx, integration.ObjectTypeCompany, integration.KeyCustomerNumber, fmt.Sprint(custNum))
	if err != nil {
		s.logger.Error("Failed to look up company", zap.Int64("cust_num", custNum), zap.Error(err))
		return writeFailure(integration.EntityTypeCustomer, custNum, integration.OperationLookup, err, c.Snapshot())
	}

	outcome, op, err := upsert(ctx, s.crm, integration.ObjectTypeCompany, existing, props)
	if err != nil {
		s.logger.Error("Failed to write company",
			zap.Int64("cust_num", custNum),
			zap.String("operation", string(op)),
			zap.Error(err),
		)
		return writeFailure(integration.EntityTypeCustomer, custNum, op, err, c.Snapshot())
	}

	s.logger.Debug("Synced customer",
		zap.Int64("cust_num", custNum),
		zap.String("company_id", outcome.RecordID),
		zap.String("action", outcome.Action.String()),
	)
	return outcome
}

package integration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/telemetry"
)

// OrderSyncService upserts ERP sales orders as CRM deals in the orders pipeline
type OrderSyncService struct {
	source      integration.SourceClient
	crm         integration.CRMClient
	transformer *integration.Transformer
	lines       *LineItemReconciler
	recorder    outcomeRecorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrderSyncService creates a new OrderSyncService
func NewOrderSyncService(deps Dependencies, lines *LineItemReconciler) *OrderSyncService {
	return &OrderSyncService{
		source:      deps.Source,
		crm:         deps.CRM,
		transformer: deps.Transformer,
		lines:       lines,
		recorder: outcomeRecorder{
			entity:   integration.EntityTypeOrder,
			failures: deps.Failures,
			metrics:  deps.Metrics,
		},
		logger: deps.logger().Named("order_sync"),
		now:    time.Now,
	}
}

// SyncAll fetches orders matching filter and syncs each one. The returned
// error is non-nil only when the fetch failed; the summary is aborted then.
func (s *OrderSyncService) SyncAll(ctx context.Context, filter string) (*integration.PhaseSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_sync", "sync_all",
		telemetry.WithAttribute(telemetry.SpanAttrFilter, filter))
	defer span.End()

	summary := integration.NewPhaseSummary(integration.PhaseOrders, s.now())

	orders, err := s.source.FetchOrders(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		err = s.recorder.fetchFailure(ctx, err, filter)
		s.logger.Error("Failed to fetch orders", zap.String("filter", filter), zap.Error(err))
		summary.Abort(err, s.now())
		return summary, err
	}

	s.logger.Info("Syncing orders", zap.Int("count", len(orders)), zap.String("filter", filter))
	telemetry.SetAttribute(span, telemetry.SpanAttrRecordCount, len(orders))

	for i := range orders {
		summary.Record(s.SyncOne(ctx, &orders[i]))
	}

	summary.Finish(s.now())
	s.logger.Info("Order sync finished",
		zap.String("status", summary.Status.String()),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors),
		zap.Int("line_items_created", summary.Lines.Created),
	)
	return summary, nil
}

// SyncOne upserts a single order with its lines
func (s *OrderSyncService) SyncOne(ctx context.Context, o *integration.Order) integration.SyncOutcome {
	outcome := s.syncOrder(ctx, o, "")
	s.recorder.record(ctx, outcome)
	return outcome
}

// syncOrder does the work of SyncOne without recording. A non-empty
// companyID skips the company lookup.
func (s *OrderSyncService) syncOrder(ctx context.Context, o *integration.Order, companyID string) integration.SyncOutcome {
	orderNum := o.Number()

	if err := o.Validate(); err != nil {
		s.logger.Warn("Skipping invalid order", zap.Int64("order_num", orderNum), zap.Error(err))
		return validationOutcome(integration.EntityTypeOrder, orderNum, err, o.Snapshot())
	}

	existing, err := s.crm.FindByNaturalKey(ctx, integration.ObjectTypeDeal,
		integration.KeyOrderNumber, fmt.Sprint(orderNum), integration.PropertyDealStage)
	if err != nil {
		s.logger.Error("Failed to look up order deal", zap.Int64("order_num", orderNum), zap.Error(err))
		return writeFailure(integration.EntityTypeOrder, orderNum, integration.OperationLookup, err, o.Snapshot())
	}

	props, decision, err := s.transformer.TransformOrder(o, existing.CurrentStage())
	if err != nil {
		return validationOutcome(integration.EntityTypeOrder, orderNum, err, o.Snapshot())
	}
	if !decision.Apply && decision.Current != nil {
		s.logger.Debug("Keeping order deal stage",
			zap.Int64("order_num", orderNum),
			zap.String("current", *decision.Current),
			zap.String("derived", decision.Derived.String()),
		)
	}

	custNum := *o.CustNum
	if companyID == "" {
		companyID, err = findCompany(ctx, s.crm, custNum)
		if err != nil {
			s.logger.Error("Failed to look up company", zap.Int64("cust_num", custNum), zap.Error(err))
			return writeFailure(integration.EntityTypeOrder, orderNum, integration.OperationLookup, err, o.Snapshot())
		}
		if companyID == "" {
			s.logger.Warn("Skipping order without company",
				zap.Int64("order_num", orderNum),
				zap.Int64("cust_num", custNum),
			)
			return missingParentOutcome(integration.EntityTypeOrder, orderNum, custNum, o.Snapshot())
		}
	}

	outcome, op, err := upsert(ctx, s.crm, integration.ObjectTypeDeal, existing, props)
	if err != nil {
		s.logger.Error("Failed to write order deal",
			zap.Int64("order_num", orderNum),
			zap.String("operation", string(op)),
			zap.Error(err),
		)
		return writeFailure(integration.EntityTypeOrder, orderNum, op, err, o.Snapshot())
	}

	err = s.crm.Associate(ctx, integration.ObjectTypeDeal, outcome.RecordID,
		integration.ObjectTypeCompany, companyID, integration.AssociationDealToCompany)
	if err != nil {
		s.logger.Warn("Failed to associate order deal to company",
			zap.Int64("order_num", orderNum),
			zap.String("deal_id", outcome.RecordID),
			zap.Error(err),
		)
		outcome.Warn(integration.NewRecordFailure(integration.EntityTypeOrder, orderNum,
			integration.OperationAssociate, integration.FailureKindAssociation, err, ""))
	}

	if len(o.OrderDtls) > 0 {
		outcome.Lines = s.lines.SyncOrderLines(ctx, outcome.RecordID, o.OrderDtls, orderNum)
	}

	s.logger.Debug("Synced order",
		zap.Int64("order_num", orderNum),
		zap.String("deal_id", outcome.RecordID),
		zap.String("action", outcome.Action.String()),
		zap.String("stage", decision.Derived.String()),
	)
	return outcome
}

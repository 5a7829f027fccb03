package integration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/telemetry"
)

// QuoteSyncService upserts ERP quotes as CRM deals in the quotes pipeline.
// When a quote has been converted, the resulting sales order is synced and
// linked to the quote deal in the same pass.
type QuoteSyncService struct {
	source      integration.SourceClient
	crm         integration.CRMClient
	transformer *integration.Transformer
	lines       *LineItemReconciler
	orders      *OrderSyncService
	recorder    outcomeRecorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewQuoteSyncService creates a new QuoteSyncService. orders may be nil to
// disable the converted-order cascade.
func NewQuoteSyncService(deps Dependencies, lines *LineItemReconciler, orders *OrderSyncService) *QuoteSyncService {
	return &QuoteSyncService{
		source:      deps.Source,
		crm:         deps.CRM,
		transformer: deps.Transformer,
		lines:       lines,
		orders:      orders,
		recorder: outcomeRecorder{
			entity:   integration.EntityTypeQuote,
			failures: deps.Failures,
			metrics:  deps.Metrics,
		},
		logger: deps.logger().Named("quote_sync"),
		now:    time.Now,
	}
}

// SyncAll fetches quotes matching filter and syncs each one. The returned
// error is non-nil only when the fetch failed; the summary is aborted then.
func (s *QuoteSyncService) SyncAll(ctx context.Context, filter string) (*integration.PhaseSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "quote_sync", "sync_all",
		telemetry.WithAttribute(telemetry.SpanAttrFilter, filter))
	defer span.End()

	summary := integration.NewPhaseSummary(integration.PhaseQuotes, s.now())

	quotes, err := s.source.FetchQuotes(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		err = s.recorder.fetchFailure(ctx, err, filter)
		s.logger.Error("Failed to fetch quotes", zap.String("filter", filter), zap.Error(err))
		summary.Abort(err, s.now())
		return summary, err
	}

	s.logger.Info("Syncing quotes", zap.Int("count", len(quotes)), zap.String("filter", filter))
	telemetry.SetAttribute(span, telemetry.SpanAttrRecordCount, len(quotes))

	for i := range quotes {
		summary.Record(s.SyncOne(ctx, &quotes[i]))
	}

	summary.Finish(s.now())
	s.logger.Info("Quote sync finished",
		zap.String("status", summary.Status.String()),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors),
		zap.Int("warnings", summary.Warnings),
		zap.Int("line_items_created", summary.Lines.Created),
	)
	return summary, nil
}

// SyncOne upserts a single quote with its lines and, if it was converted,
// its sales order
func (s *QuoteSyncService) SyncOne(ctx context.Context, q *integration.Quote) integration.SyncOutcome {
	ctx, span := telemetry.StartServiceSpan(ctx, "quote_sync", "sync_one",
		telemetry.WithAttribute(telemetry.SpanAttrQuoteNum, q.Number()))
	defer span.End()

	outcome := s.syncOne(ctx, q)
	if outcome.Failure != nil {
		telemetry.RecordError(span, outcome.Failure)
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAction, outcome.Action.String(),
		telemetry.SpanAttrDealID, outcome.RecordID,
	)
	s.recorder.record(ctx, outcome)
	return outcome
}

func (s *QuoteSyncService) syncOne(ctx context.Context, q *integration.Quote) integration.SyncOutcome {
	quoteNum := q.Number()

	if err := q.Validate(); err != nil {
		s.logger.Warn("Skipping invalid quote", zap.Int64("quote_num", quoteNum), zap.Error(err))
		return validationOutcome(integration.EntityTypeQuote, quoteNum, err, q.Snapshot())
	}

	existing, err := s.crm.FindByNaturalKey(ctx, integration.ObjectTypeDeal,
		integration.KeyQuoteNumber, fmt.Sprint(quoteNum), integration.PropertyDealStage)
	if err != nil {
		s.logger.Error("Failed to look up quote deal", zap.Int64("quote_num", quoteNum), zap.Error(err))
		return writeFailure(integration.EntityTypeQuote, quoteNum, integration.OperationLookup, err, q.Snapshot())
	}

	props, decision, err := s.transformer.TransformQuote(q, existing.CurrentStage())
	if err != nil {
		return validationOutcome(integration.EntityTypeQuote, quoteNum, err, q.Snapshot())
	}
	if !decision.Apply && decision.Current != nil {
		s.logger.Debug("Keeping quote deal stage",
			zap.Int64("quote_num", quoteNum),
			zap.String("current", *decision.Current),
			zap.String("derived", decision.Derived.String()),
		)
	}
	if decision.ReplacesCRMOnly {
		s.logger.Info("Replacing hand-set quote deal stage",
			zap.Int64("quote_num", quoteNum),
			zap.String("current", *decision.Current),
			zap.String("derived", decision.Derived.String()),
		)
	}

	custNum := *q.CustNum
	companyID, err := findCompany(ctx, s.crm, custNum)
	if err != nil {
		s.logger.Error("Failed to look up company", zap.Int64("cust_num", custNum), zap.Error(err))
		return writeFailure(integration.EntityTypeQuote, quoteNum, integration.OperationLookup, err, q.Snapshot())
	}
	if companyID == "" {
		s.logger.Warn("Skipping quote without company",
			zap.Int64("quote_num", quoteNum),
			zap.Int64("cust_num", custNum),
		)
		return missingParentOutcome(integration.EntityTypeQuote, quoteNum, custNum, q.Snapshot())
	}

	outcome, op, err := upsert(ctx, s.crm, integration.ObjectTypeDeal, existing, props)
	if err != nil {
		s.logger.Error("Failed to write quote deal",
			zap.Int64("quote_num", quoteNum),
			zap.String("operation", string(op)),
			zap.Error(err),
		)
		return writeFailure(integration.EntityTypeQuote, quoteNum, op, err, q.Snapshot())
	}

	err = s.crm.Associate(ctx, integration.ObjectTypeDeal, outcome.RecordID,
		integration.ObjectTypeCompany, companyID, integration.AssociationDealToCompany)
	if err != nil {
		s.logger.Warn("Failed to associate quote deal to company",
			zap.Int64("quote_num", quoteNum),
			zap.String("deal_id", outcome.RecordID),
			zap.Error(err),
		)
		outcome.Warn(integration.NewRecordFailure(integration.EntityTypeQuote, quoteNum,
			integration.OperationAssociate, integration.FailureKindAssociation, err, ""))
	}

	if len(q.QuoteDtls) > 0 {
		outcome.Lines = s.lines.SyncQuoteLines(ctx, outcome.RecordID, q.QuoteDtls, quoteNum)
	}

	if q.Ordered != nil && *q.Ordered && s.orders != nil {
		s.cascadeOrder(ctx, quoteNum, outcome.RecordID, companyID, &outcome)
	}

	s.logger.Debug("Synced quote",
		zap.Int64("quote_num", quoteNum),
		zap.String("deal_id", outcome.RecordID),
		zap.String("action", outcome.Action.String()),
		zap.String("stage", decision.Derived.String()),
	)
	return outcome
}

// cascadeOrder syncs the sales order created from a converted quote and links
// the two deals. Problems are attached to the quote outcome as warnings; the
// quote itself has already synced.
func (s *QuoteSyncService) cascadeOrder(ctx context.Context, quoteNum int64, quoteDealID, companyID string, outcome *integration.SyncOutcome) {
	order, err := s.source.GetOrderByQuote(ctx, quoteNum)
	if err != nil {
		s.logger.Warn("Failed to fetch order for converted quote", zap.Int64("quote_num", quoteNum), zap.Error(err))
		outcome.Warn(integration.NewRecordFailure(integration.EntityTypeQuote, quoteNum,
			integration.OperationCascade, integration.FailureKindCascade, err, ""))
		return
	}
	if order == nil {
		s.logger.Info("Converted quote has no order yet", zap.Int64("quote_num", quoteNum))
		return
	}

	orderOutcome := s.orders.syncOrder(ctx, order, companyID)
	s.orders.recorder.record(ctx, orderOutcome)
	outcome.Lines.Add(orderOutcome.Lines)

	if !orderOutcome.Succeeded() {
		err := fmt.Errorf("order %d: %s", order.Number(), orderOutcome.Action)
		if orderOutcome.Failure != nil {
			err = fmt.Errorf("order %d: %w", order.Number(), orderOutcome.Failure)
		}
		s.logger.Warn("Failed to sync order for converted quote",
			zap.Int64("quote_num", quoteNum),
			zap.Int64("order_num", order.Number()),
			zap.Error(err),
		)
		outcome.Warn(integration.NewRecordFailure(integration.EntityTypeQuote, quoteNum,
			integration.OperationCascade, integration.FailureKindCascade, err, ""))
		return
	}

	err = s.crm.Associate(ctx, integration.ObjectTypeDeal, quoteDealID,
		integration.ObjectTypeDeal, orderOutcome.RecordID, integration.AssociationDealToDeal)
	if err != nil {
		s.logger.Warn("Failed to associate quote deal to order deal",
			zap.Int64("quote_num", quoteNum),
			zap.Int64("order_num", order.Number()),
			zap.Error(err),
		)
		outcome.Warn(integration.NewRecordFailure(integration.EntityTypeQuote, quoteNum,
			integration.OperationAssociate, integration.FailureKindAssociation, err, ""))
	}

	s.logger.Info("Synced order for converted quote",
		zap.Int64("quote_num", quoteNum),
		zap.Int64("order_num", order.Number()),
		zap.String("order_deal_id", orderOutcome.RecordID),
	)
}

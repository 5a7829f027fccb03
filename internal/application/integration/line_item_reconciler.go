package integration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// LineItemReconciler
// ---------------------------------------------------------------------------

// LineItemReconciler upserts CRM line items for quote and order lines and
// creates placeholder products for SKUs the CRM does not know yet.
//
// The product cache lives as long as the reconciler, so one reconciler is
// built per sync run. It is not safe for concurrent use.
type LineItemReconciler struct {
	crm         integration.CRMClient
	transformer *integration.Transformer
	failures    integration.FailureSink
	metrics     *telemetry.SyncMetrics
	logger      *zap.Logger

	products map[string]string
}

// NewLineItemReconciler creates a reconciler with an empty product cache
func NewLineItemReconciler(
	crm integration.CRMClient,
	transformer *integration.Transformer,
	failures integration.FailureSink,
	logger *zap.Logger,
) *LineItemReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineItemReconciler{
		crm:         crm,
		transformer: transformer,
		failures:    failures,
		logger:      logger,
		products:    make(map[string]string),
	}
}

// SetMetrics sets the metrics collector
func (r *LineItemReconciler) SetMetrics(m *telemetry.SyncMetrics) {
	r.metrics = m
}

// CachedProducts returns the number of SKUs resolved during this run
func (r *LineItemReconciler) CachedProducts() int {
	return len(r.products)
}

// SyncQuoteLines reconciles the lines of one quote against its deal
func (r *LineItemReconciler) SyncQuoteLines(ctx context.Context, dealID string, lines []integration.QuoteLine, quoteNum int64) integration.LineSyncSummary {
	bags := make([]*integration.LineItemProperties, 0, len(lines))
	for i := range lines {
		bags = append(bags, r.transformer.TransformQuoteLine(&lines[i], &quoteNum))
	}
	return r.syncLines(ctx, dealID, bags)
}

// SyncOrderLines reconciles the lines of one sales order against its deal
func (r *LineItemReconciler) SyncOrderLines(ctx context.Context, dealID string, lines []integration.OrderLine, orderNum int64) integration.LineSyncSummary {
	bags := make([]*integration.LineItemProperties, 0, len(lines))
	for i := range lines {
		bags = append(bags, r.transformer.TransformOrderLine(&lines[i], &orderNum))
	}
	return r.syncLines(ctx, dealID, bags)
}

// syncLines handles every line independently; one failing line never stops the batch
func (r *LineItemReconciler) syncLines(ctx context.Context, dealID string, bags []*integration.LineItemProperties) integration.LineSyncSummary {
	var summary integration.LineSyncSummary

	for _, props := range bags {
		if props.SKU == nil {
			summary.Skipped++
			r.logger.Debug("Skipping line item without part number", zap.String("deal_id", dealID))
			continue
		}
		if props.EpicorLineItemID == nil {
			summary.Skipped++
			r.logger.Warn("Skipping line item without line number",
				zap.String("deal_id", dealID),
				zap.String("sku", *props.SKU),
			)
			continue
		}

		created, err := r.ensureProduct(ctx, props)
		if err != nil {
			r.logger.Warn("Failed to create product, continuing with line item",
				zap.String("sku", *props.SKU),
				zap.Error(err),
			)
			r.record(ctx, integration.NewRecordFailure(integration.EntityTypeProduct, *props.SKU,
				integration.OperationCreate, integration.FailureKindProduct, err, snapshotOf(props)))
		}
		if created {
			summary.ProductsCreated++
		}

		action, err := r.upsertLine(ctx, dealID, props)
		if err != nil {
			summary.Errors++
			continue
		}
		switch action {
		case integration.SyncActionCreated:
			summary.Created++
		case integration.SyncActionUpdated:
			summary.Updated++
		case integration.SyncActionSkipped:
			summary.Skipped++
		}
	}

	r.metrics.RecordLines(ctx, summary)
	telemetry.AddEvent(ctx, "line_items.reconciled",
		telemetry.SpanAttrDealID, dealID,
		telemetry.SpanAttrLineCount, len(bags),
		"created", summary.Created,
		"updated", summary.Updated,
		"errors", summary.Errors,
	)
	return summary
}

// ensureProduct makes sure a product with the line's SKU exists. It reports
// whether a product was created by this call.
func (r *LineItemReconciler) ensureProduct(ctx context.Context, props *integration.LineItemProperties) (bool, error) {
	sku := *props.SKU
	if _, ok := r.products[sku]; ok {
		return false, nil
	}

	existing, err := r.crm.FindByNaturalKey(ctx, integration.ObjectTypeProduct, integration.KeyProductSKU, sku)
	if err != nil {
		return false, fmt.Errorf("search product %s: %w", sku, err)
	}
	if existing != nil {
		r.products[sku] = existing.ID
		return false, nil
	}

	product, err := r.crm.Create(ctx, integration.ObjectTypeProduct, r.transformer.MinimalProduct(props))
	if err != nil {
		return false, fmt.Errorf("create product %s: %w", sku, err)
	}
	r.products[sku] = product.ID
	r.logger.Info("Created product", zap.String("sku", sku), zap.String("product_id", product.ID))
	return true, nil
}

// upsertLine updates the line item matching the natural key or creates and
// associates a new one. Existing line items keep their association.
func (r *LineItemReconciler) upsertLine(ctx context.Context, dealID string, props *integration.LineItemProperties) (integration.SyncAction, error) {
	lineID := *props.EpicorLineItemID

	existing, err := r.crm.FindByNaturalKey(ctx, integration.ObjectTypeLineItem, integration.KeyLineItemID, lineID)
	if err != nil {
		r.fail(ctx, props, integration.OperationLookup, err)
		return integration.SyncActionFailed, err
	}

	if existing != nil {
		if err := matchLineID(existing, lineID); err != nil {
			r.logger.Warn("Skipping line item matched to a foreign key",
				zap.String("line_item_id", lineID),
				zap.String("crm_id", existing.ID),
				zap.Error(err),
			)
			r.record(ctx, integration.NewRecordFailure(integration.EntityTypeLineItem, lineID,
				integration.OperationLookup, integration.FailureKindValidation, err, snapshotOf(props)))
			return integration.SyncActionSkipped, nil
		}
		if _, err := r.crm.Update(ctx, integration.ObjectTypeLineItem, existing.ID, props); err != nil {
			r.fail(ctx, props, integration.OperationUpdate, err)
			return integration.SyncActionFailed, err
		}
		return integration.SyncActionUpdated, nil
	}

	created, err := r.crm.Create(ctx, integration.ObjectTypeLineItem, props)
	if err != nil {
		r.fail(ctx, props, integration.OperationCreate, err)
		return integration.SyncActionFailed, err
	}

	err = r.crm.Associate(ctx, integration.ObjectTypeLineItem, created.ID,
		integration.ObjectTypeDeal, dealID, integration.AssociationLineItemToDeal)
	if err != nil {
		r.logger.Warn("Failed to associate line item to deal",
			zap.String("line_item_id", lineID),
			zap.String("deal_id", dealID),
			zap.Error(err),
		)
		r.record(ctx, integration.NewRecordFailure(integration.EntityTypeLineItem, lineID,
			integration.OperationAssociate, integration.FailureKindAssociation, err, snapshotOf(props)))
	}
	return integration.SyncActionCreated, nil
}

// matchLineID checks that a search hit carries exactly the key searched for.
// CRM string search ignores case, so a hit may hold a key another system wrote.
func matchLineID(rec *integration.CRMRecord, want string) error {
	got := rec.Property(integration.KeyLineItemID)
	if got == nil {
		return nil
	}
	id, err := integration.ParseLineID(*got)
	if err != nil {
		return err
	}
	if id.String() != want {
		return fmt.Errorf("%w: crm holds %q for %q", integration.ErrInvalidLineID, *got, want)
	}
	return nil
}

func (r *LineItemReconciler) fail(ctx context.Context, props *integration.LineItemProperties, op integration.Operation, err error) {
	lineID := *props.EpicorLineItemID
	r.logger.Error("Failed to sync line item",
		zap.String("line_item_id", lineID),
		zap.String("operation", string(op)),
		zap.Error(err),
	)
	r.record(ctx, integration.NewRecordFailure(integration.EntityTypeLineItem, lineID, op,
		integration.FailureKindWrite, err, snapshotOf(props)))
}

func (r *LineItemReconciler) record(ctx context.Context, f integration.RecordFailure) {
	if r.failures != nil {
		r.failures.Record(f)
	}
	r.metrics.RecordFailure(ctx, f.Entity, f.Kind)
}

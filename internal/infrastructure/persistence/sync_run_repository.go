package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/persistence/models"
)

// DefaultRecentRuns is used when FindRecent is called without a positive limit
const DefaultRecentRuns = 20

// GormSyncRunRepository implements SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

var _ integration.SyncRunRepository = (*GormSyncRunRepository)(nil)

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Save inserts the run or replaces every column of an existing one
func (r *GormSyncRunRepository) Save(ctx context.Context, run *integration.RunSummary) error {
	if run == nil {
		return errors.New("persistence: nil run")
	}
	var model models.SyncRunModel
	if err := model.FromDomain(run); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("save sync run %s: %w", run.ID, err)
	}
	return nil
}

var upsertColumns = []string{
	"updated_at", "run_trigger", "status", "phases", "failure_count",
	"report_location", "error", "started_at", "finished_at",
}

// FindByID finds a run by ID
func (r *GormSyncRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.RunSummary, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSyncRunNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindRecent returns up to limit runs, most recent first
func (r *GormSyncRunRepository) FindRecent(ctx context.Context, limit int) ([]*integration.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}
	var runModels []models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*integration.RunSummary, 0, len(runModels))
	for i := range runModels {
		run, err := runModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// FindLatest returns the most recently started run
func (r *GormSyncRunRepository) FindLatest(ctx context.Context) (*integration.RunSummary, error) {
	runs, err := r.FindRecent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, integration.ErrSyncRunNotFound
	}
	return runs[0], nil
}

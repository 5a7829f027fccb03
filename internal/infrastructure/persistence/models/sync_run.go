package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/crmsync/internal/domain/integration"
)

// SyncRunModel is the persistence model for a RunSummary.
type SyncRunModel struct {
	BaseModel
	Trigger        integration.RunTrigger `gorm:"column:run_trigger;type:varchar(20);not null;index"`
	Status         integration.SyncStatus `gorm:"type:varchar(20);not null;index"`
	PhasesJSON     string                 `gorm:"type:text;column:phases"`
	FailureCount   int                    `gorm:"not null;default:0"`
	ReportLocation string                 `gorm:"type:varchar(1024)"`
	Error          string                 `gorm:"type:text"`
	StartedAt      time.Time              `gorm:"not null;index"`
	FinishedAt     *time.Time
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a RunSummary.
func (m *SyncRunModel) ToDomain() (*integration.RunSummary, error) {
	run := &integration.RunSummary{
		ID:             m.ID,
		Trigger:        m.Trigger,
		Status:         m.Status,
		Phases:         make([]*integration.PhaseSummary, 0),
		FailureCount:   m.FailureCount,
		ReportLocation: m.ReportLocation,
		Error:          m.Error,
		StartedAt:      m.StartedAt.UTC(),
	}
	if m.FinishedAt != nil {
		run.FinishedAt = m.FinishedAt.UTC()
	}

	if m.PhasesJSON != "" {
		if err := json.Unmarshal([]byte(m.PhasesJSON), &run.Phases); err != nil {
			return nil, fmt.Errorf("decode phases of run %s: %w", m.ID, err)
		}
	}
	return run, nil
}

// FromDomain populates the persistence model from a RunSummary.
func (m *SyncRunModel) FromDomain(run *integration.RunSummary) error {
	phases := run.Phases
	if phases == nil {
		phases = []*integration.PhaseSummary{}
	}
	data, err := json.Marshal(phases)
	if err != nil {
		return fmt.Errorf("encode phases of run %s: %w", run.ID, err)
	}

	m.ID = run.ID
	m.Trigger = run.Trigger
	m.Status = run.Status
	m.PhasesJSON = string(data)
	m.FailureCount = run.FailureCount
	m.ReportLocation = run.ReportLocation
	m.Error = run.Error
	m.StartedAt = run.StartedAt.UTC()
	m.FinishedAt = nil
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt.UTC()
		m.FinishedAt = &finished
	}
	return nil
}

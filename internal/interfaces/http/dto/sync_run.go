package dto

import (
	"time"

	"github.com/erp/crmsync/internal/domain/integration"
)

// TriggerSyncRequest starts a sync run. Omitted phases default to enabled.
type TriggerSyncRequest struct {
	Customers      *bool  `json:"customers"`
	Quotes         *bool  `json:"quotes"`
	Orders         *bool  `json:"orders"`
	CustomerFilter string `json:"customer_filter" binding:"omitempty,max=1000"`
	QuoteFilter    string `json:"quote_filter" binding:"omitempty,max=1000"`
	OrderFilter    string `json:"order_filter" binding:"omitempty,max=1000"`
}

// ListSyncRunsQuery is the query string of the run listing
type ListSyncRunsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// PhaseResponse is the API view of one phase
type PhaseResponse struct {
	Phase           string    `json:"phase"`
	Status          string    `json:"status"`
	Total           int       `json:"total"`
	Created         int       `json:"created"`
	Updated         int       `json:"updated"`
	Skipped         int       `json:"skipped"`
	Errors          int       `json:"errors"`
	Warnings        int       `json:"warnings"`
	LinesCreated    int       `json:"lines_created"`
	LinesUpdated    int       `json:"lines_updated"`
	ProductsCreated int       `json:"products_created"`
	FatalError      string    `json:"fatal_error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at,omitzero"`
	DurationMs      int64     `json:"duration_ms"`
}

// SyncRunResponse is the API view of a run
type SyncRunResponse struct {
	ID             string          `json:"id"`
	Trigger        string          `json:"trigger"`
	Status         string          `json:"status"`
	Phases         []PhaseResponse `json:"phases"`
	FailureCount   int             `json:"failure_count"`
	ReportLocation string          `json:"report_location,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at,omitzero"`
	DurationMs     int64           `json:"duration_ms"`
}

// ToSyncRunResponse converts a run summary
func ToSyncRunResponse(run *integration.RunSummary) SyncRunResponse {
	resp := SyncRunResponse{
		ID:             run.ID.String(),
		Trigger:        string(run.Trigger),
		Status:         string(run.Status),
		Phases:         make([]PhaseResponse, 0, len(run.Phases)),
		FailureCount:   run.FailureCount,
		ReportLocation: run.ReportLocation,
		Error:          run.Error,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		DurationMs:     run.Duration().Milliseconds(),
	}
	for _, p := range run.Phases {
		if p == nil {
			continue
		}
		resp.Phases = append(resp.Phases, PhaseResponse{
			Phase:           p.Phase.String(),
			Status:          string(p.Status),
			Total:           p.Total,
			Created:         p.Created,
			Updated:         p.Updated,
			Skipped:         p.Skipped,
			Errors:          p.Errors,
			Warnings:        p.Warnings,
			LinesCreated:    p.Lines.Created,
			LinesUpdated:    p.Lines.Updated,
			ProductsCreated: p.Lines.ProductsCreated,
			FatalError:      p.FatalError,
			StartedAt:       p.StartedAt,
			FinishedAt:      p.FinishedAt,
			DurationMs:      p.Duration().Milliseconds(),
		})
	}
	return resp
}

// ToSyncRunResponses converts a list of run summaries
func ToSyncRunResponses(runs []*integration.RunSummary) []SyncRunResponse {
	out := make([]SyncRunResponse, 0, len(runs))
	for _, r := range runs {
		if r != nil {
			out = append(out, ToSyncRunResponse(r))
		}
	}
	return out
}

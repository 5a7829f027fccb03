package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncStatus represents the outcome of a phase or a run
// ---------------------------------------------------------------------------

// SyncStatus represents the synchronization status
type SyncStatus string

const (
	// SyncStatusRunning indicates the run has not finished yet
	SyncStatusRunning SyncStatus = "RUNNING"
	// SyncStatusSuccess indicates every record synced
	SyncStatusSuccess SyncStatus = "SUCCESS"
	// SyncStatusPartial indicates some records failed
	SyncStatusPartial SyncStatus = "PARTIAL"
	// SyncStatusFailed indicates nothing synced or the phase aborted
	SyncStatusFailed SyncStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusRunning, SyncStatusSuccess, SyncStatusPartial, SyncStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncStatus
func (s SyncStatus) String() string {
	return string(s)
}

// statusFor applies the usual success/partial/failed rule to counters
func statusFor(succeeded, failed int) SyncStatus {
	switch {
	case failed == 0:
		return SyncStatusSuccess
	case succeeded > 0:
		return SyncStatusPartial
	default:
		return SyncStatusFailed
	}
}

// ---------------------------------------------------------------------------
// Per-record outcomes
// ---------------------------------------------------------------------------

// SyncAction is what happened to one source record
type SyncAction string

const (
	SyncActionCreated SyncAction = "created"
	SyncActionUpdated SyncAction = "updated"
	SyncActionSkipped SyncAction = "skipped"
	SyncActionFailed  SyncAction = "failed"
)

// String returns the string representation of SyncAction
func (a SyncAction) String() string {
	return string(a)
}

// FailureKind tags a failure as recoverable for the record or fatal for the phase
type FailureKind string

const (
	// FailureKindFetch means the source could not be read; ends the phase
	FailureKindFetch FailureKind = "fetch"
	// FailureKindValidation means a required source field was missing
	FailureKindValidation FailureKind = "validation"
	// FailureKindWrite means the CRM rejected a lookup, create or update
	FailureKindWrite FailureKind = "write"
	// FailureKindMissingParent means the company for a quote or order is not in the CRM
	FailureKindMissingParent FailureKind = "missing_parent"
	// FailureKindAssociation means a link could not be created; the record still synced
	FailureKindAssociation FailureKind = "association"
	// FailureKindProduct means a placeholder product could not be created
	FailureKindProduct FailureKind = "product"
	// FailureKindCascade means the order linked to a converted quote could not be synced
	FailureKindCascade FailureKind = "cascade"
)

// String returns the string representation of FailureKind
func (k FailureKind) String() string {
	return string(k)
}

// IsPhaseFatal returns true only for failures that end the whole phase
func (k FailureKind) IsPhaseFatal() bool {
	return k == FailureKindFetch
}

// IsWarning returns true for failures that do not fail the record
func (k FailureKind) IsWarning() bool {
	switch k {
	case FailureKindAssociation, FailureKindProduct, FailureKindCascade:
		return true
	default:
		return false
	}
}

// Operation names the step a failure happened in
type Operation string

const (
	OperationFetch     Operation = "fetch"
	OperationTransform Operation = "transform"
	OperationLookup    Operation = "lookup"
	OperationCreate    Operation = "create"
	OperationUpdate    Operation = "update"
	OperationAssociate Operation = "associate"
	OperationCascade   Operation = "cascade"
)

// RecordFailure is one structured per-record failure entry
type RecordFailure struct {
	Entity     EntityType
	EntityID   string
	Operation  Operation
	Kind       FailureKind
	Message    string
	Snapshot   string
	OccurredAt time.Time
}

// SummaryKey groups failures as "entity/error_type" in report summaries
func (f RecordFailure) SummaryKey() string {
	return f.Entity.String() + "/" + f.Kind.String()
}

// NewRecordFailure builds a failure entry from an error
func NewRecordFailure(entity EntityType, entityID any, op Operation, kind FailureKind, err error, snapshot string) RecordFailure {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return RecordFailure{
		Entity:     entity,
		EntityID:   fmt.Sprint(entityID),
		Operation:  op,
		Kind:       kind,
		Message:    msg,
		Snapshot:   snapshot,
		OccurredAt: time.Now().UTC(),
	}
}

// Error implements error so failures can be logged and wrapped uniformly
func (f RecordFailure) Error() string {
	return fmt.Sprintf("%s %s: %s failed (%s): %s", f.Entity, f.EntityID, f.Operation, f.Kind, f.Message)
}

// SyncOutcome is the tagged result of syncing one source record.
// Recoverable problems are carried here instead of being returned as errors.
type SyncOutcome struct {
	Action   SyncAction
	RecordID string
	Failure  *RecordFailure
	Warnings []RecordFailure
	Lines    LineSyncSummary
}

// Created returns an outcome for a newly created CRM record
func Created(id string) SyncOutcome {
	return SyncOutcome{Action: SyncActionCreated, RecordID: id}
}

// Updated returns an outcome for an updated CRM record
func Updated(id string) SyncOutcome {
	return SyncOutcome{Action: SyncActionUpdated, RecordID: id}
}

// Skipped returns an outcome for a record that was intentionally not written
func Skipped(failure *RecordFailure) SyncOutcome {
	return SyncOutcome{Action: SyncActionSkipped, Failure: failure}
}

// Failed returns an outcome for a record that could not be synced
func Failed(failure RecordFailure) SyncOutcome {
	return SyncOutcome{Action: SyncActionFailed, Failure: &failure}
}

// Warn attaches a non-fatal failure to the outcome
func (o *SyncOutcome) Warn(f RecordFailure) {
	o.Warnings = append(o.Warnings, f)
}

// Succeeded returns true for created or updated outcomes
func (o SyncOutcome) Succeeded() bool {
	return o.Action == SyncActionCreated || o.Action == SyncActionUpdated
}

// ---------------------------------------------------------------------------
// Summaries
// ---------------------------------------------------------------------------

// LineSyncSummary counts line-item reconciliation results
type LineSyncSummary struct {
	Created         int `json:"created"`
	Updated         int `json:"updated"`
	ProductsCreated int `json:"products_created"`
	Skipped         int `json:"skipped"`
	Errors          int `json:"errors"`
}

// Add accumulates another summary into this one
func (s *LineSyncSummary) Add(other LineSyncSummary) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.ProductsCreated += other.ProductsCreated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}

// Phase names one orchestrator phase
type Phase string

const (
	PhaseCustomers Phase = "customers"
	PhaseQuotes    Phase = "quotes"
	PhaseOrders    Phase = "orders"
)

// String returns the string representation of Phase
func (p Phase) String() string {
	return string(p)
}

// PhaseSummary aggregates the outcomes of one synchronizer run
type PhaseSummary struct {
	Phase      Phase           `json:"phase"`
	Status     SyncStatus      `json:"status"`
	Total      int             `json:"total"`
	Created    int             `json:"created"`
	Updated    int             `json:"updated"`
	Skipped    int             `json:"skipped"`
	Errors     int             `json:"errors"`
	Warnings   int             `json:"warnings"`
	Lines      LineSyncSummary `json:"lines"`
	FatalError string          `json:"fatal_error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// NewPhaseSummary starts a summary for the phase
func NewPhaseSummary(phase Phase, startedAt time.Time) *PhaseSummary {
	return &PhaseSummary{Phase: phase, Status: SyncStatusRunning, StartedAt: startedAt}
}

// Record counts one outcome
func (s *PhaseSummary) Record(o SyncOutcome) {
	s.Total++
	switch o.Action {
	case SyncActionCreated:
		s.Created++
	case SyncActionUpdated:
		s.Updated++
	case SyncActionSkipped:
		s.Skipped++
		if o.Failure != nil {
			s.Errors++
		}
	case SyncActionFailed:
		s.Errors++
	}
	s.Warnings += len(o.Warnings)
	s.Lines.Add(o.Lines)
}

// Abort marks the phase as fatally failed
func (s *PhaseSummary) Abort(err error, finishedAt time.Time) {
	if err != nil {
		s.FatalError = err.Error()
	}
	s.Status = SyncStatusFailed
	s.FinishedAt = finishedAt
}

// Finish computes the final status
func (s *PhaseSummary) Finish(finishedAt time.Time) {
	s.FinishedAt = finishedAt
	if s.FatalError != "" {
		s.Status = SyncStatusFailed
		return
	}
	s.Status = statusFor(s.Created+s.Updated, s.Errors)
}

// Merge folds the counters of one partition into s. The first fatal
// partition error is kept.
func (s *PhaseSummary) Merge(other *PhaseSummary) {
	if other == nil {
		return
	}
	s.Total += other.Total
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.Warnings += other.Warnings
	s.Lines.Add(other.Lines)
	if s.FatalError == "" {
		s.FatalError = other.FatalError
	}
}

// Duration returns how long the phase ran
func (s *PhaseSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunTrigger records what started a run
type RunTrigger string

const (
	RunTriggerCLI      RunTrigger = "cli"
	RunTriggerSchedule RunTrigger = "schedule"
	RunTriggerAPI      RunTrigger = "api"
	RunTriggerBackfill RunTrigger = "backfill"
)

// RunSummary is the result of one orchestrator run
type RunSummary struct {
	ID             uuid.UUID       `json:"id"`
	Trigger        RunTrigger      `json:"trigger"`
	Status         SyncStatus      `json:"status"`
	Phases         []*PhaseSummary `json:"phases"`
	FailureCount   int             `json:"failure_count"`
	ReportLocation string          `json:"report_location,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// NewRunSummary starts a run
func NewRunSummary(trigger RunTrigger, startedAt time.Time) *RunSummary {
	return &RunSummary{
		ID:        uuid.New(),
		Trigger:   trigger,
		Status:    SyncStatusRunning,
		StartedAt: startedAt,
	}
}

// AddPhase appends a finished phase
func (r *RunSummary) AddPhase(p *PhaseSummary) {
	r.Phases = append(r.Phases, p)
}

// Phase returns the summary of the named phase, nil when it did not run
func (r *RunSummary) Phase(phase Phase) *PhaseSummary {
	for _, p := range r.Phases {
		if p.Phase == phase {
			return p
		}
	}
	return nil
}

// HasFatalError returns true if any phase aborted
func (r *RunSummary) HasFatalError() bool {
	for _, p := range r.Phases {
		if p.FatalError != "" {
			return true
		}
	}
	return false
}

// Finish computes the run status from its phases
func (r *RunSummary) Finish(finishedAt time.Time) {
	r.FinishedAt = finishedAt
	if r.Error != "" {
		r.Status = SyncStatusFailed
		return
	}
	ok, bad := 0, 0
	for _, p := range r.Phases {
		switch p.Status {
		case SyncStatusSuccess:
			ok++
		case SyncStatusPartial:
			ok++
			bad++
		default:
			bad++
		}
	}
	r.Status = statusFor(ok, bad)
}

// Duration returns how long the run took
func (r *RunSummary) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

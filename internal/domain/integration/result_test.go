package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPhaseSummary_Record(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s := NewPhaseSummary(PhaseQuotes, start)

	created := Created("d1")
	created.Lines = LineSyncSummary{Created: 2, ProductsCreated: 1}
	created.Warn(NewRecordFailure(EntityTypeQuote, 1, OperationAssociate, FailureKindAssociation, errors.New("boom"), ""))
	s.Record(created)
	s.Record(Updated("d2"))

	missing := NewRecordFailure(EntityTypeQuote, 3, OperationAssociate, FailureKindMissingParent, ErrMissingParent, "")
	s.Record(Skipped(&missing))
	s.Record(Skipped(nil))
	s.Record(Failed(NewRecordFailure(EntityTypeQuote, 5, OperationCreate, FailureKindWrite, errors.New("500"), "")))

	s.Finish(start.Add(time.Minute))

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.Created)
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, 2, s.Errors)
	assert.Equal(t, 1, s.Warnings)
	assert.Equal(t, 2, s.Lines.Created)
	assert.Equal(t, SyncStatusPartial, s.Status)
	assert.Equal(t, time.Minute, s.Duration())
}

func TestPhaseSummary_Merge(t *testing.T) {
	now := time.Now()
	total := NewPhaseSummary(PhaseOrders, now)

	y1 := NewPhaseSummary(PhaseOrders, now)
	y1.Record(Created("a"))
	y1.Finish(now)
	y2 := NewPhaseSummary(PhaseOrders, now)
	y2.Abort(errors.New("timeout"), now)

	total.Merge(y1)
	total.Merge(y2)
	total.Merge(nil)
	total.Finish(now)

	assert.Equal(t, 1, total.Created)
	assert.Equal(t, "timeout", total.FatalError)
	assert.Equal(t, SyncStatusFailed, total.Status)
}

func TestRecordFailure_Error(t *testing.T) {
	f := NewRecordFailure(EntityTypeOrder, int64(42), OperationUpdate, FailureKindWrite, errors.New("conflict"), "{}")
	assert.Equal(t, "42", f.EntityID)
	assert.Equal(t, "order 42: update failed (write): conflict", f.Error())
	assert.True(t, FailureKindFetch.IsPhaseFatal())
	assert.True(t, FailureKindCascade.IsWarning())
	assert.False(t, FailureKindWrite.IsWarning())
}

func TestPhaseSummary_Status(t *testing.T) {
	now := time.Now()
	fail := NewRecordFailure(EntityTypeQuote, 1, OperationCreate, FailureKindWrite, errors.New("boom"), "{}")

	t.Run("all succeeded", func(t *testing.T) {
		s := NewPhaseSummary(PhaseQuotes, now)
		s.Record(Created("1"))
		s.Record(Updated("2"))
		s.Finish(now)
		assert.Equal(t, SyncStatusSuccess, s.Status)
		assert.Equal(t, 2, s.Total)
	})

	t.Run("some failed", func(t *testing.T) {
		s := NewPhaseSummary(PhaseQuotes, now)
		s.Record(Created("1"))
		s.Record(Failed(fail))
		s.Finish(now)
		assert.Equal(t, SyncStatusPartial, s.Status)
		assert.Equal(t, 1, s.Errors)
	})

	t.Run("skipped with failure counts as error", func(t *testing.T) {
		s := NewPhaseSummary(PhaseQuotes, now)
		s.Record(Skipped(&fail))
		s.Record(Skipped(nil))
		s.Finish(now)
		assert.Equal(t, SyncStatusFailed, s.Status)
		assert.Equal(t, 2, s.Skipped)
		assert.Equal(t, 1, s.Errors)
	})

	t.Run("all failed", func(t *testing.T) {
		s := NewPhaseSummary(PhaseCustomers, now)
		s.Record(Failed(fail))
		s.Finish(now)
		assert.Equal(t, SyncStatusFailed, s.Status)
	})

	t.Run("empty phase", func(t *testing.T) {
		s := NewPhaseSummary(PhaseOrders, now)
		s.Finish(now)
		assert.Equal(t, SyncStatusSuccess, s.Status)
	})

	t.Run("abort", func(t *testing.T) {
		s := NewPhaseSummary(PhaseOrders, now)
		s.Abort(ErrSourceUnavailable, now.Add(time.Second))
		assert.Equal(t, SyncStatusFailed, s.Status)
		assert.Equal(t, ErrSourceUnavailable.Error(), s.FatalError)
		assert.Equal(t, time.Second, s.Duration())
	})

	t.Run("warnings and lines", func(t *testing.T) {
		s := NewPhaseSummary(PhaseQuotes, now)
		o := Created("1")
		o.Warn(NewRecordFailure(EntityTypeQuote, 1, OperationAssociate, FailureKindAssociation, errors.New("x"), ""))
		o.Lines = LineSyncSummary{Created: 2, ProductsCreated: 1}
		s.Record(o)
		s.Finish(now)
		assert.Equal(t, SyncStatusSuccess, s.Status)
		assert.Equal(t, 1, s.Warnings)
		assert.Equal(t, 2, s.Lines.Created)
	})
}

func TestRunSummary_Finish(t *testing.T) {
	now := time.Now()
	ok := &PhaseSummary{Phase: PhaseCustomers, Status: SyncStatusSuccess}
	bad := &PhaseSummary{Phase: PhaseQuotes, Status: SyncStatusFailed, FatalError: "down"}

	run := NewRunSummary(RunTriggerCLI, now)
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, SyncStatusRunning, run.Status)
	run.AddPhase(ok)
	run.AddPhase(bad)
	run.Finish(now.Add(time.Minute))

	assert.Equal(t, SyncStatusPartial, run.Status)
	assert.True(t, run.HasFatalError())
	assert.Same(t, bad, run.Phase(PhaseQuotes))
	assert.Nil(t, run.Phase(PhaseOrders))
	assert.Equal(t, time.Minute, run.Duration())

	all := NewRunSummary(RunTriggerSchedule, now)
	all.AddPhase(ok)
	all.Finish(now)
	assert.Equal(t, SyncStatusSuccess, all.Status)
	assert.False(t, all.HasFatalError())
}

func TestFailureKind(t *testing.T) {
	assert.True(t, FailureKindFetch.IsPhaseFatal())
	assert.False(t, FailureKindWrite.IsPhaseFatal())
	assert.True(t, FailureKindAssociation.IsWarning())
	assert.False(t, FailureKindMissingParent.IsWarning())

	f := NewRecordFailure(EntityTypeOrder, int64(9), OperationAssociate, FailureKindMissingParent, ErrMissingParent, "")
	assert.Equal(t, "9", f.EntityID)
	assert.Contains(t, f.Error(), "order 9: associate failed (missing_parent)")
}

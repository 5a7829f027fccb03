package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/crmsync/internal/domain/integration"
)

type memoryCheckpoints struct {
	saved *integration.Checkpoint
	saves int
}

func (s *memoryCheckpoints) Load(context.Context) (*integration.Checkpoint, error) {
	if s.saved == nil {
		return nil, integration.ErrCheckpointNotFound
	}
	cp := *s.saved
	return &cp, nil
}

func (s *memoryCheckpoints) Save(_ context.Context, cp *integration.Checkpoint) error {
	c := *cp
	c.QuotesYearsDone = append([]int(nil), cp.QuotesYearsDone...)
	c.OrdersYearsDone = append([]int(nil), cp.OrdersYearsDone...)
	s.saved = &c
	s.saves++
	return nil
}

func (s *memoryCheckpoints) Reset(context.Context) error {
	s.saved = nil
	return nil
}

func quoteYear(y int) string { return integration.YearFilter(QuoteYearField, y) }

func orderYear(y int) string { return integration.YearFilter(OrderYearField, y) }

func newTestBackfill(source integration.SourceClient, crm integration.CRMClient, store integration.CheckpointStore) *BackfillService {
	return NewBackfillService(BackfillConfig{
		Source:      source,
		CRM:         crm,
		Transformer: testTransformer(),
		Checkpoints: store,
	})
}

func TestBackfillOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    BackfillOptions
		wantErr bool
	}{
		{"valid range", BackfillOptions{StartYear: 2020, EndYear: 2024}, false},
		{"single year", BackfillOptions{StartYear: 2024, EndYear: 2024, QuotesOnly: true}, false},
		{"reversed range", BackfillOptions{StartYear: 2025, EndYear: 2024}, true},
		{"missing year", BackfillOptions{EndYear: 2024}, true},
		{"two only flags", BackfillOptions{StartYear: 2020, EndYear: 2024, QuotesOnly: true, OrdersOnly: true}, true},
		{"customers only and skip", BackfillOptions{StartYear: 2020, EndYear: 2024, CustomersOnly: true, SkipCustomers: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBackfillOptions)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBackfill_FullRunCompletesCheckpoint(t *testing.T) {
	crm := newFakeCRM()
	source := new(MockSourceClient)
	source.On("FetchCustomers", mock.Anything, "").Return([]integration.Customer{customer(7, "Acme")}, nil)
	source.On("FetchQuotes", mock.Anything, quoteYear(2023)).Return([]integration.Quote{quote(500, 7)}, nil)
	source.On("FetchQuotes", mock.Anything, quoteYear(2024)).Return([]integration.Quote{quote(501, 7)}, nil)
	source.On("FetchOrders", mock.Anything, orderYear(2023)).Return([]integration.Order{}, nil)
	source.On("FetchOrders", mock.Anything, orderYear(2024)).Return([]integration.Order{order(900, 7)}, nil)
	store := &memoryCheckpoints{}

	result, err := newTestBackfill(source, crm, store).Run(context.Background(),
		BackfillOptions{StartYear: 2023, EndYear: 2024})

	require.NoError(t, err)
	cp := result.Checkpoint
	assert.Equal(t, integration.BackfillPhaseComplete, cp.Phase)
	assert.True(t, cp.CustomersDone)
	assert.Equal(t, []int{2023, 2024}, cp.QuotesYearsDone)
	assert.Equal(t, []int{2023, 2024}, cp.OrdersYearsDone)
	assert.Equal(t, integration.PhaseStats{Total: 2, Created: 2}, cp.StatsFor(integration.PhaseQuotes))

	require.NotNil(t, store.saved)
	assert.Equal(t, integration.BackfillPhaseComplete, store.saved.Phase)

	assert.Equal(t, integration.RunTriggerBackfill, result.Run.Trigger)
	assert.Equal(t, integration.SyncStatusSuccess, result.Run.Status)
	assert.Equal(t, 2, result.Run.Phase(integration.PhaseQuotes).Created)
	assert.Equal(t, 3, crm.count(integration.ObjectTypeDeal))
	source.AssertExpectations(t)
}

func TestBackfill_ResumeSkipsCompletedPartitions(t *testing.T) {
	crm := newFakeCRM()
	crm.seed(integration.ObjectTypeCompany, map[string]string{integration.KeyCustomerNumber: "7"})
	store := &memoryCheckpoints{}
	prior := integration.NewCheckpoint(2023, 2024, testNow)
	prior.CompleteCustomers(integration.PhaseStats{Total: 1, Created: 1}, testNow)
	prior.CompleteQuoteYear(2023, integration.PhaseStats{Total: 4, Created: 4}, testNow)
	require.NoError(t, store.Save(context.Background(), prior))

	source := new(MockSourceClient)
	source.On("FetchQuotes", mock.Anything, quoteYear(2024)).Return([]integration.Quote{quote(501, 7)}, nil)
	source.On("FetchOrders", mock.Anything, orderYear(2023)).Return([]integration.Order{}, nil)
	source.On("FetchOrders", mock.Anything, orderYear(2024)).Return([]integration.Order{}, nil)

	result, err := newTestBackfill(source, crm, store).Run(context.Background(),
		BackfillOptions{StartYear: 2020, EndYear: 2024, Resume: true})

	require.NoError(t, err)
	assert.Equal(t, 2023, result.Checkpoint.StartYear, "resume keeps the saved year range")
	assert.Equal(t, integration.BackfillPhaseComplete, result.Checkpoint.Phase)
	assert.Equal(t, integration.PhaseStats{Total: 5, Created: 5}, result.Checkpoint.StatsFor(integration.PhaseQuotes))
	source.AssertNotCalled(t, "FetchCustomers", mock.Anything, mock.Anything)
	source.AssertNotCalled(t, "FetchQuotes", mock.Anything, quoteYear(2023))
	source.AssertExpectations(t)
}

func TestBackfill_FailedYearIsRetriedOnResume(t *testing.T) {
	crm := newFakeCRM()
	crm.seed(integration.ObjectTypeCompany, map[string]string{integration.KeyCustomerNumber: "7"})
	store := &memoryCheckpoints{}

	source := new(MockSourceClient)
	source.On("FetchQuotes", mock.Anything, quoteYear(2023)).Return(nil, integration.ErrSourceUnavailable).Once()
	source.On("FetchQuotes", mock.Anything, quoteYear(2024)).Return([]integration.Quote{quote(501, 7)}, nil).Once()

	svc := newTestBackfill(source, crm, store)
	result, err := svc.Run(context.Background(), BackfillOptions{StartYear: 2023, EndYear: 2024, QuotesOnly: true})

	require.NoError(t, err)
	assert.Equal(t, []int{2024}, result.Checkpoint.QuotesYearsDone)
	assert.Equal(t, integration.BackfillPhaseCustomers, result.Checkpoint.Phase)
	quotes := result.Run.Phase(integration.PhaseQuotes)
	require.NotNil(t, quotes)
	assert.Equal(t, integration.SyncStatusFailed, quotes.Status)
	assert.Equal(t, 1, quotes.Created)

	source.On("FetchQuotes", mock.Anything, quoteYear(2023)).Return([]integration.Quote{quote(500, 7)}, nil).Once()
	resumed, err := svc.Run(context.Background(), BackfillOptions{StartYear: 2023, EndYear: 2024, QuotesOnly: true, Resume: true})

	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2023, 2024}, resumed.Checkpoint.QuotesYearsDone)
	assert.Equal(t, integration.BackfillPhaseOrders, resumed.Checkpoint.Phase)
	source.AssertExpectations(t)
}

func TestBackfill_ResetStartsOver(t *testing.T) {
	store := &memoryCheckpoints{}
	prior := integration.NewCheckpoint(2023, 2023, testNow)
	prior.CompleteCustomers(integration.PhaseStats{}, testNow)
	require.NoError(t, store.Save(context.Background(), prior))

	source := new(MockSourceClient)
	source.On("FetchCustomers", mock.Anything, "").Return([]integration.Customer{}, nil)

	result, err := newTestBackfill(source, newFakeCRM(), store).Run(context.Background(),
		BackfillOptions{StartYear: 2023, EndYear: 2023, CustomersOnly: true, Reset: true, Resume: true})

	require.NoError(t, err)
	assert.True(t, result.Checkpoint.CustomersDone)
	source.AssertCalled(t, "FetchCustomers", mock.Anything, "")
}

func TestBackfill_DryRunWritesNothing(t *testing.T) {
	crm := newFakeCRM()
	store := &memoryCheckpoints{}
	source := new(MockSourceClient)
	source.On("FetchCustomers", mock.Anything, "").Return([]integration.Customer{customer(1, "A"), customer(2, "B")}, nil)
	source.On("FetchQuotes", mock.Anything, quoteYear(2024)).Return([]integration.Quote{quote(500, 1)}, nil)
	source.On("FetchOrders", mock.Anything, orderYear(2024)).Return(nil, integration.ErrSourceUnavailable)

	result, err := newTestBackfill(source, crm, store).Run(context.Background(),
		BackfillOptions{StartYear: 2024, EndYear: 2024, DryRun: true})

	require.NoError(t, err)
	require.Len(t, result.DryRun, 3)
	assert.Equal(t, PartitionCount{Phase: integration.PhaseCustomers, Count: 2}, result.DryRun[0])
	assert.Equal(t, PartitionCount{Phase: integration.PhaseQuotes, Year: 2024, Count: 1}, result.DryRun[1])
	assert.Equal(t, integration.PhaseOrders, result.DryRun[2].Phase)
	assert.NotEmpty(t, result.DryRun[2].Error)

	assert.Nil(t, result.Run)
	assert.Zero(t, store.saves)
	assert.Zero(t, crm.count(integration.ObjectTypeCompany))
}

package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_Progression(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cp := NewCheckpoint(2022, 2023, start)

	assert.Equal(t, BackfillPhaseCustomers, cp.Phase)
	assert.False(t, cp.ShouldSkipCustomers())

	cp.CompleteCustomers(PhaseStats{Total: 10, Created: 8, Updated: 2}, start.Add(time.Minute))
	assert.True(t, cp.ShouldSkipCustomers())
	assert.Equal(t, BackfillPhaseQuotes, cp.Phase)

	cp.CompleteQuoteYear(2022, PhaseStats{Total: 5, Created: 5}, start.Add(2*time.Minute))
	cp.CompleteQuoteYear(2022, PhaseStats{Total: 1, Errors: 1}, start.Add(3*time.Minute))
	cp.CompleteQuoteYear(2023, PhaseStats{Total: 4, Updated: 4}, start.Add(4*time.Minute))
	assert.Equal(t, []int{2022, 2023}, cp.QuotesYearsDone)
	assert.True(t, cp.ShouldSkipQuoteYear(2023))
	assert.False(t, cp.ShouldSkipOrderYear(2023))
	assert.Equal(t, PhaseStats{Total: 10, Created: 5, Updated: 4, Errors: 1}, cp.StatsFor(PhaseQuotes))

	cp.CompleteQuotes(start.Add(5 * time.Minute))
	assert.Equal(t, BackfillPhaseOrders, cp.Phase)

	cp.CompleteOrderYear(2022, PhaseStats{Total: 2, Created: 2}, start.Add(6*time.Minute))
	assert.True(t, cp.ShouldSkipOrderYear(2022))

	end := start.Add(7 * time.Minute)
	cp.CompleteMigration(end)
	assert.Equal(t, BackfillPhaseComplete, cp.Phase)
	assert.Equal(t, end, cp.LastUpdated)
	assert.Equal(t, start, cp.StartedAt)
}

func TestCheckpoint_JSONShape(t *testing.T) {
	cp := NewCheckpoint(2020, 2021, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cp.CompleteCustomers(PhaseStats{Total: 1, Created: 1}, cp.StartedAt)

	data, err := json.Marshal(cp)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "quotes", raw["phase"])
	assert.Equal(t, true, raw["customers_done"])
	assert.Equal(t, []any{}, raw["quotes_years_done"])
	assert.Equal(t, float64(2020), raw["start_year"])
	stats := raw["stats"].(map[string]any)
	assert.Contains(t, stats, "customers")
	assert.Contains(t, stats, "orders")

	var back Checkpoint
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cp.StatsFor(PhaseCustomers), back.StatsFor(PhaseCustomers))
}

func TestCheckpoint_ResumeInfo(t *testing.T) {
	var empty *Checkpoint
	assert.Equal(t, "No checkpoint found", empty.ResumeInfo())

	cp := NewCheckpoint(2020, 2024, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cp.CompleteQuoteYear(2020, PhaseStats{}, cp.StartedAt)
	info := cp.ResumeInfo()
	assert.Contains(t, info, "Year range: 2020-2024")
	assert.Contains(t, info, "Quote years done: [2020]")
}

func TestCheckpoint_StatsSurviveMissingMap(t *testing.T) {
	var cp Checkpoint
	require.NoError(t, json.Unmarshal([]byte(`{"phase":"orders","orders_years_done":[2021]}`), &cp))
	cp.CompleteOrderYear(2022, PhaseStats{Total: 3}, time.Now())
	assert.Equal(t, 3, cp.StatsFor(PhaseOrders).Total)
	assert.Equal(t, []int{2021, 2022}, cp.OrdersYearsDone)
}

func TestYearFilter(t *testing.T) {
	assert.Equal(t,
		"EntryDate ge 2023-01-01T00:00:00Z and EntryDate lt 2024-01-01T00:00:00Z",
		YearFilter("EntryDate", 2023))
	assert.Equal(t,
		"OrderDate ge 2020-01-01T00:00:00Z and OrderDate lt 2023-01-01T00:00:00Z",
		YearRangeFilter("OrderDate", 2020, 2022))
}

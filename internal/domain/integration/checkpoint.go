package integration

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// BackfillPhase is the phase a historical backfill is currently in
type BackfillPhase string

const (
	BackfillPhaseCustomers BackfillPhase = "customers"
	BackfillPhaseQuotes    BackfillPhase = "quotes"
	BackfillPhaseOrders    BackfillPhase = "orders"
	BackfillPhaseComplete  BackfillPhase = "complete"
)

// PhaseStats are the cumulative counters kept in a checkpoint
type PhaseStats struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// Add accumulates other into s
func (s *PhaseStats) Add(other PhaseStats) {
	s.Total += other.Total
	s.Created += other.Created
	s.Updated += other.Updated
	s.Errors += other.Errors
}

// StatsFromSummary converts a phase summary into checkpoint counters
func StatsFromSummary(p *PhaseSummary) PhaseStats {
	if p == nil {
		return PhaseStats{}
	}
	return PhaseStats{Total: p.Total, Created: p.Created, Updated: p.Updated, Errors: p.Errors}
}

// Checkpoint is the resumable progress record of a year-partitioned backfill.
// It is saved after every completed partition.
type Checkpoint struct {
	Phase           BackfillPhase         `json:"phase"`
	CustomersDone   bool                  `json:"customers_done"`
	QuotesYearsDone []int                 `json:"quotes_years_done"`
	OrdersYearsDone []int                 `json:"orders_years_done"`
	StartYear       int                   `json:"start_year"`
	EndYear         int                   `json:"end_year"`
	StartedAt       time.Time             `json:"started_at"`
	LastUpdated     time.Time             `json:"last_updated"`
	Stats           map[Phase]*PhaseStats `json:"stats"`
}

// NewCheckpoint starts a backfill over [startYear, endYear]
func NewCheckpoint(startYear, endYear int, now time.Time) *Checkpoint {
	cp := &Checkpoint{
		Phase:           BackfillPhaseCustomers,
		QuotesYearsDone: []int{},
		OrdersYearsDone: []int{},
		StartYear:       startYear,
		EndYear:         endYear,
		StartedAt:       now,
		LastUpdated:     now,
	}
	cp.ensureStats()
	return cp
}

func (c *Checkpoint) ensureStats() {
	if c.Stats == nil {
		c.Stats = make(map[Phase]*PhaseStats, 3)
	}
	for _, p := range []Phase{PhaseCustomers, PhaseQuotes, PhaseOrders} {
		if c.Stats[p] == nil {
			c.Stats[p] = &PhaseStats{}
		}
	}
}

// StatsFor returns the cumulative counters of a phase
func (c *Checkpoint) StatsFor(p Phase) PhaseStats {
	c.ensureStats()
	return *c.Stats[p]
}

// CompleteCustomers marks the customer phase done and moves on to quotes
func (c *Checkpoint) CompleteCustomers(stats PhaseStats, now time.Time) {
	c.ensureStats()
	c.CustomersDone = true
	c.Phase = BackfillPhaseQuotes
	*c.Stats[PhaseCustomers] = stats
	c.LastUpdated = now
}

// CompleteQuoteYear marks one quote year done and accumulates its counters
func (c *Checkpoint) CompleteQuoteYear(year int, stats PhaseStats, now time.Time) {
	c.ensureStats()
	if !slices.Contains(c.QuotesYearsDone, year) {
		c.QuotesYearsDone = append(c.QuotesYearsDone, year)
	}
	c.Stats[PhaseQuotes].Add(stats)
	c.LastUpdated = now
}

// CompleteQuotes moves on to orders
func (c *Checkpoint) CompleteQuotes(now time.Time) {
	c.Phase = BackfillPhaseOrders
	c.LastUpdated = now
}

// CompleteOrderYear marks one order year done and accumulates its counters
func (c *Checkpoint) CompleteOrderYear(year int, stats PhaseStats, now time.Time) {
	c.ensureStats()
	if !slices.Contains(c.OrdersYearsDone, year) {
		c.OrdersYearsDone = append(c.OrdersYearsDone, year)
	}
	c.Stats[PhaseOrders].Add(stats)
	c.LastUpdated = now
}

// CompleteMigration marks the whole backfill done
func (c *Checkpoint) CompleteMigration(now time.Time) {
	c.Phase = BackfillPhaseComplete
	c.LastUpdated = now
}

// ShouldSkipCustomers returns true when customers were already migrated
func (c *Checkpoint) ShouldSkipCustomers() bool {
	return c.CustomersDone
}

// ShouldSkipQuoteYear returns true when the quote year was already migrated
func (c *Checkpoint) ShouldSkipQuoteYear(year int) bool {
	return slices.Contains(c.QuotesYearsDone, year)
}

// ShouldSkipOrderYear returns true when the order year was already migrated
func (c *Checkpoint) ShouldSkipOrderYear(year int) bool {
	return slices.Contains(c.OrdersYearsDone, year)
}

// ResumeInfo describes the checkpoint for operators
func (c *Checkpoint) ResumeInfo() string {
	if c == nil || c.StartedAt.IsZero() {
		return "No checkpoint found"
	}
	lines := []string{
		"Started: " + c.StartedAt.Format(time.RFC3339),
		"Last updated: " + c.LastUpdated.Format(time.RFC3339),
		"Current phase: " + string(c.Phase),
		fmt.Sprintf("Year range: %d-%d", c.StartYear, c.EndYear),
		fmt.Sprintf("Customers done: %t", c.CustomersDone),
		fmt.Sprintf("Quote years done: %v", c.QuotesYearsDone),
		fmt.Sprintf("Order years done: %v", c.OrdersYearsDone),
	}
	return strings.Join(lines, "\n  ")
}

// YearFilter builds an OData filter selecting one calendar year of field
func YearFilter(field string, year int) string {
	return YearRangeFilter(field, year, year)
}

// YearRangeFilter builds an OData filter covering [startYear, endYear]
func YearRangeFilter(field string, startYear, endYear int) string {
	return fmt.Sprintf("%s ge %d-01-01T00:00:00Z and %s lt %d-01-01T00:00:00Z", field, startYear, field, endYear+1)
}

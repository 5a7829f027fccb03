package integration

import "strings"

// DealStage is a HubSpot deal pipeline stage id
type DealStage string

// Quotes pipeline stages
const (
	StageQuoteCreated    DealStage = "quote_created"
	StageTechnicalReview DealStage = "technical_review" // CRM only
	StageQuoteSent       DealStage = "quote_sent"
	StageFollowUp        DealStage = "follow_up" // CRM only
	StageQuoteExpired    DealStage = "quote_expired"
	StageClosedWon       DealStage = "closedwon"
	StageClosedLost      DealStage = "closedlost"
)

// Orders pipeline stages
const (
	StageOrderReceived    DealStage = "order_received"
	StageOrderHeld        DealStage = "order_held"
	StagePartiallyShipped DealStage = "partially_shipped"
	StageCompleted        DealStage = "completed"
	StageCancelled        DealStage = "cancelled"
)

// String returns the string representation of DealStage
func (s DealStage) String() string {
	return string(s)
}

// NormalizeStage trims and lower-cases a stage read from the CRM
func NormalizeStage(s string) DealStage {
	return DealStage(strings.ToLower(strings.TrimSpace(s)))
}

// ---------------------------------------------------------------------------
// StagePolicy
// ---------------------------------------------------------------------------

// StagePolicy holds the stage ordering of one deal pipeline and decides
// whether a stage derived from the ERP may overwrite the stage in the CRM.
type StagePolicy struct {
	name       string
	ranks      map[DealStage]int
	permanent  map[DealStage]bool
	reversible map[DealStage]bool
	crmOnly    map[DealStage]bool
}

func newStagePolicy(name string, order []DealStage, permanent, reversible, crmOnly []DealStage) *StagePolicy {
	p := &StagePolicy{
		name:       name,
		ranks:      make(map[DealStage]int, len(order)),
		permanent:  make(map[DealStage]bool, len(permanent)),
		reversible: make(map[DealStage]bool, len(reversible)),
		crmOnly:    make(map[DealStage]bool, len(crmOnly)),
	}
	for i, s := range order {
		p.ranks[s] = i + 1
	}
	for _, s := range permanent {
		p.permanent[s] = true
	}
	for _, s := range reversible {
		p.reversible[s] = true
	}
	for _, s := range crmOnly {
		p.crmOnly[s] = true
	}
	return p
}

// QuoteStagePolicy governs the quotes pipeline. CRM-only stages sit at their
// natural position in the ranking.
var QuoteStagePolicy = newStagePolicy("quotes",
	[]DealStage{
		StageQuoteCreated,
		StageTechnicalReview,
		StageQuoteSent,
		StageFollowUp,
		StageQuoteExpired,
		StageClosedWon,
		StageClosedLost,
	},
	[]DealStage{StageClosedWon, StageClosedLost},
	[]DealStage{StageQuoteExpired},
	[]DealStage{StageTechnicalReview, StageFollowUp},
)

// OrderStagePolicy governs the orders pipeline. Both terminals are permanent.
var OrderStagePolicy = newStagePolicy("orders",
	[]DealStage{
		StageOrderReceived,
		StageOrderHeld,
		StagePartiallyShipped,
		StageCompleted,
		StageCancelled,
	},
	[]DealStage{StageCompleted, StageCancelled},
	nil,
	nil,
)

// Name returns the pipeline name of the policy
func (p *StagePolicy) Name() string {
	return p.name
}

// Rank returns the position of the stage in the pipeline, 0 when unknown
func (p *StagePolicy) Rank(stage DealStage) int {
	return p.ranks[NormalizeStage(string(stage))]
}

// IsTerminal returns true for permanent and reversible terminal stages
func (p *StagePolicy) IsTerminal(stage DealStage) bool {
	s := NormalizeStage(string(stage))
	return p.permanent[s] || p.reversible[s]
}

// IsPermanentTerminal returns true for stages that are never reopened
func (p *StagePolicy) IsPermanentTerminal(stage DealStage) bool {
	return p.permanent[NormalizeStage(string(stage))]
}

// IsReversibleTerminal returns true for terminal stages any derivation may supersede
func (p *StagePolicy) IsReversibleTerminal(stage DealStage) bool {
	return p.reversible[NormalizeStage(string(stage))]
}

// IsCRMOnly returns true for stages that can only be set by hand in the CRM
func (p *StagePolicy) IsCRMOnly(stage DealStage) bool {
	return p.crmOnly[NormalizeStage(string(stage))]
}

// ShouldUpdate decides whether derived may overwrite current.
// A nil or blank current stage means the deal is new.
func (p *StagePolicy) ShouldUpdate(current *string, derived DealStage) bool {
	if current == nil || strings.TrimSpace(*current) == "" {
		return true
	}
	cur := NormalizeStage(*current)
	der := NormalizeStage(string(derived))

	if p.IsTerminal(der) {
		return true
	}
	if p.IsPermanentTerminal(cur) {
		return false
	}
	if p.IsReversibleTerminal(cur) {
		return true
	}
	return p.ranks[der] > p.ranks[cur]
}

// Decide applies ShouldUpdate and flags when the stage being replaced is a
// CRM-only stage someone set by hand
func (p *StagePolicy) Decide(current *string, derived DealStage) StageDecision {
	d := StageDecision{
		Current: current,
		Derived: derived,
		Apply:   p.ShouldUpdate(current, derived),
	}
	d.ReplacesCRMOnly = d.Apply && current != nil && p.IsCRMOnly(DealStage(*current))
	return d
}

// ---------------------------------------------------------------------------
// Stage derivation
// ---------------------------------------------------------------------------

// DeriveQuoteStage maps quote flags to a stage. The first matching rule wins.
func DeriveQuoteStage(q *Quote) DealStage {
	switch {
	case boolValue(q.Ordered):
		return StageClosedWon
	case boolValue(q.Expired):
		return StageQuoteExpired
	case boolValue(q.QuoteClosed) && !boolValue(q.Ordered):
		return StageClosedLost
	case boolValue(q.Quoted):
		return StageQuoteSent
	default:
		return StageQuoteCreated
	}
}

// DeriveOrderStage maps order flags to a stage. The first matching rule wins.
// A missing OpenOrder flag counts as open.
func DeriveOrderStage(o *Order) DealStage {
	open := o.OpenOrder == nil || *o.OpenOrder
	switch {
	case boolValue(o.VoidOrder):
		return StageCancelled
	case !open:
		return StageCompleted
	case boolValue(o.OrderHeld):
		return StageOrderHeld
	case open && o.TotalShipped.Valid && o.TotalShipped.Decimal.IsPositive():
		return StagePartiallyShipped
	default:
		return StageOrderReceived
	}
}

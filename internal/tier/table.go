package tier

import (
	"fmt"

	"github.com/obscuraswap/solver/internal/order"
)

// MaxScore is the upper bound of the reputation score range.
const MaxScore = 100

// TierDefinition describes the entitlements of one reputation bracket.
type TierDefinition struct {
	Name              string              `json:"name"`
	MinScore          uint8               `json:"min_score"`
	FeeBps            uint16              `json:"fee_bps"`
	MevProtection     order.MevProtection `json:"mev_protection"`
	AllowedOrderTypes uint8               `json:"allowed_order_types"`
	DerivativesAccess uint8               `json:"derivatives_access"`
}

// Benefits is the resolved entitlement set for a score.
type Benefits struct {
	Tier              uint8
	Name              string
	FeeBps            uint16
	MevProtection     order.MevProtection
	AllowedOrderTypes uint8
	DerivativesAccess uint8
}

// AllowsOrderType checks the requested type against the tier bitmask.
func (b Benefits) AllowsOrderType(t order.Type) bool {
	return b.AllowedOrderTypes&t.Bitmask() != 0
}

// Table is an ordered list of tier definitions, ascending by MinScore.
// Loaded once at startup and read-only afterwards.
type Table struct {
	tiers []TierDefinition
}

// DefaultTable returns the production five-tier configuration.
func DefaultTable() *Table {
	return &Table{tiers: []TierDefinition{
		{Name: "None", MinScore: 0, FeeBps: 50, MevProtection: order.MevNone, AllowedOrderTypes: 1, DerivativesAccess: 0},
		{Name: "Bronze", MinScore: 20, FeeBps: 30, MevProtection: order.MevBasic, AllowedOrderTypes: 3, DerivativesAccess: 0},
		{Name: "Silver", MinScore: 40, FeeBps: 15, MevProtection: order.MevFull, AllowedOrderTypes: 7, DerivativesAccess: 1},
		{Name: "Gold", MinScore: 60, FeeBps: 8, MevProtection: order.MevPriority, AllowedOrderTypes: 15, DerivativesAccess: 3},
		{Name: "Diamond", MinScore: 80, FeeBps: 5, MevProtection: order.MevPriority, AllowedOrderTypes: 31, DerivativesAccess: 7},
	}}
}

// NewTable builds a table from explicit definitions and validates it.
func NewTable(tiers []TierDefinition) (*Table, error) {
	t := &Table{tiers: tiers}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate enforces the table sanity invariants once at load time so
// Resolve never has to: a floor tier at score 0, ascending MinScore,
// strictly decreasing FeeBps, and entitlement bitmasks that are supersets
// of every lower tier's.
func (t *Table) Validate() error {
	if len(t.tiers) == 0 {
		return fmt.Errorf("tier table is empty")
	}
	if t.tiers[0].MinScore != 0 {
		return fmt.Errorf("tier table missing floor tier at score 0")
	}

	for i := 1; i < len(t.tiers); i++ {
		prev, cur := t.tiers[i-1], t.tiers[i]
		if cur.MinScore <= prev.MinScore {
			return fmt.Errorf("tier %q minScore %d not above %q minScore %d",
				cur.Name, cur.MinScore, prev.Name, prev.MinScore)
		}
		if cur.FeeBps >= prev.FeeBps {
			return fmt.Errorf("tier %q feeBps %d not below %q feeBps %d",
				cur.Name, cur.FeeBps, prev.Name, prev.FeeBps)
		}
		if cur.AllowedOrderTypes&prev.AllowedOrderTypes != prev.AllowedOrderTypes {
			return fmt.Errorf("tier %q order types not a superset of %q", cur.Name, prev.Name)
		}
		if cur.DerivativesAccess&prev.DerivativesAccess != prev.DerivativesAccess {
			return fmt.Errorf("tier %q derivatives access not a superset of %q", cur.Name, prev.Name)
		}
		if cur.MevProtection < prev.MevProtection {
			return fmt.Errorf("tier %q mev protection below %q", cur.Name, prev.Name)
		}
	}
	return nil
}

// Resolve maps a score to its benefits. Total by construction: the floor
// tier matches every score, so Resolve never errors. Scores above
// MaxScore clamp to the top bracket.
func (t *Table) Resolve(score uint8) Benefits {
	for i := len(t.tiers) - 1; i >= 0; i-- {
		if score >= t.tiers[i].MinScore {
			d := t.tiers[i]
			return Benefits{
				Tier:              uint8(i),
				Name:              d.Name,
				FeeBps:            d.FeeBps,
				MevProtection:     d.MevProtection,
				AllowedOrderTypes: d.AllowedOrderTypes,
				DerivativesAccess: d.DerivativesAccess,
			}
		}
	}
	// Unreachable: Validate guarantees a floor tier at score 0.
	d := t.tiers[0]
	return Benefits{Tier: 0, Name: d.Name, FeeBps: d.FeeBps, MevProtection: d.MevProtection,
		AllowedOrderTypes: d.AllowedOrderTypes, DerivativesAccess: d.DerivativesAccess}
}

// Definitions returns a copy of the tier list for the API surface.
func (t *Table) Definitions() []TierDefinition {
	out := make([]TierDefinition, len(t.tiers))
	copy(out, t.tiers)
	return out
}

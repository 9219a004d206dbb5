package matching

import (
	"sort"

	"github.com/meridian-erp/meridian-erp/internal/crm/customers"
)

const (
	// DefaultFloor is the minimum score a candidate needs to appear in a
	// selection list. The auto-accept threshold is the only value evidenced by
	// upstream behavior; the floor is a tunable with a conservative default.
	DefaultFloor = 60
	// DefaultTopK bounds the selection list shown for an ambiguous match.
	DefaultTopK = 5
	// DefaultAutoAccept is the score at which resolution proceeds silently.
	DefaultAutoAccept = 95
)

// Candidate pairs a customer with its similarity score for one resolution
// attempt. InquiryCount is informational annotation filled in by the caller.
type Candidate struct {
	Customer     customers.Customer `json:"customer"`
	Score        int                `json:"score"`
	InquiryCount int                `json:"inquiry_count"`
}

// Config tunes the matcher thresholds. Zero values fall back to defaults.
type Config struct {
	Floor      int
	TopK       int
	AutoAccept int
}

func (c Config) withDefaults() Config {
	if c.Floor <= 0 {
		c.Floor = DefaultFloor
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.AutoAccept <= 0 {
		c.AutoAccept = DefaultAutoAccept
	}
	return c
}

type Matcher struct {
	cfg Config
}

func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg.withDefaults()}
}

// Match scores the incoming name against every active customer and returns
// candidates at or above the inclusion floor, descending by score, capped at
// TopK. An empty normalized name yields no candidates rather than matching
// every record.
func (m *Matcher) Match(companyName string, active []customers.Customer) []Candidate {
	ranked := m.rank(companyName, active)
	var out []Candidate
	for _, c := range ranked {
		if c.Score < m.cfg.Floor {
			break
		}
		out = append(out, c)
		if len(out) == m.cfg.TopK {
			break
		}
	}
	return out
}

// BestMatch returns the single top-scoring candidate regardless of floor and
// list size, and false when no comparison was possible.
func (m *Matcher) BestMatch(companyName string, active []customers.Customer) (Candidate, bool) {
	ranked := m.rank(companyName, active)
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

// AutoAccept reports whether a candidate's score clears the silent-resolution
// threshold.
func (m *Matcher) AutoAccept(c Candidate) bool {
	return c.Score >= m.cfg.AutoAccept
}

func (m *Matcher) rank(companyName string, active []customers.Customer) []Candidate {
	normalized := Normalize(companyName)
	if normalized == "" {
		return nil
	}

	ranked := make([]Candidate, 0, len(active))
	for _, cust := range active {
		score := Score(normalized, Normalize(cust.CompanyName))
		ranked = append(ranked, Candidate{Customer: cust, Score: score})
	}

	// Stable order for equal scores keeps selection lists deterministic.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Customer.ID < ranked[j].Customer.ID
	})
	return ranked
}

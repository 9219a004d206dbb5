package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/crm/customers"
)

func testDirectory() []customers.Customer {
	return []customers.Customer{
		{ID: 1, CompanyName: "Acme Pharma GmbH", IsActive: true},
		{ID: 2, CompanyName: "Meridian Trading Ltd", IsActive: true},
		{ID: 3, CompanyName: "Zenith Biotech", IsActive: true},
		{ID: 4, CompanyName: "Acme Pharmaceutical Supplies", IsActive: true},
	}
}

func TestMatchExactNameAutoAccepts(t *testing.T) {
	m := NewMatcher(Config{})
	best, ok := m.BestMatch("acme pharma", testDirectory())
	require.True(t, ok)
	assert.Equal(t, int64(1), best.Customer.ID)
	assert.Equal(t, 100, best.Score)
	assert.True(t, m.AutoAccept(best))
}

func TestMatchEmptyNameReturnsNothing(t *testing.T) {
	m := NewMatcher(Config{})
	assert.Empty(t, m.Match("", testDirectory()))
	assert.Empty(t, m.Match("   ", testDirectory()))
	_, ok := m.BestMatch("", testDirectory())
	assert.False(t, ok)
}

func TestMatchEmptyDirectory(t *testing.T) {
	m := NewMatcher(Config{})
	assert.Empty(t, m.Match("Acme Pharma", nil))
	_, ok := m.BestMatch("Acme Pharma", nil)
	assert.False(t, ok)
}

func TestMatchOrderingAndFloor(t *testing.T) {
	m := NewMatcher(Config{Floor: 60})
	got := m.Match("Acme Pharma", testDirectory())
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score, "candidates must be descending")
	}
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Score, 60, "candidate %d below floor", c.Customer.ID)
	}
	assert.Equal(t, int64(1), got[0].Customer.ID)
}

func TestMatchTopKBound(t *testing.T) {
	var directory []customers.Customer
	for i := int64(1); i <= 20; i++ {
		directory = append(directory, customers.Customer{ID: i, CompanyName: "Acme Pharma", IsActive: true})
	}
	m := NewMatcher(Config{TopK: 5})
	got := m.Match("Acme Pharma", directory)
	assert.Len(t, got, 5)
}

func TestBestMatchIgnoresFloor(t *testing.T) {
	m := NewMatcher(Config{Floor: 99})
	best, ok := m.BestMatch("Zenith Bio", testDirectory())
	require.True(t, ok)
	assert.Equal(t, int64(3), best.Customer.ID)
	assert.Less(t, best.Score, 99)
	assert.Empty(t, m.Match("Zenith Bio", testDirectory()))
}

func TestAutoAcceptThresholdBoundary(t *testing.T) {
	m := NewMatcher(Config{AutoAccept: 95})
	assert.True(t, m.AutoAccept(Candidate{Score: 95}))
	assert.True(t, m.AutoAccept(Candidate{Score: 100}))
	assert.False(t, m.AutoAccept(Candidate{Score: 94}))
}

func TestMatchDeterministicTieBreak(t *testing.T) {
	directory := []customers.Customer{
		{ID: 9, CompanyName: "Acme Pharma"},
		{ID: 2, CompanyName: "Acme Pharma"},
	}
	m := NewMatcher(Config{})
	got := m.Match("Acme Pharma", directory)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Customer.ID)
}

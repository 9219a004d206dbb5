package inquiries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type mockRepository struct {
	inquiries map[int64]*Inquiry
	nextID    int64
	nextSeq   int64

	insertErr       error
	updateNumberErr error
	failRenameAfter int // fail UpdateNumber once this many calls succeeded; -1 disables
	renameCalls     int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		inquiries:       make(map[int64]*Inquiry),
		nextID:          1,
		nextSeq:         1000,
		failRenameAfter: -1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Inquiry, error) {
	inq, ok := m.inquiries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inq, nil
}

func (m *mockRepository) ListByCustomer(ctx context.Context, customerID int64) ([]Inquiry, error) {
	var out []Inquiry
	for _, inq := range m.inquiries {
		if inq.CustomerID == customerID {
			out = append(out, *inq)
		}
	}
	return out, nil
}

func (m *mockRepository) CountByCustomer(ctx context.Context, ids []int64) (map[int64]int, error) {
	counts := make(map[int64]int)
	for _, inq := range m.inquiries {
		counts[inq.CustomerID]++
	}
	return counts, nil
}

func (m *mockRepository) InsertBatch(ctx context.Context, rows []Row) ([]Inquiry, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	inserted := make([]Inquiry, 0, len(rows))
	for _, row := range rows {
		m.nextSeq++
		inq := &Inquiry{
			ID:            m.nextID,
			InquiryNumber: fmt.Sprintf("INQ-%d", m.nextSeq),
			CustomerID:    row.CustomerID,
			ProductName:   row.ProductName,
			Specification: row.Specification,
			Quantity:      row.Quantity,
			Unit:          row.Unit,
			TargetPrice:   row.TargetPrice,
			Supplier:      row.Supplier,
			DeliveryDate:  row.DeliveryDate,
			Notes:         row.Notes,
			Status:        StatusNew,
		}
		m.inquiries[m.nextID] = inq
		m.nextID++
		inserted = append(inserted, *inq)
	}
	return inserted, nil
}

func (m *mockRepository) UpdateNumber(ctx context.Context, id int64, number string) error {
	if m.updateNumberErr != nil {
		return m.updateNumberErr
	}
	if m.failRenameAfter >= 0 && m.renameCalls >= m.failRenameAfter {
		return errors.New("store gone away")
	}
	m.renameCalls++
	inq, ok := m.inquiries[id]
	if !ok {
		return ErrNotFound
	}
	inq.InquiryNumber = number
	return nil
}

// FindPartialRenumber mirrors the store predicate: an un-suffixed number with
// at least one sibling under "number.".
func (m *mockRepository) FindPartialRenumber(ctx context.Context) ([]string, error) {
	var bases []string
	for _, inq := range m.inquiries {
		if strings.Contains(inq.InquiryNumber, ".") {
			continue
		}
		for _, sibling := range m.inquiries {
			if strings.HasPrefix(sibling.InquiryNumber, inq.InquiryNumber+".") {
				bases = append(bases, inq.InquiryNumber)
				break
			}
		}
	}
	sort.Strings(bases)
	return bases, nil
}

func newTestCommitter(repo Repository) *Committer {
	return NewCommitter(repo, slog.Default())
}

func TestCommitSingleProduct(t *testing.T) {
	repo := newMockRepository()
	committer := newTestCommitter(repo)

	got, err := committer.Commit(context.Background(), Draft{
		CustomerID:  7,
		ProductName: "Paracetamol API",
		Quantity:    "250",
		Unit:        "kg",
		TargetPrice: "12.5",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, int64(7), got[0].CustomerID)
	assert.Equal(t, "Paracetamol API", got[0].ProductName)
	assert.NotContains(t, got[0].InquiryNumber, ".")
	require.NotNil(t, got[0].Quantity)
	assert.Equal(t, 250.0, *got[0].Quantity)
	require.NotNil(t, got[0].TargetPrice)
	assert.Equal(t, 12.5, *got[0].TargetPrice)
}

func TestCommitWithoutCustomerID(t *testing.T) {
	repo := newMockRepository()
	committer := newTestCommitter(repo)

	_, err := committer.Commit(context.Background(), Draft{ProductName: "Ibuprofen API"})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, repo.inquiries, "nothing may be inserted without a resolved customer")
}

func TestCommitMultiProductRenumbering(t *testing.T) {
	repo := newMockRepository()
	committer := newTestCommitter(repo)

	got, err := committer.Commit(context.Background(), Draft{
		CustomerID: 3,
		Supplier:   "Shared Supplier",
		Products: []ProductLine{
			{ProductName: "Amoxicillin", Quantity: "100"},
			{ProductName: "Azithromycin", Quantity: "50", Supplier: "Line Supplier"},
			{ProductName: "Cefixime"},
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	base := got[0].InquiryNumber[:len(got[0].InquiryNumber)-2]
	for i, inq := range got {
		assert.Equal(t, fmt.Sprintf("%s.%d", base, i+1), inq.InquiryNumber)
		assert.Equal(t, int64(3), inq.CustomerID)
	}
	assert.Equal(t, "Amoxicillin", got[0].ProductName)
	require.NotNil(t, got[1].Supplier)
	assert.Equal(t, "Line Supplier", *got[1].Supplier, "line value wins over draft value")
	require.NotNil(t, got[0].Supplier)
	assert.Equal(t, "Shared Supplier", *got[0].Supplier, "omitted line fields fall back to the draft")
	assert.Nil(t, got[2].Quantity, "omitted quantity stays NULL")

	// Stored rows carry the rewritten numbers too.
	for _, inq := range got {
		stored, err := repo.Get(context.Background(), inq.ID)
		require.NoError(t, err)
		assert.Equal(t, inq.InquiryNumber, stored.InquiryNumber)
	}
}

func TestCommitRenumberFailureIsPartial(t *testing.T) {
	repo := newMockRepository()
	repo.failRenameAfter = 1
	committer := newTestCommitter(repo)

	got, err := committer.Commit(context.Background(), Draft{
		CustomerID: 3,
		Products: []ProductLine{
			{ProductName: "Amoxicillin"},
			{ProductName: "Azithromycin"},
			{ProductName: "Cefixime"},
		},
	})
	require.ErrorIs(t, err, shared.ErrPartialCommit)
	assert.NotErrorIs(t, err, shared.ErrValidation)
	// Rows exist despite the error; the caller must not blindly retry.
	assert.Len(t, got, 3)
	assert.Len(t, repo.inquiries, 3)

	// The base row still carries its raw number while the renamed sibling
	// carries a suffix, so the integrity scan sees the interrupted batch.
	bases, scanErr := repo.FindPartialRenumber(context.Background())
	require.NoError(t, scanErr)
	assert.Equal(t, []string{"INQ-1001"}, bases)
}

func TestCommitCompletedRenumberLeavesNoScanFindings(t *testing.T) {
	repo := newMockRepository()
	committer := newTestCommitter(repo)

	_, err := committer.Commit(context.Background(), Draft{
		CustomerID: 3,
		Products: []ProductLine{
			{ProductName: "Amoxicillin"},
			{ProductName: "Azithromycin"},
		},
	})
	require.NoError(t, err)

	bases, err := repo.FindPartialRenumber(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bases)
}

func TestCommitInsertFailureIsTotal(t *testing.T) {
	repo := newMockRepository()
	repo.insertErr = errors.New("connection refused")
	committer := newTestCommitter(repo)

	got, err := committer.Commit(context.Background(), Draft{
		CustomerID:  1,
		ProductName: "Metformin",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrPartialCommit)
	assert.Empty(t, got)
}

func TestCommitNumericSanitization(t *testing.T) {
	repo := newMockRepository()
	committer := newTestCommitter(repo)

	t.Run("empty is null", func(t *testing.T) {
		got, err := committer.Commit(context.Background(), Draft{
			CustomerID:  1,
			ProductName: "Metformin",
			Quantity:    "",
			TargetPrice: "",
		})
		require.NoError(t, err)
		assert.Nil(t, got[0].Quantity)
		assert.Nil(t, got[0].TargetPrice)
	})

	t.Run("parseable text becomes float", func(t *testing.T) {
		got, err := committer.Commit(context.Background(), Draft{
			CustomerID:  1,
			ProductName: "Metformin",
			Quantity:    "12.5",
		})
		require.NoError(t, err)
		require.NotNil(t, got[0].Quantity)
		assert.Equal(t, 12.5, *got[0].Quantity)
	})

	t.Run("non-numeric text is rejected", func(t *testing.T) {
		before := len(repo.inquiries)
		_, err := committer.Commit(context.Background(), Draft{
			CustomerID:  1,
			ProductName: "Metformin",
			Quantity:    "a lot",
		})
		require.ErrorIs(t, err, shared.ErrValidation)
		assert.Len(t, repo.inquiries, before, "invalid input must not insert")
	})
}

func TestCommitDateSanitization(t *testing.T) {
	repo := newMockRepository()
	committer := newTestCommitter(repo)

	got, err := committer.Commit(context.Background(), Draft{
		CustomerID:   1,
		ProductName:  "Metformin",
		DeliveryDate: "",
	})
	require.NoError(t, err)
	assert.Nil(t, got[0].DeliveryDate)

	got, err = committer.Commit(context.Background(), Draft{
		CustomerID:   1,
		ProductName:  "Metformin",
		DeliveryDate: "2026-03-15",
	})
	require.NoError(t, err)
	require.NotNil(t, got[0].DeliveryDate)
	assert.Equal(t, "2026-03-15", got[0].DeliveryDate.Format("2006-01-02"))

	_, err = committer.Commit(context.Background(), Draft{
		CustomerID:   1,
		ProductName:  "Metformin",
		DeliveryDate: "soon",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

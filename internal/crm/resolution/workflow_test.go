package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/crm/customers"
	"github.com/meridian-erp/meridian-erp/internal/crm/inquiries"
	"github.com/meridian-erp/meridian-erp/internal/crm/matching"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// MOCK REPOSITORIES
// ============================================================================

type mockCustomerRepo struct {
	customers map[int64]*customers.Customer
	nextID    int64
	updates   map[int64]map[string]interface{}
	listErr   error
}

func newMockCustomerRepo(seed ...customers.Customer) *mockCustomerRepo {
	repo := &mockCustomerRepo{
		customers: make(map[int64]*customers.Customer),
		updates:   make(map[int64]map[string]interface{}),
		nextID:    1,
	}
	for i := range seed {
		c := seed[i]
		repo.customers[c.ID] = &c
		if c.ID >= repo.nextID {
			repo.nextID = c.ID + 1
		}
	}
	return repo
}

func (m *mockCustomerRepo) WithTx(ctx context.Context, fn func(context.Context, customers.Repository) error) error {
	return fn(ctx, m)
}

func (m *mockCustomerRepo) Get(ctx context.Context, id int64) (*customers.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, customers.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockCustomerRepo) ListActive(ctx context.Context) ([]customers.Customer, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []customers.Customer
	for _, c := range m.customers {
		if c.IsActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCustomerRepo) List(ctx context.Context, req customers.ListCustomersRequest) ([]customers.Customer, int, error) {
	active, _ := m.ListActive(ctx)
	return active, len(active), nil
}

func (m *mockCustomerRepo) Create(ctx context.Context, customer customers.Customer) (int64, error) {
	id := m.nextID
	m.nextID++
	customer.ID = id
	m.customers[id] = &customer
	return id, nil
}

func (m *mockCustomerRepo) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	c, ok := m.customers[id]
	if !ok {
		return customers.ErrNotFound
	}
	m.updates[id] = updates
	if v, ok := updates["email"]; ok {
		s := v.(string)
		c.Email = &s
	}
	if v, ok := updates["phone"]; ok {
		s := v.(string)
		c.Phone = &s
	}
	if v, ok := updates["contact_person"]; ok {
		s := v.(string)
		c.ContactPerson = &s
	}
	return nil
}

func (m *mockCustomerRepo) Deactivate(ctx context.Context, id int64) error {
	c, ok := m.customers[id]
	if !ok {
		return customers.ErrNotFound
	}
	c.IsActive = false
	return nil
}

type mockInquiryRepo struct {
	inquiries map[int64]*inquiries.Inquiry
	nextID    int64
	nextSeq   int64
	countErr  error
}

func newMockInquiryRepo() *mockInquiryRepo {
	return &mockInquiryRepo{
		inquiries: make(map[int64]*inquiries.Inquiry),
		nextID:    1,
		nextSeq:   1000,
	}
}

func (m *mockInquiryRepo) WithTx(ctx context.Context, fn func(context.Context, inquiries.Repository) error) error {
	return fn(ctx, m)
}

func (m *mockInquiryRepo) Get(ctx context.Context, id int64) (*inquiries.Inquiry, error) {
	inq, ok := m.inquiries[id]
	if !ok {
		return nil, inquiries.ErrNotFound
	}
	return inq, nil
}

func (m *mockInquiryRepo) ListByCustomer(ctx context.Context, customerID int64) ([]inquiries.Inquiry, error) {
	var out []inquiries.Inquiry
	for _, inq := range m.inquiries {
		if inq.CustomerID == customerID {
			out = append(out, *inq)
		}
	}
	return out, nil
}

func (m *mockInquiryRepo) CountByCustomer(ctx context.Context, ids []int64) (map[int64]int, error) {
	if m.countErr != nil {
		return nil, m.countErr
	}
	counts := make(map[int64]int)
	for _, inq := range m.inquiries {
		counts[inq.CustomerID]++
	}
	return counts, nil
}

func (m *mockInquiryRepo) InsertBatch(ctx context.Context, rows []inquiries.Row) ([]inquiries.Inquiry, error) {
	inserted := make([]inquiries.Inquiry, 0, len(rows))
	for _, row := range rows {
		m.nextSeq++
		inq := &inquiries.Inquiry{
			ID:            m.nextID,
			InquiryNumber: fmt.Sprintf("INQ-%d", m.nextSeq),
			CustomerID:    row.CustomerID,
			ProductName:   row.ProductName,
			Quantity:      row.Quantity,
			Status:        inquiries.StatusNew,
		}
		m.inquiries[m.nextID] = inq
		m.nextID++
		inserted = append(inserted, *inq)
	}
	return inserted, nil
}

func (m *mockInquiryRepo) UpdateNumber(ctx context.Context, id int64, number string) error {
	inq, ok := m.inquiries[id]
	if !ok {
		return inquiries.ErrNotFound
	}
	inq.InquiryNumber = number
	return nil
}

func (m *mockInquiryRepo) FindPartialRenumber(ctx context.Context) ([]string, error) {
	return nil, nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func seedCustomers() []customers.Customer {
	return []customers.Customer{
		{ID: 1, CompanyName: "Acme Pharma GmbH", Email: strPtr("weber@acme-pharma.example"), IsActive: true},
		{ID: 2, CompanyName: "Meridian Trading Ltd", IsActive: true},
		{ID: 3, CompanyName: "Zenith Biotech", IsActive: true},
	}
}

func newTestWorkflow(t *testing.T, custRepo customers.Repository, inqRepo inquiries.Repository) *Workflow {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewSessionStore(client, time.Hour)
	committer := inquiries.NewCommitter(inqRepo, slog.Default())
	matcher := matching.NewMatcher(matching.Config{})
	return NewWorkflow(custRepo, inqRepo, committer, matcher, store, slog.Default(), nil)
}

func draftFor(product string) inquiries.Draft {
	return inquiries.Draft{ProductName: product, Quantity: "10"}
}

// ============================================================================
// TESTS
// ============================================================================

func TestStartNoMatchParksAtNewCustomerConfirm(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Borealis Excipients",
		Draft:       draftFor("Lactose Monohydrate"),
	})
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingNewCustomer, sess.State)
	assert.Empty(t, sess.Candidates)
	assert.Zero(t, sess.Draft.CustomerID)
}

func TestStartAutoMatchResolvesSilently(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	// Normalizes identically to "Acme Pharma GmbH"; no contact fields, so the
	// change check passes straight through.
	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "ACME Pharma Ltd",
		Draft:       draftFor("Paracetamol API"),
	})
	require.NoError(t, err)
	assert.Equal(t, StateResolved, sess.State)
	assert.Equal(t, int64(1), sess.Draft.CustomerID)
	assert.Empty(t, sess.Candidates, "auto-match must not present a selection list")
}

func TestStartAutoMatchStillRunsChangeCheck(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Acme Pharma GmbH",
		Contact:     ContactFields{Email: "new-contact@acme-pharma.example"},
		Draft:       draftFor("Paracetamol API"),
	})
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingUpdate, sess.State)
	require.NotNil(t, sess.Changes)
	assert.Equal(t, []string{"email"}, sess.Changes.ChangedFields)
}

func TestStartAmbiguousPresentsCandidates(t *testing.T) {
	ctx := context.Background()
	inqRepo := newMockInquiryRepo()
	// Existing inquiries for customer 1 show up as annotation.
	_, err := inqRepo.InsertBatch(ctx, []inquiries.Row{
		{CustomerID: 1, ProductName: "Ibuprofen"},
		{CustomerID: 1, ProductName: "Aspirin"},
	})
	require.NoError(t, err)

	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), inqRepo)

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Acme Pharma Distribution",
		Draft:       draftFor("Paracetamol API"),
	})
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingSelection, sess.State)
	require.NotEmpty(t, sess.Candidates)
	assert.Zero(t, sess.Draft.CustomerID, "ambiguous match must not auto-resolve")

	top := sess.Candidates[0]
	assert.Equal(t, int64(1), top.Customer.ID)
	assert.Less(t, top.Score, 95)
	assert.GreaterOrEqual(t, top.Score, 60)
	assert.Equal(t, 2, top.InquiryCount)
}

func TestSelectCandidateThenCommit(t *testing.T) {
	ctx := context.Background()
	inqRepo := newMockInquiryRepo()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), inqRepo)

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Acme Pharma Distribution",
		Draft:       draftFor("Paracetamol API"),
	})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingSelection, sess.State)

	sess, err = wf.Select(ctx, sess.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, sess.State)
	assert.Equal(t, int64(1), sess.Draft.CustomerID)

	committed, err := wf.Commit(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.Equal(t, int64(1), committed[0].CustomerID)

	// The session is consumed by the commit.
	_, err = wf.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSelectRejectsNonCandidate(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Acme Pharma Distribution",
		Draft:       draftFor("Paracetamol API"),
	})
	require.NoError(t, err)

	_, err = wf.Select(ctx, sess.ID, 3)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSelectedCustomerPassesChangeCheck(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Acme Pharma Distribution",
		Contact:     ContactFields{Phone: "+49 30 5555"},
		Draft:       draftFor("Paracetamol API"),
	})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingSelection, sess.State)

	sess, err = wf.Select(ctx, sess.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingUpdate, sess.State, "selection must re-enter the change check")
	require.NotNil(t, sess.Changes)
	assert.Equal(t, []string{"phone"}, sess.Changes.ChangedFields)
}

func TestApplyUpdateDecisionPatchesCustomer(t *testing.T) {
	ctx := context.Background()
	custRepo := newMockCustomerRepo(seedCustomers()...)
	wf := newTestWorkflow(t, custRepo, newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CustomerID: 1,
		Contact:    ContactFields{Email: "fresh@acme-pharma.example"},
		Draft:      draftFor("Paracetamol API"),
	})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingUpdate, sess.State)

	sess, err = wf.DecideUpdate(ctx, sess.ID, "apply")
	require.NoError(t, err)
	assert.Equal(t, StateResolved, sess.State)
	assert.Nil(t, sess.Changes, "the change set is consumed exactly once")

	updated, err := custRepo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, updated.Email)
	assert.Equal(t, "fresh@acme-pharma.example", *updated.Email)
}

func TestKeepExistingDecisionLeavesCustomerUntouched(t *testing.T) {
	ctx := context.Background()
	custRepo := newMockCustomerRepo(seedCustomers()...)
	wf := newTestWorkflow(t, custRepo, newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CustomerID: 1,
		Contact:    ContactFields{Email: "fresh@acme-pharma.example"},
		Draft:      draftFor("Paracetamol API"),
	})
	require.NoError(t, err)

	sess, err = wf.DecideUpdate(ctx, sess.ID, "keep")
	require.NoError(t, err)
	assert.Equal(t, StateResolved, sess.State)

	kept, err := custRepo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, kept.Email)
	assert.Equal(t, "weber@acme-pharma.example", *kept.Email)
	assert.Empty(t, custRepo.updates)
}

func TestDirectPathNoChangesResolvesImmediately(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CustomerID: 2,
		Draft:      draftFor("Paracetamol API"),
	})
	require.NoError(t, err)
	assert.Equal(t, StateResolved, sess.State)
}

func TestCreateCustomerPrefillsFromInquiry(t *testing.T) {
	ctx := context.Background()
	custRepo := newMockCustomerRepo(seedCustomers()...)
	wf := newTestWorkflow(t, custRepo, newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Borealis Excipients",
		Contact:     ContactFields{ContactPerson: "L. Hansen", Email: "hansen@borealis.example"},
		Draft:       draftFor("Lactose Monohydrate"),
	})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingNewCustomer, sess.State)

	sess, err = wf.CreateCustomer(ctx, sess.ID, customers.CreateCustomerRequest{})
	require.NoError(t, err)
	assert.Equal(t, StateResolved, sess.State)
	require.NotZero(t, sess.Draft.CustomerID)

	created, err := custRepo.Get(ctx, sess.Draft.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "Borealis Excipients", created.CompanyName)
	require.NotNil(t, created.Email)
	assert.Equal(t, "hansen@borealis.example", *created.Email)
	assert.True(t, created.IsActive)
}

func TestCreateCustomerFromSelectionState(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Acme Pharma Distribution",
		Draft:       draftFor("Paracetamol API"),
	})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingSelection, sess.State)

	// None of the candidates is right; the user opts to create new instead.
	sess, err = wf.CreateCustomer(ctx, sess.ID, customers.CreateCustomerRequest{})
	require.NoError(t, err)
	assert.Equal(t, StateResolved, sess.State)
	assert.Empty(t, sess.Candidates)
}

func TestCommitUnresolvedSessionFails(t *testing.T) {
	ctx := context.Background()
	inqRepo := newMockInquiryRepo()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), inqRepo)

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Borealis Excipients",
		Draft:       draftFor("Lactose Monohydrate"),
	})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingNewCustomer, sess.State)

	_, err = wf.Commit(ctx, sess.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, inqRepo.inquiries, "an await state must block commit")
}

func TestCancelDiscardsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	inqRepo := newMockInquiryRepo()
	custRepo := newMockCustomerRepo(seedCustomers()...)
	wf := newTestWorkflow(t, custRepo, inqRepo)

	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Acme Pharma Distribution",
		Draft:       draftFor("Paracetamol API"),
	})
	require.NoError(t, err)

	require.NoError(t, wf.Cancel(ctx, sess.ID))

	_, err = wf.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, inqRepo.inquiries)
	assert.Len(t, custRepo.customers, 3)
}

func TestStartSingleFlightPerClient(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	first, err := wf.Start(ctx, StartRequest{
		ClientRef:   "operator-7",
		CompanyName: "Borealis Excipients",
		Draft:       draftFor("Lactose Monohydrate"),
	})
	require.NoError(t, err)

	_, err = wf.Start(ctx, StartRequest{
		ClientRef:   "operator-7",
		CompanyName: "Another Company",
		Draft:       draftFor("Sorbitol"),
	})
	assert.ErrorIs(t, err, ErrSessionInFlight)

	require.NoError(t, wf.Cancel(ctx, first.ID))

	_, err = wf.Start(ctx, StartRequest{
		ClientRef:   "operator-7",
		CompanyName: "Another Company",
		Draft:       draftFor("Sorbitol"),
	})
	assert.NoError(t, err)
}

func TestStartUnknownCustomerIDIsValidationError(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), newMockInquiryRepo())

	_, err := wf.Start(ctx, StartRequest{
		CustomerID: 999,
		Draft:      draftFor("Paracetamol API"),
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestMultiProductCommitThroughWorkflow(t *testing.T) {
	ctx := context.Background()
	inqRepo := newMockInquiryRepo()
	wf := newTestWorkflow(t, newMockCustomerRepo(seedCustomers()...), inqRepo)

	draft := inquiries.Draft{
		Products: []inquiries.ProductLine{
			{ProductName: "Amoxicillin", Quantity: "100"},
			{ProductName: "Azithromycin", Quantity: "50"},
			{ProductName: "Cefixime", Quantity: "25"},
		},
	}
	sess, err := wf.Start(ctx, StartRequest{
		CompanyName: "Meridian Trading Ltd",
		Draft:       draft,
	})
	require.NoError(t, err)
	require.Equal(t, StateResolved, sess.State)

	committed, err := wf.Commit(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, committed, 3)

	base := committed[0].InquiryNumber[:len(committed[0].InquiryNumber)-2]
	for i, inq := range committed {
		assert.Equal(t, fmt.Sprintf("%s.%d", base, i+1), inq.InquiryNumber)
		assert.Equal(t, int64(2), inq.CustomerID)
	}
}

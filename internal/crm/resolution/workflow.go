// Package resolution orchestrates customer identity resolution for incoming
// sales inquiries: fuzzy matching against the active customer directory,
// user-decision await states, contact change reconciliation and the final
// hand-off to the inquiry committer.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/crm/customers"
	"github.com/meridian-erp/meridian-erp/internal/crm/inquiries"
	"github.com/meridian-erp/meridian-erp/internal/crm/matching"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	ErrInvalidDecision = fmt.Errorf("%w: decision not valid in current session state", shared.ErrValidation)
	ErrNotResolved     = fmt.Errorf("%w: session has no resolved customer", shared.ErrValidation)
)

// OutcomeRecorder counts terminal workflow outcomes. Satisfied by
// observability.Metrics.
type OutcomeRecorder interface {
	ResolutionOutcome(outcome string)
}

// Workflow is the resolution state machine. One session walks it at a time;
// all session state lives in the store, never in the workflow itself, so a
// single Workflow serves any number of concurrent sessions.
type Workflow struct {
	customers customers.Repository
	inquiries inquiries.Repository
	committer *inquiries.Committer
	matcher   *matching.Matcher
	sessions  *SessionStore
	logger    *slog.Logger
	metrics   OutcomeRecorder
	flights   singleflight.Group
}

func NewWorkflow(
	customerRepo customers.Repository,
	inquiryRepo inquiries.Repository,
	committer *inquiries.Committer,
	matcher *matching.Matcher,
	sessions *SessionStore,
	logger *slog.Logger,
	metrics OutcomeRecorder,
) *Workflow {
	return &Workflow{
		customers: customerRepo,
		inquiries: inquiryRepo,
		committer: committer,
		matcher:   matcher,
		sessions:  sessions,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start opens a resolution session for an inquiry draft. Drafts that already
// carry a customer id (the editing path) go straight to the change check;
// everything else enters fuzzy matching. The returned session is either
// resolved or parked in an await state.
func (wf *Workflow) Start(ctx context.Context, req StartRequest) (*Session, error) {
	sess, err := wf.sessions.New(ctx, req.ClientRef)
	if err != nil {
		return nil, err
	}

	sess.CompanyName = strings.TrimSpace(req.CompanyName)
	sess.Contact = req.Contact
	sess.Draft = req.Draft

	if req.CustomerID != 0 {
		sess.Draft.CustomerID = req.CustomerID
		err = wf.runChangeCheck(ctx, sess, nil)
	} else {
		sess.Draft.CustomerID = 0
		err = wf.runFuzzyMatch(ctx, sess)
	}
	if err != nil {
		_ = wf.sessions.Delete(ctx, sess)
		return nil, err
	}

	if err := wf.sessions.Save(ctx, sess); err != nil {
		_ = wf.sessions.Delete(ctx, sess)
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// GetSession returns the current state snapshot.
func (wf *Workflow) GetSession(ctx context.Context, id string) (*Session, error) {
	return wf.sessions.Get(ctx, id)
}

// Select resolves an ambiguous match to the chosen candidate and re-enters
// the change check; an auto-matched or selected customer must still have its
// contact details reconciled.
func (wf *Workflow) Select(ctx context.Context, id string, customerID int64) (*Session, error) {
	sess, err := wf.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != StateAwaitingSelection {
		return nil, ErrInvalidDecision
	}

	found := false
	for _, c := range sess.Candidates {
		if c.Customer.ID == customerID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: customer %d is not among the candidates", ErrInvalidDecision, customerID)
	}

	sess.Draft.CustomerID = customerID
	sess.Candidates = nil
	wf.outcome("selected")

	if err := wf.runChangeCheck(ctx, sess, nil); err != nil {
		return nil, err
	}
	if err := wf.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// CreateCustomer confirms the create-new branch: a fresh customer record is
// created from the supplied fields, pre-filled from the inquiry where fields
// are left blank. The fresh record needs no change check.
func (wf *Workflow) CreateCustomer(ctx context.Context, id string, req customers.CreateCustomerRequest) (*Session, error) {
	sess, err := wf.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != StateAwaitingSelection && sess.State != StateAwaitingNewCustomer {
		return nil, ErrInvalidDecision
	}

	if strings.TrimSpace(req.CompanyName) == "" {
		req.CompanyName = sess.CompanyName
	}
	if strings.TrimSpace(req.CompanyName) == "" {
		return nil, fmt.Errorf("%w: company_name is required", shared.ErrValidation)
	}
	if req.ContactPerson == nil {
		req.ContactPerson = optionalField(sess.Contact.ContactPerson)
	}
	if req.Email == nil {
		req.Email = optionalField(sess.Contact.Email)
	}
	if req.Phone == nil {
		req.Phone = optionalField(sess.Contact.Phone)
	}

	customer := customers.Customer{
		CompanyName:   strings.TrimSpace(req.CompanyName),
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		Phone:         req.Phone,
		Country:       req.Country,
		Address:       req.Address,
		City:          req.City,
		IsActive:      true,
	}

	var customerID int64
	err = wf.customers.WithTx(ctx, func(ctx context.Context, repo customers.Repository) error {
		var err error
		customerID, err = repo.Create(ctx, customer)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	sess.Draft.CustomerID = customerID
	sess.Candidates = nil
	sess.State = StateResolved
	wf.outcome("created")
	wf.logger.Info("created customer for inquiry",
		"session", sess.ID, "customer_id", customerID, "company_name", customer.CompanyName)

	if err := wf.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// DecideUpdate consumes the pending change set: "apply" patches the customer
// with the changed fields, "keep" leaves the record untouched. Either way the
// session proceeds to resolved.
func (wf *Workflow) DecideUpdate(ctx context.Context, id, decision string) (*Session, error) {
	sess, err := wf.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != StateAwaitingUpdate || sess.Changes == nil {
		return nil, ErrInvalidDecision
	}

	switch decision {
	case "apply":
		updates := make(map[string]interface{}, len(sess.Changes.NewValues))
		for field, value := range sess.Changes.NewValues {
			updates[field] = value
		}
		err := wf.customers.WithTx(ctx, func(ctx context.Context, repo customers.Repository) error {
			return repo.Update(ctx, sess.Changes.CustomerID, updates)
		})
		if err != nil {
			return nil, fmt.Errorf("apply contact update: %w", err)
		}
		wf.logger.Info("applied contact update",
			"session", sess.ID, "customer_id", sess.Changes.CustomerID,
			"fields", sess.Changes.ChangedFields)
	case "keep":
		// Stored values win; the incoming ones are dropped with the change set.
	default:
		return nil, fmt.Errorf("%w: unknown update decision %q", ErrInvalidDecision, decision)
	}

	sess.Changes = nil
	sess.State = StateResolved

	if err := wf.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// Commit hands the resolved draft to the committer and discards the session.
// A partial multi-product failure also discards the session: the rows exist,
// so re-running the commit would duplicate them.
func (wf *Workflow) Commit(ctx context.Context, id string) ([]inquiries.Inquiry, error) {
	sess, err := wf.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != StateResolved {
		return nil, ErrNotResolved
	}

	committed, err := wf.committer.Commit(ctx, sess.Draft)
	if err != nil {
		if errors.Is(err, shared.ErrPartialCommit) {
			_ = wf.sessions.Delete(ctx, sess)
		}
		return committed, err
	}

	_ = wf.sessions.Delete(ctx, sess)
	wf.outcome("committed")
	return committed, nil
}

// Cancel terminates the session from any state, discarding the draft without
// side effects.
func (wf *Workflow) Cancel(ctx context.Context, id string) error {
	sess, err := wf.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := wf.sessions.Delete(ctx, sess); err != nil {
		return err
	}
	wf.outcome("cancelled")
	return nil
}

// runFuzzyMatch classifies the incoming company name: confident best match
// resolves silently (then re-enters the change check), an ambiguous list parks
// in awaiting_selection, and no plausible match parks in awaiting_new_customer.
func (wf *Workflow) runFuzzyMatch(ctx context.Context, sess *Session) error {
	active, err := wf.listActive(ctx)
	if err != nil {
		return fmt.Errorf("list active customers: %w", err)
	}

	if best, ok := wf.matcher.BestMatch(sess.CompanyName, active); ok && wf.matcher.AutoAccept(best) {
		sess.Draft.CustomerID = best.Customer.ID
		wf.outcome("auto_match")
		wf.logger.Info("auto-matched inquiry",
			"session", sess.ID, "customer_id", best.Customer.ID, "score", best.Score)
		return wf.runChangeCheck(ctx, sess, &best.Customer)
	}

	candidates := wf.matcher.Match(sess.CompanyName, active)
	if len(candidates) == 0 {
		sess.State = StateAwaitingNewCustomer
		return nil
	}

	wf.annotateInquiryCounts(ctx, candidates)
	sess.Candidates = candidates
	sess.State = StateAwaitingSelection
	return nil
}

// runChangeCheck compares the inquiry's contact fields against the resolved
// customer. Differences park the session in awaiting_update_decision;
// otherwise the session is resolved.
func (wf *Workflow) runChangeCheck(ctx context.Context, sess *Session, customer *customers.Customer) error {
	if customer == nil {
		loaded, err := wf.customers.Get(ctx, sess.Draft.CustomerID)
		if err != nil {
			if errors.Is(err, customers.ErrNotFound) {
				return fmt.Errorf("%w: customer %d does not exist", shared.ErrValidation, sess.Draft.CustomerID)
			}
			return fmt.Errorf("load customer: %w", err)
		}
		customer = loaded
	}

	changes := DetectChanges(sess.Contact, *customer)
	if changes.HasChanges() {
		sess.Changes = &changes
		sess.State = StateAwaitingUpdate
		return nil
	}

	sess.State = StateResolved
	return nil
}

// annotateInquiryCounts fills the informational inquiry count per candidate.
// Failures are logged and ignored; the annotation has no effect on matching.
func (wf *Workflow) annotateInquiryCounts(ctx context.Context, candidates []matching.Candidate) {
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Customer.ID)
	}

	counts, err := wf.inquiries.CountByCustomer(ctx, ids)
	if err != nil {
		wf.logger.Warn("annotate inquiry counts failed", "error", err)
		return
	}
	for i := range candidates {
		candidates[i].InquiryCount = counts[candidates[i].Customer.ID]
	}
}

// listActive collapses concurrent directory loads into one store round-trip.
func (wf *Workflow) listActive(ctx context.Context) ([]customers.Customer, error) {
	v, err, _ := wf.flights.Do("active-customers", func() (interface{}, error) {
		return wf.customers.ListActive(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]customers.Customer), nil
}

func (wf *Workflow) outcome(name string) {
	if wf.metrics != nil {
		wf.metrics.ResolutionOutcome(name)
	}
}

func optionalField(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

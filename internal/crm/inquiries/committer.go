package inquiries

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const deliveryDateLayout = "2006-01-02"

// Committer materializes a resolved draft into one or more inquiry rows.
//
// Multi-product drafts are numbered in two phases: the batch insert assigns
// each row a raw sequence number, then a per-row update pass rewrites them to
// base.1, base.2, ... using the first inserted row's number as the base. The
// unique number is only known after insert, so the rename pass cannot share
// the insert transaction; a failure in between surfaces as ErrPartialCommit
// and must not be retried blindly.
type Committer struct {
	repo   Repository
	logger *slog.Logger
}

func NewCommitter(repo Repository, logger *slog.Logger) *Committer {
	return &Committer{repo: repo, logger: logger}
}

// Commit validates, sanitizes and persists the draft. The draft must already
// carry a resolved customer id; nothing is inserted otherwise.
func (c *Committer) Commit(ctx context.Context, draft Draft) ([]Inquiry, error) {
	if draft.CustomerID == 0 {
		return nil, fmt.Errorf("%w: draft has no resolved customer_id", shared.ErrValidation)
	}

	rows, err := buildRows(draft)
	if err != nil {
		return nil, err
	}

	var inserted []Inquiry
	err = c.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		inserted, err = repo.InsertBatch(ctx, rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert inquiries: %w", err)
	}

	if len(inserted) == 1 {
		c.logger.Info("inquiry committed",
			"inquiry_number", inserted[0].InquiryNumber,
			"customer_id", draft.CustomerID)
		return inserted, nil
	}

	// Rename pass. Rows exist from here on, so failures are partial commits.
	// Runs last-to-first: the base row keeps its raw number until the final
	// update, so an interrupted pass leaves an un-suffixed base next to
	// suffixed siblings and stays detectable by FindPartialRenumber.
	base := inserted[0].InquiryNumber
	for i := len(inserted) - 1; i >= 0; i-- {
		number := fmt.Sprintf("%s.%d", base, i+1)
		if err := c.repo.UpdateNumber(ctx, inserted[i].ID, number); err != nil {
			renamed := len(inserted) - 1 - i
			c.logger.Error("inquiry renumbering incomplete",
				"base", base, "renamed", renamed, "total", len(inserted), "error", err)
			return inserted, fmt.Errorf("%w: renamed %d of %d rows under base %s: %v",
				shared.ErrPartialCommit, renamed, len(inserted), base, err)
		}
		inserted[i].InquiryNumber = number
	}

	c.logger.Info("multi-product inquiry committed",
		"base", base, "rows", len(inserted), "customer_id", draft.CustomerID)
	return inserted, nil
}

func buildRows(draft Draft) ([]Row, error) {
	if len(draft.Products) == 0 {
		row, err := buildRow(draft, ProductLine{
			ProductName:   draft.ProductName,
			Specification: draft.Specification,
			Quantity:      draft.Quantity,
			Unit:          draft.Unit,
			TargetPrice:   draft.TargetPrice,
			Supplier:      draft.Supplier,
			DeliveryDate:  draft.DeliveryDate,
		})
		if err != nil {
			return nil, err
		}
		return []Row{row}, nil
	}

	rows := make([]Row, 0, len(draft.Products))
	for _, line := range draft.Products {
		row, err := buildRow(draft, line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// buildRow sanitizes one product line, falling back to the draft's top-level
// values for fields the line omits.
func buildRow(draft Draft, line ProductLine) (Row, error) {
	product := fallback(line.ProductName, draft.ProductName)
	if strings.TrimSpace(product) == "" {
		return Row{}, fmt.Errorf("%w: product_name is required", shared.ErrValidation)
	}

	quantity, err := parseNumericField("quantity", fallback(line.Quantity, draft.Quantity))
	if err != nil {
		return Row{}, err
	}
	price, err := parseNumericField("target_price", fallback(line.TargetPrice, draft.TargetPrice))
	if err != nil {
		return Row{}, err
	}
	delivery, err := parseDateField("delivery_date", fallback(line.DeliveryDate, draft.DeliveryDate))
	if err != nil {
		return Row{}, err
	}

	return Row{
		CustomerID:    draft.CustomerID,
		ProductName:   strings.TrimSpace(product),
		Specification: optional(fallback(line.Specification, draft.Specification)),
		Quantity:      quantity,
		Unit:          optional(fallback(line.Unit, draft.Unit)),
		TargetPrice:   price,
		Supplier:      optional(fallback(line.Supplier, draft.Supplier)),
		DeliveryDate:  delivery,
		Notes:         optional(draft.Notes),
	}, nil
}

// parseNumericField sanitizes numeric form text: empty means NULL, parseable
// text becomes a float, anything else is a caller error rather than a silent
// zero.
func parseNumericField(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be numeric, got %q", shared.ErrValidation, field, raw)
	}
	return &v, nil
}

func parseDateField(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(deliveryDateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a YYYY-MM-DD date, got %q", shared.ErrValidation, field, raw)
	}
	return &t, nil
}

func fallback(line, top string) string {
	if strings.TrimSpace(line) != "" {
		return line
	}
	return top
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

package inquiries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	ErrNotFound = errors.New("record not found")
)

// storeErr classifies a pgx failure. Server-side SQL errors come back as
// *pgconn.PgError and pass through untouched; anything else is a connection
// or protocol fault and gets the transient sentinel.
func storeErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	return fmt.Errorf("%w: inquiries store: %v", shared.ErrTransient, err)
}

// Row is a sanitized inquiry ready for insertion. The store assigns id and
// inquiry_number.
type Row struct {
	CustomerID    int64
	ProductName   string
	Specification *string
	Quantity      *float64
	Unit          *string
	TargetPrice   *float64
	Supplier      *string
	DeliveryDate  *time.Time
	Notes         *string
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Inquiry, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Inquiry, error)
	CountByCustomer(ctx context.Context, ids []int64) (map[int64]int, error)
	InsertBatch(ctx context.Context, rows []Row) ([]Inquiry, error)
	UpdateNumber(ctx context.Context, id int64, number string) error
	FindPartialRenumber(ctx context.Context) ([]string, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool, now: time.Now}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		repoTx := &repository{db: tx, pool: r.pool, now: r.now}
		return fn(ctx, repoTx)
	})
}

const inquiryColumns = `id, inquiry_number, customer_id, product_name, specification, quantity, unit, target_price, supplier, delivery_date, notes, status, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Inquiry, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM inquiries WHERE id = $1`, inquiryColumns), id)
	inq, err := scanInquiry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	return inq, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID int64) ([]Inquiry, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM inquiries WHERE customer_id = $1 ORDER BY created_at DESC, id DESC
	`, inquiryColumns), customerID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var inquiries []Inquiry
	for rows.Next() {
		inq, err := scanInquiry(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		inquiries = append(inquiries, *inq)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return inquiries, nil
}

func (r *repository) CountByCustomer(ctx context.Context, ids []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT customer_id, COUNT(*) FROM inquiries WHERE customer_id = ANY($1) GROUP BY customer_id
	`, ids)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, storeErr(err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return counts, nil
}

// InsertBatch inserts rows in order, assigning each a fresh inquiry number
// from the document sequence. Insertion order is preserved in the result so
// the committer can treat the first row's number as the renumbering base.
func (r *repository) InsertBatch(ctx context.Context, rows []Row) ([]Inquiry, error) {
	inserted := make([]Inquiry, 0, len(rows))
	for _, row := range rows {
		number, err := r.generateNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("generate inquiry number: %w", err)
		}

		inq, err := r.insert(ctx, row, number)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, *inq)
	}
	return inserted, nil
}

func (r *repository) insert(ctx context.Context, row Row, number string) (*Inquiry, error) {
	var qty, price pgtype.Float8
	if row.Quantity != nil {
		qty = pgtype.Float8{Float64: *row.Quantity, Valid: true}
	}
	if row.TargetPrice != nil {
		price = pgtype.Float8{Float64: *row.TargetPrice, Valid: true}
	}
	var delivery pgtype.Date
	if row.DeliveryDate != nil {
		delivery = pgtype.Date{Time: *row.DeliveryDate, Valid: true}
	}

	result := r.db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO inquiries (inquiry_number, customer_id, product_name, specification, quantity, unit, target_price, supplier, delivery_date, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING %s
	`, inquiryColumns),
		number,
		row.CustomerID,
		row.ProductName,
		textOrNull(row.Specification),
		qty,
		textOrNull(row.Unit),
		price,
		textOrNull(row.Supplier),
		delivery,
		textOrNull(row.Notes),
		StatusNew,
	)

	inq, err := scanInquiry(result)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: inquiry number %s already exists", shared.ErrConflict, number)
		}
		return nil, storeErr(err)
	}
	return inq, nil
}

func (r *repository) UpdateNumber(ctx context.Context, id int64, number string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE inquiries SET inquiry_number = $1, updated_at = NOW() WHERE id = $2
	`, number, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: inquiry number %s already exists", shared.ErrConflict, number)
		}
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindPartialRenumber returns base numbers where an un-suffixed row coexists
// with suffixed siblings, the signature a crash leaves between the batch
// insert and the last rename.
func (r *repository) FindPartialRenumber(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.inquiry_number
		FROM inquiries a
		WHERE position('.' IN a.inquiry_number) = 0
		  AND EXISTS (
			SELECT 1 FROM inquiries b WHERE b.inquiry_number LIKE a.inquiry_number || '.%'
		  )
		ORDER BY a.inquiry_number
	`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var bases []string
	for rows.Next() {
		var base string
		if err := rows.Scan(&base); err != nil {
			return nil, storeErr(err)
		}
		bases = append(bases, base)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return bases, nil
}

// generateNumber allocates the next sequence slot for the current period.
// Pattern: INQ-{YYMM}-{SEQ}.
func (r *repository) generateNumber(ctx context.Context) (string, error) {
	now := r.now()
	period := now.Format("200601")
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, "INQ", period).Scan(&seq)
	if err != nil {
		return "", storeErr(err)
	}
	return fmt.Sprintf("INQ-%s-%04d", now.Format("0601"), seq), nil
}

func scanInquiry(row pgx.Row) (*Inquiry, error) {
	var inq Inquiry
	var specification, unit, supplier, notes pgtype.Text
	var quantity, price pgtype.Float8
	var delivery pgtype.Date
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&inq.ID, &inq.InquiryNumber, &inq.CustomerID, &inq.ProductName,
		&specification, &quantity, &unit, &price, &supplier, &delivery,
		&notes, &inq.Status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if specification.Valid {
		inq.Specification = &specification.String
	}
	if quantity.Valid {
		inq.Quantity = &quantity.Float64
	}
	if unit.Valid {
		inq.Unit = &unit.String
	}
	if price.Valid {
		inq.TargetPrice = &price.Float64
	}
	if supplier.Valid {
		inq.Supplier = &supplier.String
	}
	if delivery.Valid {
		inq.DeliveryDate = &delivery.Time
	}
	if notes.Valid {
		inq.Notes = &notes.String
	}
	if createdAt.Valid {
		inq.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		inq.UpdatedAt = updatedAt.Time
	}
	return &inq, nil
}

func textOrNull(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

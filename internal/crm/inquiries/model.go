package inquiries

import "time"

// Inquiry statuses walk the sales pipeline; the commit engine only ever
// creates rows in StatusNew.
const (
	StatusNew       = "NEW"
	StatusQuoted    = "QUOTED"
	StatusWon       = "WON"
	StatusLost      = "LOST"
	StatusCancelled = "CANCELLED"
)

// Inquiry is one persisted product line of interest. InquiryNumber is globally
// unique and human-facing; multi-product submissions share a base number with
// ".1", ".2", ... suffixes. Every inquiry has exactly one owning customer.
type Inquiry struct {
	ID            int64      `json:"id" db:"id"`
	InquiryNumber string     `json:"inquiry_number" db:"inquiry_number"`
	CustomerID    int64      `json:"customer_id" db:"customer_id"`
	ProductName   string     `json:"product_name" db:"product_name"`
	Specification *string    `json:"specification,omitempty" db:"specification"`
	Quantity      *float64   `json:"quantity,omitempty" db:"quantity"`
	Unit          *string    `json:"unit,omitempty" db:"unit"`
	TargetPrice   *float64   `json:"target_price,omitempty" db:"target_price"`
	Supplier      *string    `json:"supplier,omitempty" db:"supplier"`
	DeliveryDate  *time.Time `json:"delivery_date,omitempty" db:"delivery_date"`
	Notes         *string    `json:"notes,omitempty" db:"notes"`
	Status        string     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

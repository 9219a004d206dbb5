package inquiries

// Draft is the in-flight inquiry payload awaiting commit. Numeric and date
// fields stay raw text until commit so that empty form inputs can sanitize to
// NULL instead of zero. CustomerID zero means the identity is unresolved and
// the draft must not be committed.
type Draft struct {
	CustomerID    int64         `json:"customer_id,omitempty"`
	ProductName   string        `json:"product_name,omitempty" validate:"required_without=Products,max=300"`
	Specification string        `json:"specification,omitempty"`
	Quantity      string        `json:"quantity,omitempty"`
	Unit          string        `json:"unit,omitempty" validate:"omitempty,max=20"`
	TargetPrice   string        `json:"target_price,omitempty"`
	Supplier      string        `json:"supplier,omitempty" validate:"omitempty,max=200"`
	DeliveryDate  string        `json:"delivery_date,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Products      []ProductLine `json:"products,omitempty" validate:"omitempty,dive"`
}

// ProductLine is one product of a multi-product submission. Fields left empty
// fall back to the draft's top-level values at commit time.
type ProductLine struct {
	ProductName   string `json:"product_name" validate:"required,max=300"`
	Specification string `json:"specification,omitempty"`
	Quantity      string `json:"quantity,omitempty"`
	Unit          string `json:"unit,omitempty" validate:"omitempty,max=20"`
	TargetPrice   string `json:"target_price,omitempty"`
	Supplier      string `json:"supplier,omitempty" validate:"omitempty,max=200"`
	DeliveryDate  string `json:"delivery_date,omitempty"`
}

// MultiProduct reports whether the draft fans out into more than one row.
func (d Draft) MultiProduct() bool {
	return len(d.Products) > 1
}

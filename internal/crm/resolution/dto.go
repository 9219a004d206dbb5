package resolution

import "github.com/meridian-erp/meridian-erp/internal/crm/inquiries"

// StartRequest opens a resolution session. CustomerID non-zero takes the
// editing path (change check only); otherwise CompanyName drives fuzzy
// matching. ClientRef, when present, enforces one in-flight session per
// interactive client.
type StartRequest struct {
	ClientRef   string          `json:"client_ref,omitempty" validate:"omitempty,max=100"`
	CustomerID  int64           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CompanyName string          `json:"company_name,omitempty" validate:"required_without=CustomerID,max=200"`
	Contact     ContactFields   `json:"contact"`
	Draft       inquiries.Draft `json:"draft" validate:"required"`
}

type SelectRequest struct {
	CustomerID int64 `json:"customer_id" validate:"required,gt=0"`
}

type UpdateDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=apply keep"`
}

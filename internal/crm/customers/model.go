package customers

import "time"

// Customer is the identity record for a trading counterparty. CompanyName is
// the primary human-readable identity key; the store does not enforce
// uniqueness of it, the resolution workflow does. Customers are never hard
// deleted, only deactivated.
type Customer struct {
	ID            int64     `json:"id" db:"id"`
	CompanyName   string    `json:"company_name" db:"company_name"`
	ContactPerson *string   `json:"contact_person,omitempty" db:"contact_person"`
	Email         *string   `json:"email,omitempty" db:"email"`
	Phone         *string   `json:"phone,omitempty" db:"phone"`
	Country       *string   `json:"country,omitempty" db:"country"`
	Address       *string   `json:"address,omitempty" db:"address"`
	City          *string   `json:"city,omitempty" db:"city"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

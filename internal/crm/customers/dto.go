package customers

type CreateCustomerRequest struct {
	CompanyName   string  `json:"company_name" validate:"required,max=200"`
	ContactPerson *string `json:"contact_person,omitempty" validate:"omitempty,max=200"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Country       *string `json:"country,omitempty" validate:"omitempty,max=100"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=500"`
	City          *string `json:"city,omitempty" validate:"omitempty,max=100"`
}

type UpdateCustomerRequest struct {
	CompanyName   *string `json:"company_name,omitempty" validate:"omitempty,max=200"`
	ContactPerson *string `json:"contact_person,omitempty" validate:"omitempty,max=200"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Country       *string `json:"country,omitempty" validate:"omitempty,max=100"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=500"`
	City          *string `json:"city,omitempty" validate:"omitempty,max=100"`
}

type ListCustomersRequest struct {
	IsActive *bool   `json:"is_active,omitempty"`
	Search   *string `json:"search,omitempty"`
	Limit    int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int     `json:"offset" validate:"gte=0"`
}

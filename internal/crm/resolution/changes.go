package resolution

import (
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/crm/customers"
)

// ContactFields are the contact-relevant fields compared against a resolved
// customer record. Company name is identity, not contact, and is matched
// elsewhere.
type ContactFields struct {
	ContactPerson string `json:"contact_person,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

// FieldChangeSet records which contact fields of an inquiry differ from the
// resolved customer record. It is consumed exactly once, by an apply-update or
// keep-existing decision.
type FieldChangeSet struct {
	CustomerID    int64             `json:"customer_id"`
	ChangedFields []string          `json:"changed_fields"`
	OldValues     map[string]string `json:"old_values"`
	NewValues     map[string]string `json:"new_values"`
}

// HasChanges reports whether any field genuinely differs.
func (c FieldChangeSet) HasChanges() bool {
	return len(c.ChangedFields) > 0
}

// DetectChanges compares incoming contact fields against the customer record,
// field by field, post-trim. A field counts as changed only when the incoming
// value is non-empty and differs from the stored value. This runs only once a
// customer id has been decided; it plays no part in fuzzy matching.
func DetectChanges(incoming ContactFields, customer customers.Customer) FieldChangeSet {
	set := FieldChangeSet{
		CustomerID: customer.ID,
		OldValues:  make(map[string]string),
		NewValues:  make(map[string]string),
	}

	compare := func(field, incomingValue string, stored *string) {
		incomingValue = strings.TrimSpace(incomingValue)
		if incomingValue == "" {
			return
		}
		storedValue := ""
		if stored != nil {
			storedValue = strings.TrimSpace(*stored)
		}
		if incomingValue == storedValue {
			return
		}
		set.ChangedFields = append(set.ChangedFields, field)
		set.OldValues[field] = storedValue
		set.NewValues[field] = incomingValue
	}

	compare("contact_person", incoming.ContactPerson, customer.ContactPerson)
	compare("email", incoming.Email, customer.Email)
	compare("phone", incoming.Phone, customer.Phone)
	return set
}

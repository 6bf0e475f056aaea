package party

import (
	"fmt"
	"time"
)

// Type tags the kind of counterparty behind a reference.
type Type string

const (
	TypeCustomer Type = "CUSTOMER"
	TypeSupplier Type = "SUPPLIER"
	TypeEmployee Type = "EMPLOYEE"
)

// Ref identifies a party without committing to a concrete entity shape.
// Invoices, vouchers and allocations all carry one instead of branching on
// ad hoc type strings.
type Ref struct {
	Type Type  `json:"type"`
	ID   int64 `json:"id"`
}

func (r Ref) Valid() bool {
	switch r.Type {
	case TypeCustomer, TypeSupplier, TypeEmployee:
		return r.ID > 0
	default:
		return false
	}
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Party is a registered counterparty with an optional ledger account link.
type Party struct {
	Ref       Ref       `json:"ref"`
	Name      string    `json:"name"`
	AccountID *int64    `json:"account_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

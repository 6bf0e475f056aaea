package coa

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountNature tells which side carries an account's normal balance.
type AccountNature string

const (
	NatureDebit  AccountNature = "DEBIT"
	NatureCredit AccountNature = "CREDIT"
)

// NatureForType derives the normal balance side from the account type.
// Assets and expenses grow on the debit side, everything else on credit.
func NatureForType(t AccountType) (AccountNature, bool) {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NatureDebit, true
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return NatureCredit, true
	default:
		return "", false
	}
}

// Account models a chart of accounts node. Balance is denominated in the
// account's nature: positive means the balance sits on its normal side.
type Account struct {
	ID        int64         `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Type      AccountType   `json:"type"`
	Nature    AccountNature `json:"nature"`
	ParentID  *int64        `json:"parent_id,omitempty"`
	Level     int           `json:"level"`
	IsGroup   bool          `json:"is_group"`
	Balance   float64       `json:"balance"`
	Currency  string        `json:"currency"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Postable reports whether the posting engine may target this account.
func (a Account) Postable() bool {
	return a.IsActive && !a.IsGroup
}

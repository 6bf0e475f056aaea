package mappings

import "time"

// Role tells which side of the entry a mapped account takes.
type Role string

const (
	RoleDebit  Role = "DEBIT"
	RoleCredit Role = "CREDIT"
)

// AccountMapping links a business-document category to a ledger account.
type AccountMapping struct {
	Module    string
	Key       string
	Role      Role
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequiredKey names a mapping that must exist for posting to work.
type RequiredKey struct {
	Module string
	Key    string
}

// DefaultRequired is the baseline inventory checked by the validation
// orchestrator. Deployments extend it through configuration.
var DefaultRequired = []RequiredKey{
	{Module: "SALES", Key: "TRADE_RECEIVABLE"},
	{Module: "SALES", Key: "REVENUE"},
	{Module: "SALES", Key: "TAX_OUTPUT"},
	{Module: "PURCHASE", Key: "TRADE_PAYABLE"},
	{Module: "RECEIPT", Key: "CASH"},
	{Module: "PAYMENT", Key: "CASH"},
}

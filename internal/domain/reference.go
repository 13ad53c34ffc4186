package domain

import "strings"

// Account is an active ledger account of an organization.
type Account struct {
	ID       string
	Name     string
	Currency string
}

// Category is an active income or expense category of an organization.
type Category struct {
	ID   string
	Name string
	Type TransactionType
}

// CounterpartyKind tells vendors (paid by expenses) from clients (paying income).
type CounterpartyKind string

const (
	CounterpartyVendor CounterpartyKind = "vendor"
	CounterpartyClient CounterpartyKind = "client"
)

// CounterpartyKindFor returns the kind of counterparty a transaction of type t refers to.
func CounterpartyKindFor(t TransactionType) CounterpartyKind {
	if t == TransactionIncome {
		return CounterpartyClient
	}
	return CounterpartyVendor
}

// Counterparty is a vendor or client record.
type Counterparty struct {
	ID             string
	OrganizationID string
	Kind           CounterpartyKind
	Name           string
}

// NormalizeName is the case- and whitespace-insensitive key names are matched on
// within an organization.
func NormalizeName(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

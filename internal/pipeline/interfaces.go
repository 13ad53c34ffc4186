package pipeline

import (
	"context"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

// SettingsStore reads organization accounting settings.
// GetAccountingSettings returns nil without error when none are configured.
type SettingsStore interface {
	GetAccountingSettings(ctx context.Context, orgID string) (*domain.AccountingSettings, error)
}

// ReferenceData lists the active accounts and categories names are resolved against.
type ReferenceData interface {
	ListActiveAccounts(ctx context.Context, orgID string) ([]domain.Account, error)
	ListActiveCategories(ctx context.Context, orgID string) ([]domain.Category, error)
}

// CounterpartyStore finds and creates vendors and clients.
// FindCounterparty matches names case-insensitively and returns nil when absent.
// CreateCounterparty returns domain.ErrConflict when the name was taken concurrently.
type CounterpartyStore interface {
	FindCounterparty(ctx context.Context, orgID string, kind domain.CounterpartyKind, name string) (*domain.Counterparty, error)
	CreateCounterparty(ctx context.Context, c domain.Counterparty) error
}

// TagStore resolves tag names to ids, creating missing tags.
// The returned ids follow the order of names.
type TagStore interface {
	FindOrCreateTags(ctx context.Context, orgID string, names []string) ([]string, error)
}

// TransactionStore writes transactions and searches existing ones.
// CreateTransactions may return *domain.BatchInsertError to reject individual rows.
type TransactionStore interface {
	CreateTransactions(ctx context.Context, txs []domain.NewTransaction) error
	FindDuplicates(ctx context.Context, q domain.DuplicateQuery) ([]domain.ExistingTransaction, error)
}

// DocumentStorage stores attachment bytes. Delete removes bytes whose
// transaction or document record could not be written; a missing key is not an error.
type DocumentStorage interface {
	Save(ctx context.Context, orgID string, data []byte, mimeType, originalName string) (*domain.StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// DocumentStore records stored documents and their link to a transaction.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc domain.Document) error
}

// AuditLog appends audit entries.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error
}

// TemplateSource loads stored import templates. GetTemplate returns nil when absent.
type TemplateSource interface {
	GetTemplate(ctx context.Context, orgID, id string) (*domain.ImportTemplate, error)
}

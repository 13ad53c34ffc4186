package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testOrg = "org-1"

var testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

// mockSettingsStore returns fixed settings.
type mockSettingsStore struct {
	settings *domain.AccountingSettings
	err      error
}

func (m *mockSettingsStore) GetAccountingSettings(ctx context.Context, orgID string) (*domain.AccountingSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.settings == nil {
		return nil, nil
	}
	s := *m.settings
	return &s, nil
}

// mockReferenceData serves fixed accounts and categories.
type mockReferenceData struct {
	accounts   []domain.Account
	categories []domain.Category
}

func (m *mockReferenceData) ListActiveAccounts(ctx context.Context, orgID string) ([]domain.Account, error) {
	return m.accounts, nil
}

func (m *mockReferenceData) ListActiveCategories(ctx context.Context, orgID string) ([]domain.Category, error) {
	return m.categories, nil
}

// mockCounterpartyStore keeps counterparties in memory. CreateFunc, when set,
// replaces the default create.
type mockCounterpartyStore struct {
	mu         sync.Mutex
	items      []domain.Counterparty
	findCalls  int
	CreateFunc func(ctx context.Context, c domain.Counterparty) error
}

func (m *mockCounterpartyStore) FindCounterparty(ctx context.Context, orgID string, kind domain.CounterpartyKind, name string) (*domain.Counterparty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	for _, c := range m.items {
		if c.OrganizationID == orgID && c.Kind == kind && domain.NormalizeName(c.Name) == domain.NormalizeName(name) {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (m *mockCounterpartyStore) CreateCounterparty(ctx context.Context, c domain.Counterparty) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, c)
	}
	m.add(c)
	return nil
}

func (m *mockCounterpartyStore) add(c domain.Counterparty) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, c)
}

// mockTagStore assigns ids from names; errOnce fails only the next call.
type mockTagStore struct {
	calls   [][]string
	err     error
	errOnce error
}

func (m *mockTagStore) FindOrCreateTags(ctx context.Context, orgID string, names []string) ([]string, error) {
	m.calls = append(m.calls, names)
	if m.errOnce != nil {
		err := m.errOnce
		m.errOnce = nil
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	ids := make([]string, len(names))
	for i, n := range names {
		ids[i] = "tag-" + domain.NormalizeName(n)
	}
	return ids, nil
}

// mockTransactionStore records inserts and serves duplicate searches from existing.
type mockTransactionStore struct {
	existing   []domain.ExistingTransaction
	created    []domain.NewTransaction
	batches    int
	queries    []domain.DuplicateQuery
	CreateFunc func(ctx context.Context, txs []domain.NewTransaction) error
}

func (m *mockTransactionStore) CreateTransactions(ctx context.Context, txs []domain.NewTransaction) error {
	m.batches++
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, txs); err != nil {
			var batchErr *domain.BatchInsertError
			if errors.As(err, &batchErr) {
				for i, tx := range txs {
					if _, failed := batchErr.Failed[i]; !failed {
						m.created = append(m.created, tx)
					}
				}
			}
			return err
		}
	}
	m.created = append(m.created, txs...)
	return nil
}

func (m *mockTransactionStore) FindDuplicates(ctx context.Context, q domain.DuplicateQuery) ([]domain.ExistingTransaction, error) {
	m.queries = append(m.queries, q)
	var out []domain.ExistingTransaction
	for _, e := range m.existing {
		if e.Date == q.DateFrom && !e.AmountBase.LessThan(q.AmountMin) && !e.AmountBase.GreaterThan(q.AmountMax) {
			out = append(out, e)
		}
	}
	return out, nil
}

// mockDocumentStorage stores bytes under predictable keys.
type mockDocumentStorage struct {
	saved     [][]byte
	names     []string
	deleted   []string
	err       error
	deleteErr error
}

func (m *mockDocumentStorage) Save(ctx context.Context, orgID string, data []byte, mimeType, originalName string) (*domain.StoredObject, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.saved = append(m.saved, data)
	m.names = append(m.names, originalName)
	return &domain.StoredObject{Key: "documents/" + orgID + "/" + originalName, Size: int64(len(data)), ChecksumSHA256: "abc"}, nil
}

func (m *mockDocumentStorage) Delete(ctx context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, key)
	return nil
}

type mockDocumentStore struct {
	docs []domain.Document
	err  error
}

func (m *mockDocumentStore) CreateDocument(ctx context.Context, doc domain.Document) error {
	if m.err != nil {
		return m.err
	}
	m.docs = append(m.docs, doc)
	return nil
}

type mockAuditLog struct {
	entries []domain.AuditEntry
	err     error
}

func (m *mockAuditLog) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

type mockTemplateSource struct {
	templates map[string]*domain.ImportTemplate
}

func (m *mockTemplateSource) GetTemplate(ctx context.Context, orgID, id string) (*domain.ImportTemplate, error) {
	t, ok := m.templates[id]
	if !ok || t.OrganizationID != orgID {
		return nil, nil
	}
	return t, nil
}

// testEnv bundles a service with the fakes behind it.
type testEnv struct {
	settings       *mockSettingsStore
	reference      *mockReferenceData
	counterparties *mockCounterpartyStore
	tags           *mockTagStore
	transactions   *mockTransactionStore
	storage        *mockDocumentStorage
	documents      *mockDocumentStore
	audit          *mockAuditLog
	templates      *mockTemplateSource
	opts           Options
}

func newTestEnv() *testEnv {
	return &testEnv{
		settings: &mockSettingsStore{settings: &domain.AccountingSettings{
			OrganizationID:     testOrg,
			BaseCurrency:       "MYR",
			DateOrder:          domain.DateOrderDMY,
			DecimalSeparator:   ".",
			ThousandsSeparator: ",",
		}},
		reference: &mockReferenceData{
			accounts: []domain.Account{
				{ID: "acc-bank", Name: "Maybank Current", Currency: "MYR"},
				{ID: "acc-cash", Name: "Petty Cash", Currency: "MYR"},
			},
			categories: []domain.Category{
				{ID: "cat-office", Name: "Office Supplies", Type: domain.TransactionExpense},
				{ID: "cat-sales", Name: "Sales", Type: domain.TransactionIncome},
			},
		},
		counterparties: &mockCounterpartyStore{items: []domain.Counterparty{
			{ID: "cp-1", OrganizationID: testOrg, Kind: domain.CounterpartyVendor, Name: "Stationery World"},
		}},
		tags:         &mockTagStore{},
		transactions: &mockTransactionStore{},
		storage:      &mockDocumentStorage{},
		documents:    &mockDocumentStore{},
		audit:        &mockAuditLog{},
		templates:    &mockTemplateSource{templates: map[string]*domain.ImportTemplate{}},
		opts: Options{
			AmountTolerance: decimal.New(1, -2),
			Now:             func() time.Time { return testNow },
		},
	}
}

func (e *testEnv) service() *Service {
	return NewService(Deps{
		Settings:       e.settings,
		Reference:      e.reference,
		Counterparties: e.counterparties,
		Tags:           e.tags,
		Transactions:   e.transactions,
		Documents:      e.documents,
		Storage:        e.storage,
		Audit:          e.audit,
		Templates:      e.templates,
	}, e.opts, zerolog.Nop())
}

// standardMapping maps the columns of csvHeader by name.
func standardMapping() domain.ColumnMapping {
	return domain.ColumnMapping{
		domain.FieldDate:        domain.ColumnHeader("Date"),
		domain.FieldDescription: domain.ColumnHeader("Description"),
		domain.FieldAmount:      domain.ColumnHeader("Amount"),
		domain.FieldCurrency:    domain.ColumnHeader("Currency"),
		domain.FieldCategory:    domain.ColumnHeader("Category"),
		domain.FieldAccount:     domain.ColumnHeader("Account"),
		domain.FieldVendor:      domain.ColumnHeader("Vendor"),
		domain.FieldTags:        domain.ColumnHeader("Tags"),
		domain.FieldDocument:    domain.ColumnHeader("Receipt"),
	}
}

const csvHeader = "Date,Description,Amount,Currency,Category,Account,Vendor,Tags,Receipt\n"

func previewRequest(csv string) PreviewRequest {
	return PreviewRequest{
		OrganizationID: testOrg,
		Actor:          "user-1",
		File:           Upload{Filename: "statement.csv", Data: []byte(csv)},
		Config:         ImportConfig{Mapping: standardMapping()},
	}
}

// buildZip packs name/content pairs into an archive.
func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// pdfBytes sniffs as application/pdf.
var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func decimalMap(t *testing.T, in map[string]string) map[string]decimal.Decimal {
	t.Helper()
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = mustDecimal(t, v)
	}
	return out
}

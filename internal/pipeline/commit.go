package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/google/uuid"
)

// Decision is the caller's choice for a duplicate candidate.
type Decision string

const (
	DecisionImport Decision = "import"
	DecisionSkip   Decision = "skip"
)

// AuditActionImport is the audit action recorded once per commit.
const AuditActionImport = "transactions.import"

// maxAuditFailures caps the row failures copied into the audit entry.
const maxAuditFailures = 50

// CommitRequest repeats a preview's inputs with decisions for duplicate
// candidates, keyed by row index. A candidate without a decision is skipped.
type CommitRequest struct {
	PreviewRequest
	Decisions map[int]Decision `json:"decisions,omitempty"`
}

// CommitResult is the outcome of a commit. The three counts always sum to TotalRows.
type CommitResult struct {
	ImportedCount         int `json:"importedCount"`
	SkippedInvalidCount   int `json:"skippedInvalidCount"`
	SkippedDuplicateCount int `json:"skippedDuplicateCount"`
	TotalRows             int `json:"totalRows"`
}

// RowFailure is a row that passed validation but could not be written.
type RowFailure struct {
	RowIndex int    `json:"rowIndex"`
	Error    string `json:"error"`
}

// Commit re-runs the whole pipeline on the request and writes every valid row
// that is not a duplicate candidate, or is one the caller chose to import.
// Rows are written in sequential batches. A failed row is counted as skipped
// and never stops the remaining rows; batches already written are kept.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	state, err := s.run(ctx, req.PreviewRequest)
	if err != nil {
		return nil, err
	}

	result := &CommitResult{TotalRows: len(state.Rows)}
	var eligible []*NormalizedImportRow
	for i := range state.Rows {
		row := &state.Rows[i]
		switch {
		case row.Status != StatusValid:
			result.SkippedInvalidCount++
		case row.IsDuplicateCandidate && req.Decisions[row.RowIndex] != DecisionImport:
			result.SkippedDuplicateCount++
		default:
			eligible = append(eligible, row)
		}
	}

	w := &commitWriter{
		svc:            s,
		state:          state,
		actor:          req.Actor,
		counterparties: make(map[string]string),
	}
	var failures []RowFailure
	for start := 0; start < len(eligible); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(eligible))
		imported, batchFailures := w.writeBatch(ctx, eligible[start:end])
		result.ImportedCount += imported
		result.SkippedInvalidCount += len(batchFailures)
		failures = append(failures, batchFailures...)

		s.log.Debug().
			Str("organization_id", state.OrganizationID).
			Int("batch_start", start).
			Int("batch_size", end-start).
			Int("imported", imported).
			Int("failed", len(batchFailures)).
			Msg("Import batch written")
	}

	s.appendAudit(ctx, req, result, failures)

	s.log.Info().
		Str("organization_id", state.OrganizationID).
		Str("filename", req.File.Filename).
		Int("imported", result.ImportedCount).
		Int("skipped_invalid", result.SkippedInvalidCount).
		Int("skipped_duplicate", result.SkippedDuplicateCount).
		Int("total_rows", result.TotalRows).
		Msg("Import committed")

	return result, nil
}

// appendAudit records the commit summary. Its failure is logged, not returned.
func (s *Service) appendAudit(ctx context.Context, req CommitRequest, result *CommitResult, failures []RowFailure) {
	if s.deps.Audit == nil {
		return
	}
	metadata := map[string]interface{}{
		"filename":              req.File.Filename,
		"importedCount":         result.ImportedCount,
		"skippedInvalidCount":   result.SkippedInvalidCount,
		"skippedDuplicateCount": result.SkippedDuplicateCount,
		"totalRows":             result.TotalRows,
	}
	if len(failures) > 0 {
		metadata["writeFailures"] = failures[:min(len(failures), maxAuditFailures)]
	}

	entry := domain.AuditEntry{
		ID:             uuid.NewString(),
		Action:         AuditActionImport,
		Actor:          req.Actor,
		OrganizationID: req.OrganizationID,
		Metadata:       metadata,
		CreatedAt:      s.opts.Now().UTC(),
	}
	if err := s.deps.Audit.AppendAudit(ctx, entry); err != nil {
		s.log.Warn().
			Err(err).
			Str("organization_id", req.OrganizationID).
			Str("filename", req.File.Filename).
			Msg("Failed to append import audit entry")
	}
}

// commitWriter writes the rows of one commit. Its caches live only for that commit.
type commitWriter struct {
	svc            *Service
	state          *PipelineState
	actor          string
	counterparties map[string]string
}

// pendingRow is a row whose dependencies are resolved and is ready to insert.
type pendingRow struct {
	rowIndex int
	tx       domain.NewTransaction
	document *domain.Document
}

func (w *commitWriter) writeBatch(ctx context.Context, rows []*NormalizedImportRow) (int, []RowFailure) {
	var failures []RowFailure
	fail := func(rowIndex int, err error) {
		w.svc.log.Warn().
			Err(err).
			Str("organization_id", w.state.OrganizationID).
			Int("row_index", rowIndex).
			Msg("Import row not written")
		failures = append(failures, RowFailure{RowIndex: rowIndex, Error: err.Error()})
	}

	pending := make([]pendingRow, 0, len(rows))
	for _, row := range rows {
		p, err := w.prepareRow(ctx, row)
		if err != nil {
			fail(row.RowIndex, err)
			continue
		}
		pending = append(pending, p)
	}
	if len(pending) == 0 {
		return 0, failures
	}

	txs := make([]domain.NewTransaction, len(pending))
	for i, p := range pending {
		txs[i] = p.tx
	}

	rejected := map[int]error{}
	if err := w.svc.deps.Transactions.CreateTransactions(ctx, txs); err != nil {
		var batchErr *domain.BatchInsertError
		if errors.As(err, &batchErr) {
			rejected = batchErr.Failed
		} else {
			for i := range pending {
				rejected[i] = err
			}
		}
	}

	imported := 0
	for i, p := range pending {
		if err, ok := rejected[i]; ok {
			w.discardDocument(ctx, p)
			fail(p.rowIndex, fmt.Errorf("creating transaction: %w", err))
			continue
		}
		if p.document != nil {
			// The transaction is already written and stays; the row is reported
			// as failed so its document can be attached again.
			if err := w.svc.deps.Documents.CreateDocument(ctx, *p.document); err != nil {
				w.discardDocument(ctx, p)
				fail(p.rowIndex, fmt.Errorf("transaction %s written without its document: creating document record: %w", p.tx.ID, err))
				continue
			}
		}
		imported++
	}
	return imported, failures
}

// discardDocument removes the stored bytes of a row whose records were not written.
func (w *commitWriter) discardDocument(ctx context.Context, p pendingRow) {
	if p.document == nil {
		return
	}
	if err := w.svc.deps.Storage.Delete(ctx, p.document.StorageKey); err != nil {
		w.svc.log.Error().
			Err(err).
			Str("organization_id", w.state.OrganizationID).
			Int("row_index", p.rowIndex).
			Str("storage_key", p.document.StorageKey).
			Msg("Failed to remove orphaned document")
	}
}

// prepareRow resolves the counterparty and tags of a row and stores its
// attachment, producing the transaction to insert.
func (w *commitWriter) prepareRow(ctx context.Context, row *NormalizedImportRow) (pendingRow, error) {
	n := row.Normalized
	now := w.svc.opts.Now().UTC()
	tx := domain.NewTransaction{
		ID:                 uuid.NewString(),
		OrganizationID:     w.state.OrganizationID,
		AccountID:          n.AccountID,
		CategoryID:         n.CategoryID,
		Type:               n.Type,
		Date:               n.Date,
		AmountOriginal:     n.AmountOriginal,
		CurrencyOriginal:   n.CurrencyOriginal,
		AmountBase:         n.AmountBase,
		CurrencyBase:       n.CurrencyBase,
		AmountSecondary:    n.AmountSecondary,
		CurrencySecondary:  n.CurrencySecondary,
		ExchangeRateToBase: n.ExchangeRateToBase,
		Description:        n.Description,
		Notes:              n.Notes,
		Source:             "import:" + w.state.Filename,
		CreatedBy:          w.actor,
		CreatedAt:          now,
	}

	if n.VendorName != "" {
		id, err := w.counterparty(ctx, domain.CounterpartyKindFor(n.Type), n.VendorName)
		if err != nil {
			return pendingRow{}, err
		}
		tx.CounterpartyID = id
	}

	if len(n.Tags) > 0 {
		ids, err := w.tags(ctx, n.Tags)
		if err != nil {
			return pendingRow{}, err
		}
		tx.TagIDs = ids
	}

	p := pendingRow{rowIndex: row.RowIndex, tx: tx}
	if w.state.Archive && row.DocumentPath != "" {
		doc, err := w.storeDocument(ctx, row.DocumentPath, tx.ID, now)
		if err != nil {
			return pendingRow{}, err
		}
		p.document = doc
	}
	return p, nil
}

// counterparty finds or creates a vendor or client. A create that loses a race
// with a concurrent commit falls back to a second lookup.
func (w *commitWriter) counterparty(ctx context.Context, kind domain.CounterpartyKind, name string) (string, error) {
	key := string(kind) + "|" + domain.NormalizeName(name)
	if id, ok := w.counterparties[key]; ok {
		return id, nil
	}

	store := w.svc.deps.Counterparties
	orgID := w.state.OrganizationID
	found, err := store.FindCounterparty(ctx, orgID, kind, name)
	if err != nil {
		return "", fmt.Errorf("finding %s %q: %w", kind, name, err)
	}
	if found == nil {
		c := domain.Counterparty{ID: uuid.NewString(), OrganizationID: orgID, Kind: kind, Name: name}
		err := store.CreateCounterparty(ctx, c)
		switch {
		case err == nil:
			found = &c
		case errors.Is(err, domain.ErrConflict):
			found, err = store.FindCounterparty(ctx, orgID, kind, name)
			if err != nil {
				return "", fmt.Errorf("finding %s %q after conflict: %w", kind, name, err)
			}
			if found == nil {
				return "", fmt.Errorf("%s %q conflicted on create but is not found", kind, name)
			}
		default:
			return "", fmt.Errorf("creating %s %q: %w", kind, name, err)
		}
	}

	w.counterparties[key] = found.ID
	return found.ID, nil
}

// tags resolves tag names, retrying once when a concurrent commit created one of them.
func (w *commitWriter) tags(ctx context.Context, names []string) ([]string, error) {
	ids, err := w.svc.deps.Tags.FindOrCreateTags(ctx, w.state.OrganizationID, names)
	if errors.Is(err, domain.ErrConflict) {
		ids, err = w.svc.deps.Tags.FindOrCreateTags(ctx, w.state.OrganizationID, names)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving tags: %w", err)
	}
	return ids, nil
}

// storeDocument saves an attachment's bytes and returns the document record to
// create once the transaction exists. The bytes are removed again when either
// write fails.
func (w *commitWriter) storeDocument(ctx context.Context, docPath, transactionID string, now time.Time) (*domain.Document, error) {
	f, ok := w.state.Files[NormalizeDocumentPath(docPath)]
	if !ok || f.Data == nil {
		return nil, fmt.Errorf("document %q not found in archive", docPath)
	}
	if w.svc.deps.Storage == nil || w.svc.deps.Documents == nil {
		return nil, fmt.Errorf("document %q: document storage is not configured", docPath)
	}

	mimeType := DetectMimeType(f.Data)
	name := path.Base(NormalizeDocumentPath(docPath))
	stored, err := w.svc.deps.Storage.Save(ctx, w.state.OrganizationID, f.Data, mimeType, name)
	if err != nil {
		return nil, fmt.Errorf("storing document %q: %w", docPath, err)
	}

	return &domain.Document{
		ID:             uuid.NewString(),
		OrganizationID: w.state.OrganizationID,
		TransactionID:  transactionID,
		StorageKey:     stored.Key,
		OriginalName:   name,
		MimeType:       mimeType,
		Size:           stored.Size,
		ChecksumSHA256: stored.ChecksumSHA256,
		UploadedBy:     w.actor,
		CreatedAt:      now,
	}, nil
}

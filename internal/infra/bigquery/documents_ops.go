package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

const (
	documentsTable     = "documents"
	documentLinksTable = "document_links"
)

// CreateDocument records a stored document and links it to its transaction.
func (s *Store) CreateDocument(ctx context.Context, doc domain.Document) error {
	row := &DocumentRow{
		DocumentID:       doc.ID,
		OrganizationID:   doc.OrganizationID,
		StorageKey:       doc.StorageKey,
		OriginalFilename: doc.OriginalName,
		FileMimeType:     doc.MimeType,
		SizeBytes:        doc.Size,
		ChecksumSHA256:   doc.ChecksumSHA256,
		UploadedBy:       doc.UploadedBy,
		UploadTS:         doc.CreatedAt,
	}
	if err := s.table(documentsTable).Inserter().Put(ctx, &bigquery.StructSaver{Struct: row, InsertID: doc.ID}); err != nil {
		return fmt.Errorf("CreateDocument: inserting document: %w", err)
	}

	link := &DocumentLinkRow{
		DocumentID:     doc.ID,
		TransactionID:  doc.TransactionID,
		OrganizationID: doc.OrganizationID,
		CreatedTS:      doc.CreatedAt,
	}
	if err := s.table(documentLinksTable).Inserter().Put(ctx, link); err != nil {
		return fmt.Errorf("CreateDocument: inserting link: %w", err)
	}

	return nil
}

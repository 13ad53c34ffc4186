package bigquery

import "time"

// DocumentRow is one row of the documents table.
type DocumentRow struct {
	DocumentID       string    `bigquery:"document_id"`
	OrganizationID   string    `bigquery:"organization_id"`
	StorageKey       string    `bigquery:"storage_key"`
	OriginalFilename string    `bigquery:"original_filename"`
	FileMimeType     string    `bigquery:"file_mime_type"`
	SizeBytes        int64     `bigquery:"size_bytes"`
	ChecksumSHA256   string    `bigquery:"checksum_sha256"`
	UploadedBy       string    `bigquery:"uploaded_by"`
	UploadTS         time.Time `bigquery:"upload_ts"`
}

// DocumentLinkRow links a document to the transaction it supports.
type DocumentLinkRow struct {
	DocumentID     string    `bigquery:"document_id"`
	TransactionID  string    `bigquery:"transaction_id"`
	OrganizationID string    `bigquery:"organization_id"`
	CreatedTS      time.Time `bigquery:"created_ts"`
}

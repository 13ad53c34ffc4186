package domain

import "time"

// StoredObject describes bytes written to document storage.
type StoredObject struct {
	Key            string
	Size           int64
	ChecksumSHA256 string
}

// Document is an uploaded receipt or invoice linked to one transaction.
type Document struct {
	ID             string
	OrganizationID string
	TransactionID  string
	StorageKey     string
	OriginalName   string
	MimeType       string
	Size           int64
	ChecksumSHA256 string
	UploadedBy     string
	CreatedAt      time.Time
}

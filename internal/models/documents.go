package models

import "time"

// Document is the metadata of a stored file attached to a record.
type Document struct {
	Base
	RecordType  string `gorm:"not null;index:idx_document_record" json:"record_type"`
	RecordID    uint   `gorm:"not null;index:idx_document_record" json:"record_id"`
	Filename    string `gorm:"not null" json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	SHA256      string `gorm:"column:sha256;size:64" json:"sha256"`
	StorageKey  string `gorm:"not null;uniqueIndex" json:"-"`
	UploadedBy  string `json:"uploaded_by"`
}

// DocumentShare grants access to a document through an unguessable token
// until it expires.
type DocumentShare struct {
	Base
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	Document   *Document `gorm:"foreignKey:DocumentID" json:"-"`
	Token      string    `gorm:"not null;uniqueIndex" json:"token"`
	ExpiresAt  time.Time `gorm:"not null" json:"expires_at"`
}

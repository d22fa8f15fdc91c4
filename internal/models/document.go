package models

import "time"

// Document is an uploaded binary document (chiefly PDF). Filename is
// the blob-store key of the original upload; the worker reads the blob
// and never mutates the row.
type Document struct {
	ID          string     `db:"id" json:"id"`
	OrgID       string     `db:"org_id" json:"org_id"`
	Filename    string     `db:"filename" json:"filename"`
	DisplayName string     `db:"display_name" json:"display_name"`
	Pages       int        `db:"pages" json:"pages"`
	IsTarget    bool       `db:"is_target" json:"is_target"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

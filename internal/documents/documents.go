// Package documents stores texts with their embedding points and serves
// similarity search over them.
//
// A document row carries the text and an md5 of its content; each document
// owns embedding points stamped with the md5 they were computed from. A
// point whose md5 no longer matches its document is stale, and Sync
// re-embeds it. Search embeds the query and ranks candidate points by
// cosine similarity.
package documents

import (
	"crypto/md5"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxContentLength caps document content size.
const MaxContentLength = 5000

var (
	// ErrDocumentNotFound indicates the document id matched no row.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrPointNotFound indicates the point id matched no row.
	ErrPointNotFound = errors.New("point not found")

	errEmptyName      = errors.New("document name must not be empty")
	errEmptyContent   = errors.New("document content must not be empty")
	errContentTooLong = fmt.Errorf("document content exceeds %d characters", MaxContentLength)
)

// Vector is an embedding stored as a JSON array column. Postgres has no
// native float-array type GORM maps portably, so the column holds the JSON
// encoding.
type Vector []float64

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("cannot scan %T into Vector", src)
	}
}

// Metadata is a free-form JSON object column.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, m)
	case string:
		return json.Unmarshal([]byte(data), m)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
}

// Document is a stored text with its content hash.
type Document struct {
	DocumentID string   `gorm:"column:document_id;primaryKey" json:"document_id"`
	Name       string   `gorm:"column:name;size:255;uniqueIndex" json:"name"`
	Content    string   `gorm:"column:content;size:5000" json:"content"`
	ContentMD5 string   `gorm:"column:content_md5;index" json:"content_md5"`
	Metadata   Metadata `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  int64    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  int64    `gorm:"column:updated_at" json:"updated_at"`
}

// TableName implements gorm's Tabler.
func (Document) TableName() string { return "documents" }

// Point is an embedding of a document's content at a specific md5.
type Point struct {
	PointID    string `gorm:"column:point_id;primaryKey" json:"point_id"`
	DocumentID string `gorm:"column:document_id;index" json:"document_id"`
	ContentMD5 string `gorm:"column:content_md5;index" json:"content_md5"`
	Embedding  Vector `gorm:"column:embedding" json:"embedding,omitempty"`
}

// TableName implements gorm's Tabler.
func (Point) TableName() string { return "points" }

// Stale reports whether the point was embedded from a different content
// revision than doc currently holds.
func (p Point) Stale(doc Document) bool {
	return p.ContentMD5 != doc.ContentMD5
}

// NewDocument builds a document with a fresh id and content hash. The
// content is validated against length limits.
func NewDocument(name, content string, metadata Metadata) (Document, error) {
	if name == "" {
		return Document{}, errEmptyName
	}
	if content == "" {
		return Document{}, errEmptyContent
	}
	if len(content) > MaxContentLength {
		return Document{}, errContentTooLong
	}

	now := time.Now().Unix()
	return Document{
		DocumentID: "doc-" + uuid.NewString(),
		Name:       name,
		Content:    content,
		ContentMD5: HashContent(content),
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// HashContent returns the lowercase hex md5 of content. The hash keys
// point staleness, not any security property.
func HashContent(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

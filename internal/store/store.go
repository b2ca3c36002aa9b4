// Package store persists CV documents and their revision history.
package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("revision conflict")
)

// Document is a stored CV. Revision starts at 1 and increases by one on
// every successful Update.
type Document struct {
	ID          string    `json:"doc_id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	Text        string    `json:"text,omitempty"`
	Revision    int       `json:"revision"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Revision is one historical version of a document's text.
type Revision struct {
	DocID     string    `json:"doc_id"`
	Number    int       `json:"revision"`
	Text      string    `json:"text"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence collaborator. Implementations must be safe for
// concurrent use; callers serialize edits to one document with Locks.
type Store interface {
	// Create stores doc as revision 1, assigning an ID when empty.
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// FindByHash returns the user's document with the given upload hash.
	FindByHash(ctx context.Context, userID, hash string) (*Document, error)
	// List returns the user's documents, newest first, without Text.
	List(ctx context.Context, userID string) ([]Document, error)
	// Update replaces the text if the stored revision equals expected,
	// recording the new text as the next revision.
	Update(ctx context.Context, id string, expected int, text, note string) (*Document, error)
	Revision(ctx context.Context, id string, n int) (*Revision, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewID returns a time-ordered document ID.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

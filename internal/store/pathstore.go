package store

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/dgallion1/cvchat/internal/pathstore"
)

const keyRoot = "cvchat"

// Pathstore keeps documents in a remote pathstore tree:
//
//	cvchat/cvs/{id}                          document
//	cvchat/revisions/{id}/{n}                revision n
//	cvchat/users/{user}/cvs/{id}             per-user index
//	cvchat/users/{user}/by_hash/{hash}/{id}  dedup index
//
// The revision check in Update is read-then-write; it is only safe when
// edits to one document are serialized through Locks.
type Pathstore struct {
	ps *pathstore.Client
}

func NewPathstore(ps *pathstore.Client) *Pathstore {
	return &Pathstore{ps: ps}
}

func docKey(id string) string { return keyRoot + "/cvs/" + url.PathEscape(id) }

func revisionsKey(id string) string { return keyRoot + "/revisions/" + url.PathEscape(id) }

func revisionKey(id string, n int) string { return fmt.Sprintf("%s/%06d", revisionsKey(id), n) }

func userKey(userID string) string { return keyRoot + "/users/" + url.PathEscape(userID) }

func hashKey(userID, hash string) string { return userKey(userID) + "/by_hash/" + url.PathEscape(hash) }

func (s *Pathstore) Create(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = NewID()
	}
	now := time.Now().UTC()
	doc.Revision = 1
	doc.CreatedAt, doc.UpdatedAt = now, now

	if err := s.putRevision(ctx, &Revision{DocID: doc.ID, Number: 1, Text: doc.Text, Note: "created", CreatedAt: now}); err != nil {
		return err
	}
	if err := s.ps.PutNode(ctx, docKey(doc.ID), pathstore.NodeRequest{Value: doc, Source: "cvchat"}); err != nil {
		return fmt.Errorf("store: put document: %w", err)
	}
	if err := s.ps.PutNode(ctx, userKey(doc.UserID)+"/cvs/"+doc.ID, pathstore.NodeRequest{
		Value: map[string]any{"filename": doc.Filename},
	}); err != nil {
		return fmt.Errorf("store: put user index: %w", err)
	}
	if doc.ContentHash != "" {
		if err := s.ps.PutNode(ctx, hashKey(doc.UserID, doc.ContentHash)+"/"+doc.ID, pathstore.NodeRequest{
			Value: map[string]any{"created_at": now.Format(time.RFC3339)},
		}); err != nil {
			return fmt.Errorf("store: put hash index: %w", err)
		}
	}
	return nil
}

func (s *Pathstore) putRevision(ctx context.Context, r *Revision) error {
	if err := s.ps.PutNode(ctx, revisionKey(r.DocID, r.Number), pathstore.NodeRequest{Value: r, Source: "cvchat"}); err != nil {
		return fmt.Errorf("store: put revision: %w", err)
	}
	return nil
}

func (s *Pathstore) Get(ctx context.Context, id string) (*Document, error) {
	node, err := s.ps.GetNode(ctx, docKey(id))
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	if node == nil {
		return nil, notFound("document", id)
	}
	var d Document
	if err := node.Decode(&d); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return &d, nil
}

func (s *Pathstore) FindByHash(ctx context.Context, userID, hash string) (*Document, error) {
	children, err := s.ps.ListChildren(ctx, hashKey(userID, hash), 1)
	if err != nil {
		return nil, fmt.Errorf("store: find by hash: %w", err)
	}
	if len(children) == 0 {
		return nil, notFound("hash", hash)
	}
	return s.Get(ctx, pathstore.LastSegment(children[0].Key))
}

func (s *Pathstore) List(ctx context.Context, userID string) ([]Document, error) {
	children, err := s.ps.ListChildren(ctx, userKey(userID)+"/cvs", 0)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	docs := make([]Document, 0, len(children))
	for _, c := range children {
		d, err := s.Get(ctx, pathstore.LastSegment(c.Key))
		if err != nil {
			// Index entry outlived its document.
			continue
		}
		d.Text = ""
		docs = append(docs, *d)
	}
	slices.SortFunc(docs, func(a, b Document) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return docs, nil
}

func (s *Pathstore) Update(ctx context.Context, id string, expected int, text, note string) (*Document, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Revision != expected {
		return nil, fmt.Errorf("%w: document %s is at revision %d, not %d", ErrConflict, id, d.Revision, expected)
	}
	now := time.Now().UTC()
	d.Revision++
	d.Text = text
	d.UpdatedAt = now

	if err := s.putRevision(ctx, &Revision{DocID: id, Number: d.Revision, Text: text, Note: note, CreatedAt: now}); err != nil {
		return nil, err
	}
	if err := s.ps.PutNode(ctx, docKey(id), pathstore.NodeRequest{Value: d, Source: "cvchat"}); err != nil {
		return nil, fmt.Errorf("store: put document: %w", err)
	}
	return d, nil
}

func (s *Pathstore) Revision(ctx context.Context, id string, n int) (*Revision, error) {
	node, err := s.ps.GetNode(ctx, revisionKey(id, n))
	if err != nil {
		return nil, fmt.Errorf("store: revision: %w", err)
	}
	if node == nil {
		return nil, notFound("revision", fmt.Sprintf("%s@%d", id, n))
	}
	var r Revision
	if err := node.Decode(&r); err != nil {
		return nil, fmt.Errorf("store: decode revision: %w", err)
	}
	return &r, nil
}

func (s *Pathstore) Delete(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	keys := []string{userKey(d.UserID) + "/cvs/" + id, docKey(id)}
	if d.ContentHash != "" {
		keys = append(keys, hashKey(d.UserID, d.ContentHash)+"/"+id)
	}
	for _, k := range keys {
		if err := s.ps.DeleteNode(ctx, k, false); err != nil {
			return fmt.Errorf("store: delete: %w", err)
		}
	}
	if err := s.ps.DeleteNode(ctx, revisionsKey(id), true); err != nil {
		return fmt.Errorf("store: delete revisions: %w", err)
	}
	return nil
}

func (s *Pathstore) Close() error {
	s.ps.Close()
	return nil
}

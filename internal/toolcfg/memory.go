package toolcfg

import (
	"context"
	"sync"

	"github.com/relaybot/relaybot/pkg/models"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *MemoryStore) Put(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = copyDoc(doc)
	return nil
}

func copyDoc(doc *Document) *Document {
	cp := &Document{ID: doc.ID}
	if doc.Servers != nil {
		cp.Servers = append([]models.ToolServer(nil), doc.Servers...)
	}
	return cp
}

// Package toolcfg persists and validates the per-user tool-server
// configuration that agents are built from.
package toolcfg

import (
	"context"
	"errors"

	"github.com/relaybot/relaybot/pkg/models"
)

var (
	// ErrNotFound indicates no document exists for the user.
	ErrNotFound = errors.New("tool configuration not found")

	// ErrNoConfiguration signals that a registry was requested for a
	// user who has never stored tool servers. Callers inform the user
	// rather than silently creating a toolless agent.
	ErrNoConfiguration = errors.New("no tool servers configured")
)

// Document is one user's full set of tool servers. The document id is
// the user's stable identity; edits replace the server list wholesale.
type Document struct {
	ID      string              `json:"id"`
	Servers []models.ToolServer `json:"servers"`
}

// Store is the per-user configuration document store. Writes are full
// overwrites; concurrent editors race and the last writer wins.
type Store interface {
	// Get point-reads the user's document. Returns ErrNotFound when the
	// user has no stored configuration.
	Get(ctx context.Context, userID string) (*Document, error)

	// Put upserts the document keyed by its id.
	Put(ctx context.Context, doc *Document) error
}

// BuildRegistry looks up the user's tool servers and returns them as the
// registry for a new agent: one entry per stored descriptor, label, URL,
// and allowed-operations list unchanged. A user with no document yields
// an empty registry and ErrNoConfiguration.
func BuildRegistry(ctx context.Context, store Store, userID string) ([]models.ToolServer, error) {
	doc, err := store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoConfiguration
	}
	if err != nil {
		return nil, err
	}
	servers := make([]models.ToolServer, len(doc.Servers))
	copy(servers, doc.Servers)
	return servers, nil
}

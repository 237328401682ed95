package toolcfg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// CosmosStore persists tool configuration documents in a Cosmos DB
// container, partitioned by document id (the user's stable identity).
type CosmosStore struct {
	container *azcosmos.ContainerClient
	logger    *slog.Logger
}

// NewCosmosStore connects to the given database and container.
func NewCosmosStore(endpoint, database, container string, cred azcore.TokenCredential, logger *slog.Logger) (*CosmosStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := azcosmos.NewClient(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("cosmos client: %w", err)
	}
	cc, err := client.NewContainer(database, container)
	if err != nil {
		return nil, fmt.Errorf("cosmos container: %w", err)
	}
	return &CosmosStore{
		container: cc,
		logger:    logger.With("component", "cosmos_store"),
	}, nil
}

func (s *CosmosStore) Get(ctx context.Context, userID string) (*Document, error) {
	pk := azcosmos.NewPartitionKeyString(userID)
	resp, err := s.container.ReadItem(ctx, pk, userID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read document %s: %w", userID, err)
	}

	var doc Document
	if err := json.Unmarshal(resp.Value, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", userID, err)
	}
	return &doc, nil
}

func (s *CosmosStore) Put(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}

	pk := azcosmos.NewPartitionKeyString(doc.ID)
	if _, err := s.container.UpsertItem(ctx, pk, data, nil); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	s.logger.Debug("stored tool configuration", "user_id", doc.ID, "servers", len(doc.Servers))
	return nil
}

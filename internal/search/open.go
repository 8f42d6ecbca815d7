package search

import (
	"context"
	"fmt"

	"github.com/usersearch/go-services/internal/config"
	"github.com/usersearch/go-services/internal/database"
	"github.com/usersearch/go-services/internal/users"
	"github.com/usersearch/go-services/pkg/logger"
)

// mongoConnectAttempts bounds startup retries against MongoDB.
const mongoConnectAttempts = 5

// Open builds the store selected by cfg.Search.Backend, wrapped with metrics.
// The returned close func releases backend connections.
func Open(ctx context.Context, cfg *config.Config) (users.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Search.Backend {
	case config.BackendElasticsearch:
		es, err := NewElastic(ElasticConfig{
			Addresses: cfg.Search.Addresses,
			Username:  cfg.Search.Username,
			Password:  cfg.Search.Password,
			Index:     cfg.Search.Index,
			Refresh:   cfg.Search.Refresh,
			Timeout:   cfg.Search.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("search: elasticsearch %v index=%s", cfg.Search.Addresses, cfg.Search.Index)
		return Instrument(es), noop, nil

	case config.BackendMongo:
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoConnectAttempts)
		if err != nil {
			return nil, nil, err
		}
		col := client.Database(cfg.MongoDB.Database).Collection(cfg.Search.Index)
		logger.Infof("search: mongo database=%s collection=%s", cfg.MongoDB.Database, cfg.Search.Index)
		return Instrument(NewMongo(col)), client.Disconnect, nil

	case config.BackendMemory:
		logger.Infof("search: in-memory store")
		return Instrument(NewMemory()), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown search backend %q", cfg.Search.Backend)
}

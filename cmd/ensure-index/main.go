// Command ensure-index creates the users index with its autocomplete analysis
// settings, or verifies an existing one, then exits. Exit status is non-zero
// when the index is missing and could not be created or is misconfigured.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/usersearch/go-services/internal/config"
	"github.com/usersearch/go-services/internal/search"
	"github.com/usersearch/go-services/internal/users"
	"github.com/usersearch/go-services/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, closeStore, err := search.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open search backend: %v", err)
	}
	defer func() { _ = closeStore(context.Background()) }()

	if err := users.NewService(store).EnsureIndex(ctx); err != nil {
		if errors.Is(err, users.ErrIndexMisconfigured) {
			logger.Errorf("index %q exists without the autocomplete analyzer; reindex or drop it: %v", cfg.Search.Index, err)
		} else {
			logger.Errorf("ensure index %q: %v", cfg.Search.Index, err)
		}
		_ = closeStore(context.Background())
		os.Exit(1)
	}
	logger.Infof("index %q ready (backend=%s)", cfg.Search.Index, cfg.Search.Backend)
}

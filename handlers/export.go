package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/usersearch/go-services/internal/storage"
	"github.com/usersearch/go-services/internal/users"
	"github.com/usersearch/go-services/pkg/logger"
)

// ExportHandler writes a snapshot of the users index to object storage.
type ExportHandler struct {
	svc   *users.Service
	store storage.ObjectStore
	now   func() time.Time
}

func NewExportHandler(svc *users.Service, store storage.ObjectStore) *ExportHandler {
	return &ExportHandler{svc: svc, store: store, now: time.Now}
}

func (h *ExportHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/admin/export", h.Export)
}

// Export snapshots the same documents GET /users returns. The route carries no
// authentication of its own.
func (h *ExportHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	hits, err := h.svc.List(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	snap, err := storage.WriteSnapshot(ctx, h.store, storage.SnapshotKey(h.now()), hits)
	if err != nil {
		_ = c.Error(err)
		logger.Errorf("export: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "export failed"})
		return
	}
	logger.Infof("export: wrote %d users to %s", snap.Count, snap.Key)
	c.JSON(http.StatusOK, snap)
}

// Package rooms serves read-only HTTP views of live room state.
package rooms

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vimeet/server/internal/realtime"
	"github.com/vimeet/server/pkg/response"
)

const snapshotTimeout = 2 * time.Second

// Snapshotter reads room state from the coordinator.
type Snapshotter interface {
	Snapshot(ctx context.Context, room string) (*realtime.RoomState, error)
}

// Handler handles room HTTP endpoints.
type Handler struct {
	hub Snapshotter
}

// NewHandler creates a rooms handler.
func NewHandler(hub Snapshotter) *Handler {
	return &Handler{hub: hub}
}

// Get handles GET /rooms/:room.
func (h *Handler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	st, err := h.hub.Snapshot(ctx, c.Param("room"))
	if err != nil {
		response.ServiceUnavailable(c, "room state unavailable")
		return
	}
	if st == nil {
		response.NotFound(c, "room not found")
		return
	}
	response.OK(c, st)
}

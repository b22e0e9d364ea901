package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"waitboard/internal/gate"
	"waitboard/internal/model"
)

// RequireOpen rejects actions once the session has been blocked.
func (h *Handler) RequireOpen(c *gin.Context) {
	err := h.session.Gate.Check()
	var blocked *gate.BlockedError
	if errors.As(err, &blocked) {
		c.AbortWithStatusJSON(http.StatusLocked, gin.H{"error": blocked.Error(), "block": blocked.State})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Next()
}

type reorderRequest struct {
	ItemID     int64   `json:"item_id"`
	Position   int     `json:"position"`
	OrderedIDs []int64 `json:"ordered_ids"`
}

// Reorder handles POST /api/classes/:class_id/reorder. The body either drops
// one item at a 1-based position or gives the full order.
func (h *Handler) Reorder(c *gin.Context) {
	classID, ok := idParam(c, "class_id")
	if !ok {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	switch {
	case len(req.OrderedIDs) > 0:
		err = h.session.Controller.ReorderIDs(c.Request.Context(), classID, req.OrderedIDs)
	case req.ItemID != 0 && req.Position > 0:
		err = h.session.Controller.Reorder(c.Request.Context(), classID, req.ItemID, req.Position)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_id and position, or ordered_ids, are required"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ordered_ids": h.session.Store.OrderedIDs(classID)})
}

type moveRequest struct {
	Direction model.Direction `json:"direction" binding:"required"`
}

// Move handles POST /api/waiting/:id/move.
func (h *Handler) Move(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	moved, err := h.session.Controller.Move(c.Request.Context(), id, req.Direction)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"moved": moved}
	if item, found := h.session.Store.Item(id); found {
		resp["item"] = item
	}
	c.JSON(http.StatusOK, resp)
}

type statusRequest struct {
	Status model.Status `json:"status" binding:"required"`
}

// SetStatus handles POST /api/waiting/:id/status.
func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.session.Controller.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Call handles POST /api/waiting/:id/call.
func (h *Handler) Call(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.session.Controller.Call(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type insertEmptyRequest struct {
	Position model.SeatPosition `json:"position" binding:"required"`
}

// InsertEmpty handles POST /api/waiting/:id/insert-empty.
func (h *Handler) InsertEmpty(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req insertEmptyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.session.Controller.InsertEmptySeat(c.Request.Context(), id, req.Position)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

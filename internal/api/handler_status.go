package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"waitboard/internal/model"
	"waitboard/internal/store"
)

type stateResponse struct {
	store.Runtime
	Revision       uint64 `json:"revision"`
	Loading        bool   `json:"loading"`
	ActiveCount    int    `json:"active_count"`
	TentativeCount int    `json:"tentative_count"`
	Blocked        bool   `json:"blocked"`
}

// GetState handles GET /api/state.
func (h *Handler) GetState(c *gin.Context) {
	st := h.session.Store
	rt := st.Runtime()
	c.JSON(http.StatusOK, stateResponse{
		Runtime:        rt,
		Revision:       st.Revision(),
		Loading:        st.Loading(),
		ActiveCount:    st.ActiveCount(),
		TentativeCount: st.TentativeCount(),
		Blocked:        rt.Block != nil,
	})
}

// GetClasses handles GET /api/classes.
func (h *Handler) GetClasses(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Store.Classes())
}

// itemResponse is an item as rendered by the screens.
type itemResponse struct {
	store.ItemView
	Called bool `json:"called"`
}

func (h *Handler) classItems(classID int64, now time.Time) []itemResponse {
	window := h.session.CalledWindow()
	views := h.session.Store.SelectViews(classID)
	out := make([]itemResponse, 0, len(views))
	for _, v := range views {
		out = append(out, itemResponse{ItemView: v, Called: window.IsCalled(v.WaitingItem, now)})
	}
	return out
}

func (h *Handler) hasClass(classID int64) bool {
	for _, cl := range h.session.Store.Classes() {
		if cl.ID == classID {
			return true
		}
	}
	return false
}

// GetClassItems handles GET /api/classes/:class_id/items.
func (h *Handler) GetClassItems(c *gin.Context) {
	classID, ok := idParam(c, "class_id")
	if !ok {
		return
	}
	if !h.hasClass(classID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}
	c.JSON(http.StatusOK, h.classItems(classID, h.now()))
}

type boardClass struct {
	model.ClassSession
	Items []itemResponse `json:"items"`
}

// GetBoard handles GET /api/board: every class with its ordered items.
func (h *Handler) GetBoard(c *gin.Context) {
	now := h.now()
	classes := h.session.Store.Classes()
	board := make([]boardClass, 0, len(classes))
	for _, cl := range classes {
		board = append(board, boardClass{ClassSession: cl, Items: h.classItems(cl.ID, now)})
	}
	c.JSON(http.StatusOK, gin.H{
		"revision": h.session.Store.Revision(),
		"classes":  board,
	})
}

const connectionsKey = "connections"

// GetConnections handles GET /api/connections, caching the inventory briefly.
func (h *Handler) GetConnections(c *gin.Context) {
	if cached, found := h.cache.Get(connectionsKey); found {
		c.JSON(http.StatusOK, cached)
		return
	}
	records, err := h.session.Backend.Connections(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []model.ConnectionRecord{}
	}
	h.cache.Set(connectionsKey, records, h.ttl)
	c.JSON(http.StatusOK, records)
}

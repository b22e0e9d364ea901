package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"waitboard/internal/backend"
	"waitboard/internal/gate"
	"waitboard/internal/ordering"
	"waitboard/internal/session"
	"waitboard/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	session *session.Session
	db      *gorm.DB
	webpush *webpush.Options
	cache   *cache.Cache
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewHandler creates a new API handler. db may be nil, which disables the
// subscription routes.
func NewHandler(s *session.Session, db *gorm.DB, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := s.Config().Server.CacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Handler{
		session: s,
		db:      db,
		webpush: s.PushOptions(),
		cache:   cache.New(ttl, 2*ttl),
		ttl:     ttl,
		log:     logger.Named("api"),
		now:     time.Now,
	}
}

// statusFor maps action errors onto HTTP codes.
func statusFor(err error) int {
	var upstream *backend.StatusError
	switch {
	case errors.Is(err, gate.ErrBlocked):
		return http.StatusLocked
	case errors.Is(err, ordering.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrItemNotFound), errors.Is(err, store.ErrClassNotFound):
		return http.StatusNotFound
	case errors.Is(err, ordering.ErrInvalidDirection),
		errors.Is(err, ordering.ErrInvalidStatus),
		errors.Is(err, ordering.ErrInvalidPosition),
		errors.Is(err, store.ErrOrderMismatch):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrEmptySeat):
		return http.StatusConflict
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// Package ordering turns staff actions into optimistic store changes plus the
// authoritative backend requests, reconciling from the server on failure.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"waitboard/internal/metrics"
	"waitboard/internal/model"
	"waitboard/internal/notification"
	"waitboard/internal/store"
)

var (
	ErrClosed           = errors.New("controller closed")
	ErrInvalidDirection = errors.New("direction must be prev or next")
	ErrInvalidStatus    = errors.New("status must be called, attended or cancelled")
	ErrInvalidPosition  = errors.New("position must be before or after")
)

// API is the subset of the backend used for mutations.
type API interface {
	Move(ctx context.Context, id int64, dir model.Direction) (model.WaitingItem, error)
	SetStatus(ctx context.Context, id int64, status model.Status) (model.WaitingItem, error)
	Call(ctx context.Context, id int64) (model.WaitingItem, error)
	Reorder(ctx context.Context, classID int64, orderedIDs []int64) error
	InsertEmpty(ctx context.Context, id int64, pos model.SeatPosition) (model.WaitingItem, error)
}

// Checker is consulted before every action.
type Checker interface {
	Check() error
}

// Announcer receives one announcement per call action.
type Announcer interface {
	Dispatch(a notification.Announcement)
}

// Options configures a Controller.
type Options struct {
	Store     *store.Store
	API       API
	Gate      Checker
	Announcer Announcer
	Logger    *zap.Logger
}

// Controller applies staff actions. Actions on the same item id run one at a
// time in arrival order; actions on different ids run concurrently.
type Controller struct {
	store     *store.Store
	api       API
	gate      Checker
	announcer Announcer
	log       *zap.Logger
	locks     *keyedLock

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// New creates a controller.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:     opts.Store,
		api:       opts.API,
		gate:      opts.Gate,
		announcer: opts.Announcer,
		log:       opts.Logger.Named("ordering"),
		locks:     newKeyedLock(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close stops the controller. Responses that arrive afterwards are ignored
// and no reconciliation is started.
func (c *Controller) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
}

func (c *Controller) check() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.gate != nil {
		return c.gate.Check()
	}
	return nil
}

// mutate runs fn under keys. fn reports whether a request was sent; a failed
// request triggers a notice and a snapshot reconcile.
func (c *Controller) mutate(ctx context.Context, action string, keys []lockKey, fn func() (sent bool, err error)) error {
	if err := c.check(); err != nil {
		return err
	}
	start := time.Now()
	unlock, err := c.locks.LockKeys(ctx, keys...)
	if err != nil {
		return err
	}
	// The gate may have closed while waiting.
	if err := c.check(); err != nil {
		unlock()
		return err
	}
	sent, err := fn()
	unlock()

	if !sent {
		return err
	}
	metrics.Mutations.WithLabelValues(action, metrics.Outcome(err)).Inc()
	metrics.MutationDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		c.reconcile(action, err)
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// reconcile reports a failed request and re-derives state from the server.
func (c *Controller) reconcile(action string, cause error) {
	if c.closed.Load() {
		return
	}
	c.log.Warn("action failed, reloading from server", zap.String("action", action), zap.Error(cause))
	c.store.PostNotice(fmt.Sprintf("%s failed: %v", action, cause))
	if err := c.store.Refresh(c.ctx); err != nil && c.ctx.Err() == nil {
		c.log.Warn("reconcile fetch failed", zap.String("action", action), zap.Error(err))
	}
}

// confirm applies a server response unless the controller was closed.
func (c *Controller) confirm(item model.WaitingItem) {
	if c.closed.Load() || item.ID == 0 {
		return
	}
	c.store.Confirm(item)
}

// Reorder drops itemID at 1-based position within its class. The new order
// is derived from the class list as it stands once the locks are held.
func (c *Controller) Reorder(ctx context.Context, classID, itemID int64, position int) error {
	if itemID <= 0 {
		return fmt.Errorf("%w: %d", store.ErrItemNotFound, itemID)
	}
	keys := append(itemKeys(c.store.OrderedIDs(classID)...), itemKey(itemID), classKey(classID))
	return c.mutate(ctx, "reorder", keys, func() (bool, error) {
		ids := c.store.OrderedIDs(classID)
		idx := slices.Index(ids, itemID)
		if idx < 0 {
			return false, fmt.Errorf("%w: %d in class %d", store.ErrItemNotFound, itemID, classID)
		}
		ids = slices.Delete(ids, idx, idx+1)
		to := min(max(position-1, 0), len(ids))
		return c.reorder(ctx, classID, slices.Insert(ids, to, itemID))
	})
}

// ReorderIDs sets the full order of a class.
func (c *Controller) ReorderIDs(ctx context.Context, classID int64, orderedIDs []int64) error {
	keys := append(itemKeys(orderedIDs...), classKey(classID))
	return c.mutate(ctx, "reorder", keys, func() (bool, error) {
		return c.reorder(ctx, classID, orderedIDs)
	})
}

func (c *Controller) reorder(ctx context.Context, classID int64, orderedIDs []int64) (bool, error) {
	for _, id := range orderedIDs {
		if id <= 0 {
			return false, fmt.Errorf("%w: %d is not confirmed", store.ErrItemNotFound, id)
		}
	}
	before := c.store.OrderedIDs(classID)
	if err := c.store.ReorderClass(classID, orderedIDs); err != nil {
		return false, err
	}
	if slices.Equal(before, orderedIDs) {
		return false, nil
	}
	if err := c.api.Reorder(ctx, classID, orderedIDs); err != nil {
		return true, err
	}
	if !c.closed.Load() {
		c.store.Settle(orderedIDs...)
	}
	return true, nil
}

// Move shifts an item to the previous or next class, appending it there. At
// the first or last class it does nothing and reports moved=false.
func (c *Controller) Move(ctx context.Context, id int64, dir model.Direction) (moved bool, err error) {
	if dir.Step() == 0 {
		return false, ErrInvalidDirection
	}
	if id <= 0 {
		return false, fmt.Errorf("%w: %d", store.ErrItemNotFound, id)
	}
	err = c.mutate(ctx, "move", itemKeys(id), func() (bool, error) {
		item, ok := c.store.Item(id)
		if !ok {
			return false, fmt.Errorf("%w: %d", store.ErrItemNotFound, id)
		}
		target, ok := c.store.AdjacentClass(item.ClassID, dir.Step())
		if !ok {
			return false, nil
		}
		if _, err := c.store.MoveItem(id, target); err != nil {
			return false, err
		}
		moved = true
		resp, err := c.api.Move(ctx, id, dir)
		if err != nil {
			return true, err
		}
		c.confirm(resp)
		return true, nil
	})
	return moved, err
}

// Call records a call on an item and announces it once.
func (c *Controller) Call(ctx context.Context, id int64) (model.WaitingItem, error) {
	if id <= 0 {
		return model.WaitingItem{}, fmt.Errorf("%w: %d", store.ErrItemNotFound, id)
	}
	var result model.WaitingItem
	err := c.mutate(ctx, "call", itemKeys(id), func() (bool, error) {
		item, err := c.store.MarkCalled(id)
		if err != nil {
			return false, err
		}
		result = item
		c.announce(item)

		resp, err := c.api.Call(ctx, id)
		if err != nil {
			return true, err
		}
		if resp.ID != 0 {
			result = resp
		}
		c.confirm(resp)
		return true, nil
	})
	return result, err
}

func (c *Controller) announce(item model.WaitingItem) {
	if c.announcer == nil {
		return
	}
	a := notification.Announcement{
		StoreID:  c.store.Runtime().StoreID,
		Item:     item,
		CalledAt: time.Now(),
	}
	for _, cl := range c.store.Classes() {
		if cl.ID == item.ClassID {
			a.ClassName = cl.ClassName
			break
		}
	}
	c.announcer.Dispatch(a)
}

// SetStatus advances an item's status. Backward moves are rejected before any
// request is sent.
func (c *Controller) SetStatus(ctx context.Context, id int64, status model.Status) (model.WaitingItem, error) {
	switch status {
	case model.StatusCalled, model.StatusAttended, model.StatusCancelled:
	default:
		return model.WaitingItem{}, ErrInvalidStatus
	}
	if id <= 0 {
		return model.WaitingItem{}, fmt.Errorf("%w: %d", store.ErrItemNotFound, id)
	}
	var result model.WaitingItem
	err := c.mutate(ctx, "status", itemKeys(id), func() (bool, error) {
		item, err := c.store.SetStatus(id, status)
		if err != nil {
			return false, err
		}
		result = item
		resp, err := c.api.SetStatus(ctx, id, status)
		if err != nil {
			return true, err
		}
		if resp.ID != 0 {
			result = resp
		}
		c.confirm(resp)
		return true, nil
	})
	return result, err
}

// InsertEmptySeat puts an empty seat before or after anchorID.
func (c *Controller) InsertEmptySeat(ctx context.Context, anchorID int64, pos model.SeatPosition) (model.WaitingItem, error) {
	if pos != model.SeatBefore && pos != model.SeatAfter {
		return model.WaitingItem{}, ErrInvalidPosition
	}
	if anchorID <= 0 {
		return model.WaitingItem{}, fmt.Errorf("%w: %d", store.ErrItemNotFound, anchorID)
	}
	// Hold the class so a reorder waits for the placeholder to be replaced.
	keys := itemKeys(anchorID)
	if anchor, ok := c.store.Item(anchorID); ok {
		keys = append(keys, classKey(anchor.ClassID))
	}
	var result model.WaitingItem
	err := c.mutate(ctx, "insert_empty", keys, func() (bool, error) {
		placeholder, err := c.store.InsertPlaceholder(anchorID, pos == model.SeatAfter)
		if err != nil {
			return false, err
		}
		result = placeholder
		created, err := c.api.InsertEmpty(ctx, anchorID, pos)
		if err != nil {
			return true, err
		}
		if !c.closed.Load() {
			c.store.ReplacePlaceholder(placeholder.ID, created)
			result = created
		}
		return true, nil
	})
	return result, err
}

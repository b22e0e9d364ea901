package store

import (
	"context"
	"errors"
	"time"

	"waitboard/internal/model"
)

var (
	ErrItemNotFound      = errors.New("waiting item not found")
	ErrClassNotFound     = errors.New("class not found")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrEmptySeat         = errors.New("operation not allowed on an empty seat")
	ErrOrderMismatch     = errors.New("ordered ids do not match the class members")
	ErrInconsistent      = errors.New("class counts do not match active items")
	ErrNoLoader          = errors.New("store has no loader configured")
)

// Loader fetches authoritative state from the backend.
type Loader interface {
	StoreStatus(ctx context.Context) (model.StoreStatus, error)
	StoreSettings(ctx context.Context) (model.StoreSettings, error)
	Classes(ctx context.Context) ([]model.ClassSession, error)
	WaitingItems(ctx context.Context) ([]model.WaitingItem, error)
}

// StoreScoped is implemented by loaders whose requests carry a store id.
// SetStoreID forwards the new id to them.
type StoreScoped interface {
	SetStoreID(storeID string)
}

// ChangeKind says what part of the state a Change touched.
type ChangeKind string

const (
	ChangeSnapshot     ChangeKind = "snapshot"
	ChangeItems        ChangeKind = "items"
	ChangeClasses      ChangeKind = "classes"
	ChangeRuntime      ChangeKind = "runtime"
	ChangeConnectivity ChangeKind = "connectivity"
	ChangeBlocked      ChangeKind = "blocked"
	ChangeNotice       ChangeKind = "notice"
)

// Change is published to subscribers after every state transition.
type Change struct {
	Revision uint64     `json:"revision"`
	Kind     ChangeKind `json:"kind"`
	ClassIDs []int64    `json:"class_ids,omitempty"`
	Notice   string     `json:"notice,omitempty"`
}

// BlockState is set once the server tells this session to stop operating.
type BlockState struct {
	Reason    string     `json:"reason"`
	Role      model.Role `json:"role,omitempty"`
	Closed    bool       `json:"closed"`
	BlockedAt time.Time  `json:"blocked_at"`
}

// Runtime is the per-screen-session state.
type Runtime struct {
	SessionID    string              `json:"session_id"`
	StoreID      string              `json:"store_id"`
	BusinessDate string              `json:"business_date"`
	IsOpen       bool                `json:"is_open"`
	Settings     model.StoreSettings `json:"store_settings"`
	Connected    bool                `json:"is_connected"`
	Block        *BlockState         `json:"connection_block_state"`
	// Stale is true while the only data shown came from the local cache.
	Stale bool `json:"stale"`
}

// ItemView is an item plus its optimistic marker.
type ItemView struct {
	model.WaitingItem
	Tentative bool `json:"tentative"`
}

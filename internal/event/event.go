// Package event defines the typed server-push events consumed by the queue
// store and decodes them from stream payloads.
package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"waitboard/internal/model"
)

// Type is the wire name of an event.
type Type string

const (
	TypeItemAdded         Type = "item-added"
	TypeItemUpdated       Type = "item-updated"
	TypeItemRemoved       Type = "item-removed"
	TypeClassUpdated      Type = "class-updated"
	TypeConnectionBlocked Type = "connection-blocked"
	TypeConnectionClosed  Type = "connection-closed"
	TypeRefresh           Type = "refresh"
)

// Stream event names that carry the {event, data} wrapper.
const (
	WrapperUpdate  = "update"
	WrapperLog     = "log"
	WrapperMessage = "message"
)

// ErrMalformed is returned for payloads that cannot be decoded.
var ErrMalformed = errors.New("malformed event payload")

// Event is implemented by every concrete event below.
type Event interface {
	Type() Type
}

// ItemAdded carries a newly registered item.
type ItemAdded struct {
	Item model.WaitingItem
}

// ItemUpdated carries the fields of an item that changed. Fields absent from
// the payload are nil and keep their current value.
type ItemUpdated struct {
	Patch ItemPatch
}

// ItemPatch is a partial WaitingItem.
type ItemPatch struct {
	ID            int64         `json:"id"`
	WaitingNumber *int          `json:"waiting_number"`
	ClassID       *int64        `json:"class_id"`
	ClassOrder    *int          `json:"class_order"`
	DisplayName   *string       `json:"display_name"`
	Phone         *string       `json:"phone"`
	Status        *model.Status `json:"status"`
	IsEmptySeat   *bool         `json:"is_empty_seat"`
	CallCount     *int          `json:"call_count"`
	LastCalledAt  *string       `json:"last_called_at"`
}

// Merge returns base with the present fields applied. Identity fields
// (waiting number, name, phone) are only taken when known is false; an
// existing item keeps the ones it has.
func (p ItemPatch) Merge(base model.WaitingItem, known bool) model.WaitingItem {
	base.ID = p.ID
	if !known {
		if p.WaitingNumber != nil {
			base.WaitingNumber = *p.WaitingNumber
		}
		if p.DisplayName != nil {
			base.DisplayName = *p.DisplayName
		}
		if p.Phone != nil {
			base.Phone = *p.Phone
		}
	}
	if p.ClassID != nil {
		base.ClassID = *p.ClassID
	}
	if p.ClassOrder != nil {
		base.ClassOrder = *p.ClassOrder
	}
	if p.Status != nil {
		base.Status = *p.Status
	}
	if p.IsEmptySeat != nil {
		base.IsEmptySeat = *p.IsEmptySeat
	}
	if p.CallCount != nil {
		base.CallCount = *p.CallCount
	}
	if p.LastCalledAt != nil {
		base.LastCalledAt = *p.LastCalledAt
	}
	return base
}

// ItemRemoved identifies an item that left the active view.
type ItemRemoved struct {
	ID      int64 `json:"id"`
	ClassID int64 `json:"class_id"`
}

// ClassUpdated carries the current state of a class.
type ClassUpdated struct {
	Class model.ClassSession
}

// ConnectionBlocked tells a session to stop operating. Closed distinguishes
// connection-closed from connection-blocked; both latch the same way.
type ConnectionBlocked struct {
	SessionID string     `json:"session_id"`
	Role      model.Role `json:"role"`
	Reason    string     `json:"reason"`
	Closed    bool       `json:"-"`
}

// Refresh asks the client to re-fetch a full snapshot.
type Refresh struct{}

// Unknown is any event type this client does not understand.
type Unknown struct {
	Name string
	Data json.RawMessage
}

func (ItemAdded) Type() Type    { return TypeItemAdded }
func (ItemUpdated) Type() Type  { return TypeItemUpdated }
func (ItemRemoved) Type() Type  { return TypeItemRemoved }
func (ClassUpdated) Type() Type { return TypeClassUpdated }
func (Refresh) Type() Type      { return TypeRefresh }
func (u Unknown) Type() Type    { return Type(u.Name) }

func (c ConnectionBlocked) Type() Type {
	if c.Closed {
		return TypeConnectionClosed
	}
	return TypeConnectionBlocked
}

// Targets reports whether the event names sessionID. An empty session id
// addresses every session.
func (c ConnectionBlocked) Targets(sessionID string) bool {
	return c.SessionID == "" || c.SessionID == sessionID
}

type wrapper struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode turns one stream message into an Event. name is the stream-level
// event name; wrapper names carry {event, data} in data, any other name is the
// event type itself.
func Decode(name string, data []byte) (Event, error) {
	switch name {
	case WrapperUpdate, WrapperLog, WrapperMessage, "":
		var w wrapper
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if w.Event == "" {
			return nil, fmt.Errorf("%w: missing event name", ErrMalformed)
		}
		return decodeTyped(Type(w.Event), w.Data)
	default:
		return decodeTyped(Type(name), data)
	}
}

func decodeTyped(t Type, data json.RawMessage) (Event, error) {
	switch t {
	case TypeItemAdded:
		var item model.WaitingItem
		if err := unmarshalItem(data, &item); err != nil {
			return nil, err
		}
		return ItemAdded{Item: item}, nil
	case TypeItemUpdated:
		var patch ItemPatch
		if err := unmarshal(data, &patch); err != nil {
			return nil, err
		}
		if patch.ID == 0 {
			return nil, fmt.Errorf("%w: item without id", ErrMalformed)
		}
		return ItemUpdated{Patch: patch}, nil
	case TypeItemRemoved:
		var ev ItemRemoved
		if err := unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.ID == 0 {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, t)
		}
		return ev, nil
	case TypeClassUpdated:
		var class model.ClassSession
		if err := unmarshal(data, &class); err != nil {
			return nil, err
		}
		if class.ID == 0 {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, t)
		}
		return ClassUpdated{Class: class}, nil
	case TypeConnectionBlocked, TypeConnectionClosed:
		var ev ConnectionBlocked
		if len(data) > 0 && string(data) != "null" {
			if err := unmarshal(data, &ev); err != nil {
				return nil, err
			}
		}
		ev.Closed = t == TypeConnectionClosed
		return ev, nil
	case TypeRefresh:
		return Refresh{}, nil
	default:
		return Unknown{Name: string(t), Data: data}, nil
	}
}

func unmarshalItem(data json.RawMessage, item *model.WaitingItem) error {
	if err := unmarshal(data, item); err != nil {
		return err
	}
	if item.ID == 0 {
		return fmt.Errorf("%w: item without id", ErrMalformed)
	}
	return nil
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty data", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

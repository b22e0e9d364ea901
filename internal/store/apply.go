package store

import (
	"go.uber.org/zap"

	"waitboard/internal/event"
	"waitboard/internal/model"
)

// ApplyFullSnapshot replaces the whole working set. Server truth supersedes
// every optimistic change, so all tentative markers are dropped.
func (s *Store) ApplyFullSnapshot(items []model.WaitingItem, classes []model.ClassSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applySnapshotLocked(items, classes)
	s.runtime.Stale = false
}

func (s *Store) applySnapshotLocked(items []model.WaitingItem, classes []model.ClassSession) {
	s.classes = append([]model.ClassSession(nil), classes...)
	s.rebuildLocked(items)
	s.classesLoaded = true
	if err := s.consistencyLocked(); err != nil {
		s.log.Warn("snapshot inconsistent", zap.Error(err))
	}
	s.publishLocked(Change{Kind: ChangeSnapshot})
}

// ApplyEvent applies one pushed event in arrival order. Unknown events are
// ignored. It reports whether the state changed.
func (s *Store) ApplyEvent(ev event.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case event.ItemAdded:
		return s.upsertLocked(e.Item)
	case event.ItemUpdated:
		return s.patchLocked(e.Patch)
	case event.ItemRemoved:
		item, ok := s.removeLocked(e.ID)
		if !ok {
			return false
		}
		s.publishLocked(Change{Kind: ChangeItems, ClassIDs: []int64{item.ClassID}})
		return true
	case event.ClassUpdated:
		return s.upsertClassLocked(e.Class)
	case event.ConnectionBlocked:
		if !e.Targets(s.runtime.SessionID) {
			return false
		}
		if !s.latchBlockLocked(BlockState{Reason: e.Reason, Role: e.Role, Closed: e.Closed, BlockedAt: s.now()}) {
			return false
		}
		s.log.Warn("session blocked by server", zap.String("reason", e.Reason), zap.Bool("closed", e.Closed))
		s.publishLocked(Change{Kind: ChangeBlocked})
		return true
	case event.Refresh, event.Unknown:
		return false
	default:
		s.log.Debug("ignoring event", zap.String("type", string(ev.Type())))
		return false
	}
}

// Confirm applies a server response for one item, clearing its tentative
// marker.
func (s *Store) Confirm(item model.WaitingItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(item)
}

func (s *Store) upsertLocked(item model.WaitingItem) bool {
	if item.ID == 0 {
		return false
	}
	if !item.Status.Active() {
		prev, ok := s.removeLocked(item.ID)
		if !ok {
			return false
		}
		s.publishLocked(Change{Kind: ChangeItems, ClassIDs: []int64{prev.ClassID}})
		return true
	}
	touched := s.placeLocked(item, item.ClassOrder, false)
	s.publishLocked(Change{Kind: ChangeItems, ClassIDs: touched})
	return true
}

// patchLocked merges a partial update into the known item. An item seen for
// the first time is only placed when the patch names its class.
func (s *Store) patchLocked(p event.ItemPatch) bool {
	prev, known := s.items[p.ID]
	if !known {
		if p.ClassID == nil || *p.ClassID == 0 {
			s.log.Warn("update for unknown item without class", zap.Int64("item_id", p.ID))
			return false
		}
		return s.upsertLocked(p.Merge(model.WaitingItem{}, false))
	}
	item := p.Merge(prev.item, true)
	if p.ClassOrder == nil && item.ClassID != prev.item.ClassID {
		item.ClassOrder = 0
	}
	return s.upsertLocked(item)
}

func (s *Store) upsertClassLocked(class model.ClassSession) bool {
	if idx := s.classIndexLocked(class.ID); idx >= 0 {
		s.classes[idx] = class
	} else {
		s.classes = append(s.classes, class)
	}
	s.publishLocked(Change{Kind: ChangeClasses, ClassIDs: []int64{class.ID}})
	return true
}

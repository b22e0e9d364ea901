package store

import (
	"fmt"

	"waitboard/internal/model"
)

// SelectByClass returns the items of a class ordered by class_order.
func (s *Store) SelectByClass(classID int64) []model.WaitingItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[classID]
	out := make([]model.WaitingItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id].item)
	}
	return out
}

// SelectViews is SelectByClass with tentative markers.
func (s *Store) SelectViews(classID int64) []ItemView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[classID]
	out := make([]ItemView, 0, len(ids))
	for _, id := range ids {
		e := s.items[id]
		out = append(out, ItemView{WaitingItem: e.item, Tentative: e.tentative})
	}
	return out
}

// OrderedIDs returns the item ids of a class in display order.
func (s *Store) OrderedIDs(classID int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.order[classID]...)
}

// Item looks up one item.
func (s *Store) Item(id int64) (model.WaitingItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return model.WaitingItem{}, false
	}
	return e.item, true
}

// Classes returns the classes in server order.
func (s *Store) Classes() []model.ClassSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ClassSession(nil), s.classes...)
}

// AdjacentClass returns the class before (step -1) or after (step +1)
// classID. ok is false at the boundary or for an unknown class.
func (s *Store) AdjacentClass(classID int64, step int) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.classIndexLocked(classID)
	if idx < 0 {
		return 0, false
	}
	next := idx + step
	if next < 0 || next >= len(s.classes) {
		return 0, false
	}
	return s.classes[next].ID, true
}

// ActiveCount returns the number of non-cancelled items across known classes.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeCountLocked()
}

func (s *Store) activeCountLocked() int {
	n := 0
	for _, c := range s.classes {
		for _, id := range s.order[c.ID] {
			if s.items[id].item.Status.Active() {
				n++
			}
		}
	}
	return n
}

// CheckConsistency compares the sum of class counts with the active items.
// A mismatch means an event was missed; the next snapshot resolves it.
func (s *Store) CheckConsistency() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consistencyLocked()
}

func (s *Store) consistencyLocked() error {
	total := 0
	for _, c := range s.classes {
		total += c.CurrentCount
	}
	if active := s.activeCountLocked(); total != active {
		return fmt.Errorf("%w: counts sum to %d, %d active items", ErrInconsistent, total, active)
	}
	return nil
}

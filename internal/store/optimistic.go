package store

import (
	"fmt"

	"waitboard/internal/model"
	"waitboard/internal/parse"
)

// The methods in this file apply tentative local changes ahead of server
// confirmation. A later event, Confirm or snapshot settles them.

// ReorderClass sets the order of a class to orderedIDs, which must list
// exactly the current members.
func (s *Store) ReorderClass(classID int64, orderedIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.order[classID]
	if len(current) != len(orderedIDs) {
		return fmt.Errorf("%w: class %d has %d items, got %d", ErrOrderMismatch, classID, len(current), len(orderedIDs))
	}
	members := make(map[int64]bool, len(current))
	for _, id := range current {
		members[id] = true
	}
	for _, id := range orderedIDs {
		if !members[id] {
			return fmt.Errorf("%w: item %d", ErrOrderMismatch, id)
		}
		delete(members, id)
	}

	changed := false
	for i, id := range orderedIDs {
		if current[i] != id {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	s.order[classID] = append([]int64(nil), orderedIDs...)
	for _, id := range orderedIDs {
		s.items[id].tentative = true
	}
	s.renumberLocked(classID)
	s.publishLocked(Change{Kind: ChangeItems, ClassIDs: []int64{classID}})
	return nil
}

// MoveItem moves an item to the end of another class.
func (s *Store) MoveItem(id, toClassID int64) (model.WaitingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return model.WaitingItem{}, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	if s.classIndexLocked(toClassID) < 0 {
		return model.WaitingItem{}, fmt.Errorf("%w: %d", ErrClassNotFound, toClassID)
	}
	if e.item.ClassID == toClassID {
		return e.item, nil
	}

	item := e.item
	item.ClassID = toClassID
	touched := s.placeLocked(item, 0, true)
	s.publishLocked(Change{Kind: ChangeItems, ClassIDs: touched})
	return s.items[id].item, nil
}

// MarkCalled records one call on an item.
func (s *Store) MarkCalled(id int64) (model.WaitingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return model.WaitingItem{}, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	if e.item.IsEmptySeat {
		return model.WaitingItem{}, ErrEmptySeat
	}
	e.item.CallCount++
	e.item.LastCalledAt = parse.FormatTimestamp(s.now())
	e.tentative = true
	s.publishLocked(Change{Kind: ChangeItems, ClassIDs: []int64{e.item.ClassID}})
	return e.item, nil
}

func (s *Store) checkStatusLocked(id int64, status model.Status) (model.WaitingItem, error) {
	e, ok := s.items[id]
	if !ok {
		return model.WaitingItem{}, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	if e.item.IsEmptySeat && status != model.StatusCancelled {
		return model.WaitingItem{}, ErrEmptySeat
	}
	if !e.item.Status.CanAdvanceTo(status) {
		return model.WaitingItem{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.item.Status, status)
	}
	return e.item, nil
}

// SetStatus advances an item's status. Cancelled items leave the view.
func (s *Store) SetStatus(id int64, status model.Status) (model.WaitingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.checkStatusLocked(id, status)
	if err != nil {
		return model.WaitingItem{}, err
	}
	item.Status = status
	if !status.Active() {
		s.removeLocked(id)
	} else {
		e := s.items[id]
		e.item.Status = status
		e.tentative = true
		s.recountLocked(item.ClassID)
	}
	s.publishLocked(Change{Kind: ChangeItems, ClassIDs: []int64{item.ClassID}})
	return item, nil
}

// InsertPlaceholder puts a tentative empty seat right before or after
// anchorID. The placeholder carries a negative temporary id until
// ReplacePlaceholder swaps in the server's item.
func (s *Store) InsertPlaceholder(anchorID int64, after bool) (model.WaitingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor, ok := s.items[anchorID]
	if !ok {
		return model.WaitingItem{}, fmt.Errorf("%w: %d", ErrItemNotFound, anchorID)
	}
	pos := anchor.item.ClassOrder
	if after {
		pos++
	}
	placeholder := model.WaitingItem{
		ID:          s.nextTempID,
		ClassID:     anchor.item.ClassID,
		Status:      model.StatusWaiting,
		IsEmptySeat: true,
	}
	s.nextTempID--

	touched := s.placeLocked(placeholder, pos, true)
	s.publishLocked(Change{Kind: ChangeItems, ClassIDs: touched})
	return s.items[placeholder.ID].item, nil
}

// ReplacePlaceholder swaps a temporary placeholder for the created item.
func (s *Store) ReplacePlaceholder(tempID int64, created model.WaitingItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := created.ClassOrder
	if e, ok := s.items[tempID]; ok {
		if pos == 0 {
			pos = e.item.ClassOrder
		}
		s.removeLocked(tempID)
	}
	if created.ID == 0 {
		s.publishLocked(Change{Kind: ChangeItems, ClassIDs: []int64{created.ClassID}})
		return
	}
	touched := s.placeLocked(created, pos, false)
	s.publishLocked(Change{Kind: ChangeItems, ClassIDs: touched})
}

// Tentative reports whether an item carries unconfirmed local changes.
func (s *Store) Tentative(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	return ok && e.tentative
}

// TentativeCount returns the number of items with unconfirmed changes.
func (s *Store) TentativeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.items {
		if e.tentative {
			n++
		}
	}
	return n
}

// Settle clears the tentative marker of ids after the server acknowledged a
// change without returning the items.
func (s *Store) Settle(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var touched []int64
	seen := make(map[int64]bool)
	for _, id := range ids {
		e, ok := s.items[id]
		if !ok || !e.tentative {
			continue
		}
		e.tentative = false
		if !seen[e.item.ClassID] {
			seen[e.item.ClassID] = true
			touched = append(touched, e.item.ClassID)
		}
	}
	if len(touched) > 0 {
		s.publishLocked(Change{Kind: ChangeItems, ClassIDs: touched})
	}
}

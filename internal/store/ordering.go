package store

import (
	"sort"

	"go.uber.org/zap"

	"waitboard/internal/model"
)

// Helpers in this file require s.mu held for writing.

// removeLocked drops id from its class list and the item map.
func (s *Store) removeLocked(id int64) (model.WaitingItem, bool) {
	e, ok := s.items[id]
	if !ok {
		return model.WaitingItem{}, false
	}
	s.detachLocked(id, e.item.ClassID)
	delete(s.items, id)
	s.renumberLocked(e.item.ClassID)
	s.recountLocked(e.item.ClassID)
	return e.item, true
}

func (s *Store) detachLocked(id, classID int64) {
	ids := s.order[classID]
	for i, v := range ids {
		if v == id {
			s.order[classID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.order[classID]) == 0 {
		delete(s.order, classID)
	}
}

// placeLocked stores item and puts it at 1-based position pos in its class,
// shifting later items down. Out-of-range positions are clamped. Any previous
// placement of the same id, in whatever class, is removed first.
func (s *Store) placeLocked(item model.WaitingItem, pos int, tentative bool) []int64 {
	if s.classesLoaded && s.classIndexLocked(item.ClassID) < 0 {
		s.log.Warn("item placed in unknown class", zap.Int64("item_id", item.ID), zap.Int64("class_id", item.ClassID))
	}
	touched := []int64{item.ClassID}
	if prev, ok := s.items[item.ID]; ok {
		s.detachLocked(item.ID, prev.item.ClassID)
		if prev.item.ClassID != item.ClassID {
			touched = append(touched, prev.item.ClassID)
		}
	}

	ids := s.order[item.ClassID]
	idx := pos - 1
	if idx < 0 || idx > len(ids) {
		idx = len(ids)
	}
	ids = append(ids, 0)
	copy(ids[idx+1:], ids[idx:])
	ids[idx] = item.ID
	s.order[item.ClassID] = ids

	s.items[item.ID] = &entry{item: item, tentative: tentative}
	for _, classID := range touched {
		s.renumberLocked(classID)
		s.recountLocked(classID)
	}
	return touched
}

// renumberLocked rewrites class_order as 1..N following the list order.
func (s *Store) renumberLocked(classID int64) {
	for i, id := range s.order[classID] {
		if e, ok := s.items[id]; ok {
			e.item.ClassOrder = i + 1
		}
	}
}

// recountLocked derives current_count from the active items of a class.
func (s *Store) recountLocked(classID int64) {
	idx := s.classIndexLocked(classID)
	if idx < 0 {
		return
	}
	n := 0
	for _, id := range s.order[classID] {
		if e, ok := s.items[id]; ok && e.item.Status.Active() {
			n++
		}
	}
	s.classes[idx].CurrentCount = n
}

func (s *Store) classIndexLocked(classID int64) int {
	for i, c := range s.classes {
		if c.ID == classID {
			return i
		}
	}
	return -1
}

// rebuildLocked replaces the working set, ordering each class by class_order
// and then id.
func (s *Store) rebuildLocked(items []model.WaitingItem) {
	s.items = make(map[int64]*entry, len(items))
	s.order = make(map[int64][]int64)

	sorted := make([]model.WaitingItem, 0, len(items))
	for _, it := range items {
		if it.ID == 0 || !it.Status.Active() {
			continue
		}
		sorted = append(sorted, it)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ClassOrder != sorted[j].ClassOrder {
			return sorted[i].ClassOrder < sorted[j].ClassOrder
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, it := range sorted {
		if _, dup := s.items[it.ID]; dup {
			continue
		}
		s.items[it.ID] = &entry{item: it}
		s.order[it.ClassID] = append(s.order[it.ClassID], it.ID)
	}
	for classID := range s.order {
		s.renumberLocked(classID)
	}
}

package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"waitboard/internal/model"
)

// SetStoreID switches the store being displayed. A different id drops the
// working set so the next load starts from scratch, and is passed on to a
// StoreScoped loader.
func (s *Store) SetStoreID(storeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runtime.StoreID == storeID {
		return
	}
	if scoped, ok := s.loader.(StoreScoped); ok {
		scoped.SetStoreID(storeID)
	}
	s.runtime.StoreID = storeID
	s.runtime.BusinessDate = ""
	s.runtime.Stale = false
	s.items = make(map[int64]*entry)
	s.order = make(map[int64][]int64)
	s.classes = nil
	s.statusLoaded, s.classesLoaded = false, false
	s.publishLocked(Change{Kind: ChangeSnapshot})
}

func (s *Store) beginLoad() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *Store) endLoad() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

// FetchStoreStatus loads business date, open flag and store settings.
func (s *Store) FetchStoreStatus(ctx context.Context) error {
	if s.loader == nil {
		return ErrNoLoader
	}
	s.beginLoad()
	defer s.endLoad()

	status, settings, err := s.fetchStatus(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.applyStatusLocked(status, settings)
	s.mu.Unlock()
	return nil
}

func (s *Store) fetchStatus(ctx context.Context) (model.StoreStatus, model.StoreSettings, error) {
	var (
		status   model.StoreStatus
		settings model.StoreSettings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if status, err = s.loader.StoreStatus(gctx); err != nil {
			return fmt.Errorf("fetch store status: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if settings, err = s.loader.StoreSettings(gctx); err != nil {
			return fmt.Errorf("fetch store settings: %w", err)
		}
		return nil
	})
	err := g.Wait()
	return status, settings, err
}

func (s *Store) applyStatusLocked(status model.StoreStatus, settings model.StoreSettings) {
	s.runtime.BusinessDate = status.BusinessDate
	s.runtime.IsOpen = status.IsOpen
	s.runtime.Settings = settings
	s.statusLoaded = true
	s.publishLocked(Change{Kind: ChangeRuntime})
}

// FetchClasses reloads the class list only.
func (s *Store) FetchClasses(ctx context.Context) error {
	if s.loader == nil {
		return ErrNoLoader
	}
	s.beginLoad()
	defer s.endLoad()

	classes, err := s.loader.Classes(ctx)
	if err != nil {
		return fmt.Errorf("fetch classes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes = append([]model.ClassSession(nil), classes...)
	s.classesLoaded = true
	if err := s.consistencyLocked(); err != nil {
		s.log.Warn("classes inconsistent with items", zap.Error(err))
	}
	s.publishLocked(Change{Kind: ChangeClasses})
	return nil
}

// Refresh fetches a full snapshot (status, settings, classes, active items)
// and applies it. The snapshot is persisted when a cache is configured.
func (s *Store) Refresh(ctx context.Context) error {
	if s.loader == nil {
		return ErrNoLoader
	}
	s.beginLoad()
	defer s.endLoad()
	storeID := s.Runtime().StoreID

	var (
		status   model.StoreStatus
		settings model.StoreSettings
		classes  []model.ClassSession
		items    []model.WaitingItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		status, settings, err = s.fetchStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		if classes, err = s.loader.Classes(gctx); err != nil {
			return fmt.Errorf("fetch classes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if items, err = s.loader.WaitingItems(gctx); err != nil {
			return fmt.Errorf("fetch waiting items: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.runtime.StoreID != storeID {
		s.mu.Unlock()
		s.log.Debug("discarding snapshot for previous store", zap.String("store_id", storeID))
		return nil
	}
	s.applyStatusLocked(status, settings)
	s.applySnapshotLocked(items, classes)
	s.runtime.Stale = false
	s.mu.Unlock()

	if s.cache != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.cache.SaveSnapshot(saveCtx, storeID, items, classes); err != nil {
			s.log.Warn("failed to persist snapshot", zap.String("store_id", storeID), zap.Error(err))
		}
	}
	return nil
}

// LoadCached shows the last persisted snapshot until the first fetch
// completes. It does nothing once live data is present.
func (s *Store) LoadCached(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	storeID := s.Runtime().StoreID
	items, classes, err := s.cache.LoadSnapshot(ctx, storeID)
	if err != nil {
		return fmt.Errorf("load cached snapshot: %w", err)
	}
	if len(classes) == 0 && len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classesLoaded || s.runtime.StoreID != storeID {
		return nil
	}
	s.applySnapshotLocked(items, classes)
	// Cached data must not count as the first load.
	s.classesLoaded = false
	s.runtime.Stale = true
	return nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"waitboard/internal/model"
)

// SnapshotCache persists the last applied snapshot per store.
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, storeID string, items []model.WaitingItem, classes []model.ClassSession) error
	LoadSnapshot(ctx context.Context, storeID string) ([]model.WaitingItem, []model.ClassSession, error)
}

// gormCache implements SnapshotCache using GORM.
type gormCache struct {
	db *gorm.DB
}

// NewGormCache creates a GORM-backed snapshot cache.
func NewGormCache(db *gorm.DB) SnapshotCache {
	return &gormCache{db: db}
}

// SaveSnapshot replaces the cached rows of a store transactionally.
func (c *gormCache) SaveSnapshot(ctx context.Context, storeID string, items []model.WaitingItem, classes []model.ClassSession) error {
	now := time.Now().UTC()

	itemRows := make([]model.CachedItem, 0, len(items))
	for _, it := range items {
		if !it.Status.Active() || it.ID <= 0 {
			continue
		}
		itemRows = append(itemRows, model.CachedItem{
			StoreID:       storeID,
			ID:            it.ID,
			WaitingNumber: it.WaitingNumber,
			ClassID:       it.ClassID,
			ClassOrder:    it.ClassOrder,
			DisplayName:   it.DisplayName,
			Phone:         it.Phone,
			Status:        string(it.Status),
			IsEmptySeat:   it.IsEmptySeat,
			CallCount:     it.CallCount,
			LastCalledAt:  it.LastCalledAt,
			SavedAt:       now,
		})
	}

	classRows := make([]model.CachedClass, 0, len(classes))
	for i, cl := range classes {
		classRows = append(classRows, model.CachedClass{
			StoreID:      storeID,
			ID:           cl.ID,
			Position:     i,
			ClassName:    cl.ClassName,
			CurrentCount: cl.CurrentCount,
			IsClosed:     cl.IsClosed,
			SavedAt:      now,
		})
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("store_id = ?", storeID).Delete(&model.CachedItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cached items for store %s: %w", storeID, err)
		}
		if err := tx.Where("store_id = ?", storeID).Delete(&model.CachedClass{}).Error; err != nil {
			return fmt.Errorf("failed to clear cached classes for store %s: %w", storeID, err)
		}
		if len(itemRows) > 0 {
			if err := tx.Create(&itemRows).Error; err != nil {
				return fmt.Errorf("failed to cache %d items for store %s: %w", len(itemRows), storeID, err)
			}
		}
		if len(classRows) > 0 {
			if err := tx.Create(&classRows).Error; err != nil {
				return fmt.Errorf("failed to cache %d classes for store %s: %w", len(classRows), storeID, err)
			}
		}
		return nil
	})
}

// LoadSnapshot returns the cached rows of a store in display order.
func (c *gormCache) LoadSnapshot(ctx context.Context, storeID string) ([]model.WaitingItem, []model.ClassSession, error) {
	var itemRows []model.CachedItem
	if err := c.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("class_id, class_order").
		Find(&itemRows).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to read cached items: %w", err)
	}

	var classRows []model.CachedClass
	if err := c.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("position").
		Find(&classRows).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to read cached classes: %w", err)
	}

	items := make([]model.WaitingItem, len(itemRows))
	for i, r := range itemRows {
		items[i] = r.ToItem()
	}
	classes := make([]model.ClassSession, len(classRows))
	for i, r := range classRows {
		classes[i] = r.ToClass()
	}
	return items, classes, nil
}

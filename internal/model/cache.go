package model

import "time"

// CachedItem is a persisted copy of a WaitingItem from the last snapshot.
type CachedItem struct {
	StoreID       string    `gorm:"primaryKey;size:64"`
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	WaitingNumber int       `gorm:"not null"`
	ClassID       int64     `gorm:"index;not null"`
	ClassOrder    int       `gorm:"not null"`
	DisplayName   string    `gorm:"size:128"`
	Phone         string    `gorm:"size:32"`
	Status        string    `gorm:"size:16;not null"`
	IsEmptySeat   bool
	CallCount     int
	LastCalledAt  string    `gorm:"size:64"`
	SavedAt       time.Time `gorm:"not null"`
}

// CachedClass is a persisted copy of a ClassSession from the last snapshot.
type CachedClass struct {
	StoreID      string    `gorm:"primaryKey;size:64"`
	ID           int64     `gorm:"primaryKey;autoIncrement:false"`
	Position     int       `gorm:"not null"`
	ClassName    string    `gorm:"size:128;not null"`
	CurrentCount int
	IsClosed     bool
	SavedAt      time.Time `gorm:"not null"`
}

// ToItem converts the row back into a WaitingItem.
func (c CachedItem) ToItem() WaitingItem {
	return WaitingItem{
		ID:            c.ID,
		WaitingNumber: c.WaitingNumber,
		ClassID:       c.ClassID,
		ClassOrder:    c.ClassOrder,
		DisplayName:   c.DisplayName,
		Phone:         c.Phone,
		Status:        Status(c.Status),
		IsEmptySeat:   c.IsEmptySeat,
		CallCount:     c.CallCount,
		LastCalledAt:  c.LastCalledAt,
	}
}

// ToClass converts the row back into a ClassSession.
func (c CachedClass) ToClass() ClassSession {
	return ClassSession{
		ID:           c.ID,
		ClassName:    c.ClassName,
		CurrentCount: c.CurrentCount,
		IsClosed:     c.IsClosed,
	}
}

// PushSubscription holds a browser push subscription that wants call
// announcements for a store.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	StoreID   string    `gorm:"index;size:64;not null"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	// WaitingID limits announcements to one queue entry; zero means every call.
	WaitingID int64     `gorm:"index"`
	CreatedAt time.Time `gorm:"not null"`
}

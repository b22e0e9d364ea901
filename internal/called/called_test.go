package called

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"waitboard/internal/model"
)

const naiveLayout = "2006-01-02 15:04:05"

func TestIsCalled(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, seoul)

	testCases := []struct {
		name           string
		callCount      int
		lastCalledAt   string
		displaySeconds int
		expected       bool
	}{
		{
			name:           "Called 30s ago with 60s window",
			callCount:      1,
			lastCalledAt:   now.Add(-30 * time.Second).Format(naiveLayout),
			displaySeconds: 60,
			expected:       true,
		},
		{
			name:           "Called 30s ago with 20s window",
			callCount:      1,
			lastCalledAt:   now.Add(-30 * time.Second).Format(naiveLayout),
			displaySeconds: 20,
			expected:       false,
		},
		{
			name:           "Never called",
			callCount:      0,
			lastCalledAt:   now.Add(-5 * time.Second).Format(naiveLayout),
			displaySeconds: 60,
			expected:       false,
		},
		{
			name:           "Missing timestamp",
			callCount:      2,
			displaySeconds: 60,
			expected:       false,
		},
		{
			name:           "Unparseable timestamp",
			callCount:      1,
			lastCalledAt:   "soon",
			displaySeconds: 60,
			expected:       false,
		},
		{
			name:           "Slightly in the future is tolerated",
			callCount:      1,
			lastCalledAt:   now.Add(5 * time.Second).Format(naiveLayout),
			displaySeconds: 60,
			expected:       true,
		},
		{
			name:           "Too far in the future",
			callCount:      1,
			lastCalledAt:   now.Add(10 * time.Second).Format(naiveLayout),
			displaySeconds: 60,
			expected:       false,
		},
		{
			name:           "Zero window uses the default",
			callCount:      1,
			lastCalledAt:   now.Add(-45 * time.Second).Format(naiveLayout),
			displaySeconds: 0,
			expected:       true,
		},
		{
			name:           "UTC read as local is corrected",
			callCount:      1,
			lastCalledAt:   now.UTC().Add(-5 * time.Second).Format(naiveLayout),
			displaySeconds: 60,
			expected:       true,
		},
		{
			name:           "Old UTC timestamp stays expired after correction",
			callCount:      1,
			lastCalledAt:   now.UTC().Add(-5 * time.Minute).Format(naiveLayout),
			displaySeconds: 60,
			expected:       false,
		},
		{
			name:           "Zone-qualified timestamp is never reinterpreted",
			callCount:      1,
			lastCalledAt:   now.Add(-9*time.Hour - 5*time.Second).Format(time.RFC3339),
			displaySeconds: 60,
			expected:       false,
		},
		{
			name:           "Zone-qualified recent timestamp",
			callCount:      1,
			lastCalledAt:   now.UTC().Add(-5 * time.Second).Format(time.RFC3339),
			displaySeconds: 60,
			expected:       true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsCalled(tc.callCount, tc.lastCalledAt, tc.displaySeconds, now, seoul)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestWindow_IsCalled(t *testing.T) {
	now := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	w := Window{DisplaySeconds: 20, Location: time.UTC}

	item := model.WaitingItem{CallCount: 1, LastCalledAt: now.Add(-10 * time.Second).Format(time.RFC3339)}
	assert.True(t, w.IsCalled(item, now))
	assert.False(t, w.IsCalled(item, now.Add(15*time.Second)))
}

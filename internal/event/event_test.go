package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waitboard/internal/model"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		name     string
		sseName  string
		data     string
		expected Event
	}{
		{
			name:    "Wrapped item-added",
			sseName: WrapperUpdate,
			data:    `{"event":"item-added","data":{"id":42,"waiting_number":7,"class_id":1,"class_order":3,"status":"waiting"}}`,
			expected: ItemAdded{Item: model.WaitingItem{
				ID: 42, WaitingNumber: 7, ClassID: 1, ClassOrder: 3, Status: model.StatusWaiting,
			}},
		},
		{
			name:     "Partial item-updated keeps absent fields nil",
			sseName:  WrapperUpdate,
			data:     `{"event":"item-updated","data":{"id":42,"status":"called","call_count":2}}`,
			expected: ItemUpdated{Patch: ItemPatch{ID: 42, Status: ptr(model.StatusCalled), CallCount: ptr(2)}},
		},
		{
			name:     "Wrapped under log",
			sseName:  WrapperLog,
			data:     `{"event":"item-removed","data":{"id":42,"class_id":1}}`,
			expected: ItemRemoved{ID: 42, ClassID: 1},
		},
		{
			name:     "Unnamed message carries the wrapper",
			sseName:  "",
			data:     `{"event":"refresh"}`,
			expected: Refresh{},
		},
		{
			name:     "Named class event",
			sseName:  "class-updated",
			data:     `{"id":3,"class_name":"10:00","current_count":4,"is_closed":true}`,
			expected: ClassUpdated{Class: model.ClassSession{ID: 3, ClassName: "10:00", CurrentCount: 4, IsClosed: true}},
		},
		{
			name:     "Named connection-blocked",
			sseName:  "connection-blocked",
			data:     `{"session_id":"abc","role":"board","reason":"duplicate board"}`,
			expected: ConnectionBlocked{SessionID: "abc", Role: model.RoleBoard, Reason: "duplicate board"},
		},
		{
			name:     "Wrapped connection-closed without data",
			sseName:  WrapperUpdate,
			data:     `{"event":"connection-closed"}`,
			expected: ConnectionBlocked{Closed: true},
		},
		{
			name:     "Unknown type is kept for forward compatibility",
			sseName:  WrapperUpdate,
			data:     `{"event":"member-points","data":{"x":1}}`,
			expected: Unknown{Name: "member-points", Data: []byte(`{"x":1}`)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode(tc.sseName, []byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ev)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	testCases := []struct {
		name    string
		sseName string
		data    string
	}{
		{"Not JSON", WrapperUpdate, `{"event":`},
		{"Missing event name", WrapperUpdate, `{"data":{}}`},
		{"Item without id", WrapperUpdate, `{"event":"item-updated","data":{"class_id":1}}`},
		{"Removed without data", WrapperUpdate, `{"event":"item-removed"}`},
		{"Class with wrong type", "class-updated", `{"id":"three"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.sseName, []byte(tc.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestItemPatch_Merge(t *testing.T) {
	base := model.WaitingItem{ID: 42, WaitingNumber: 3, ClassID: 1, ClassOrder: 2, DisplayName: "Lee", Status: model.StatusWaiting}
	patch := ItemPatch{ID: 42, WaitingNumber: ptr(0), Status: ptr(model.StatusCalled), CallCount: ptr(1)}

	merged := patch.Merge(base, true)
	assert.Equal(t, 3, merged.WaitingNumber)
	assert.Equal(t, "Lee", merged.DisplayName)
	assert.Equal(t, int64(1), merged.ClassID)
	assert.Equal(t, 2, merged.ClassOrder)
	assert.Equal(t, model.StatusCalled, merged.Status)
	assert.Equal(t, 1, merged.CallCount)

	fresh := patch.Merge(model.WaitingItem{}, false)
	assert.Equal(t, 0, fresh.WaitingNumber)
	assert.Equal(t, int64(42), fresh.ID)
}

func ptr[T any](v T) *T { return &v }

func TestConnectionBlocked_Targets(t *testing.T) {
	assert.True(t, ConnectionBlocked{}.Targets("s1"))
	assert.True(t, ConnectionBlocked{SessionID: "s1"}.Targets("s1"))
	assert.False(t, ConnectionBlocked{SessionID: "s2"}.Targets("s1"))
	assert.Equal(t, TypeConnectionClosed, ConnectionBlocked{Closed: true}.Type())
}

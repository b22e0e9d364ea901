package gate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waitboard/internal/event"
	"waitboard/internal/model"
	"waitboard/internal/store"
)

func TestGate_Latch(t *testing.T) {
	s := store.New(store.Options{SessionID: "s1"})
	g := New(s)

	assert.NoError(t, g.Check())
	assert.False(t, g.Blocked())

	s.ApplyEvent(event.ConnectionBlocked{SessionID: "s2", Reason: "not me"})
	assert.NoError(t, g.Check())

	s.ApplyEvent(event.ConnectionBlocked{SessionID: "s1", Role: model.RoleAdmin, Reason: "another admin connected", Closed: true})

	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("gate did not close")
	}

	err := g.Check()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked))
	var be *BlockedError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "another admin connected", be.State.Reason)
	assert.True(t, be.State.Closed)
	assert.Contains(t, err.Error(), "another admin connected")

	// Events keep flowing but the gate stays closed.
	s.ApplyEvent(event.ItemRemoved{ID: 1})
	s.ApplyFullSnapshot(nil, nil)
	assert.True(t, g.Blocked())

	s.Reset()
	assert.NoError(t, g.Check())
}

func TestBlockedError_NoReason(t *testing.T) {
	err := &BlockedError{}
	assert.Equal(t, ErrBlocked.Error(), err.Error())
}

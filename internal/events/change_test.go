package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChangeMarshalsRows(t *testing.T) {
	newRow := map[string]string{"id": "c1", "status": "new"}
	oldRow := map[string]string{"id": "c1", "status": "done"}

	change, err := NewChange("conversations", ActionUpdate, newRow, oldRow)
	require.NoError(t, err)

	assert.NotEqual(t, "", change.EventID.String())
	assert.Equal(t, "conversations", change.Table)
	assert.Equal(t, ActionUpdate, change.Action)
	assert.JSONEq(t, `{"id":"c1","status":"new"}`, string(change.New))
	assert.JSONEq(t, `{"id":"c1","status":"done"}`, string(change.Old))
	assert.False(t, change.Timestamp.IsZero())
}

func TestNewChangeRequiresTable(t *testing.T) {
	_, err := NewChange("  ", ActionInsert, nil, nil)
	assert.Error(t, err)
}

func TestNewChangeNilRowsStayEmpty(t *testing.T) {
	change, err := NewChange("leads", ActionDelete, nil, map[string]string{"id": "l1"})
	require.NoError(t, err)
	assert.Nil(t, change.New)
	assert.NotNil(t, change.Old)
}

func TestHubFansOutToAllSubscribers(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := hub.Subscribe(4)
	defer cancel2()

	change, err := NewChange("conversations", ActionInsert, map[string]string{"id": "c1"}, nil)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), change))

	for _, ch := range []<-chan Change{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, change.EventID, got.EventID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the change")
		}
	}
}

func TestHubDropsWhenSubscriberBufferFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	first, err := NewChange("conversations", ActionInsert, nil, nil)
	require.NoError(t, err)
	second, err := NewChange("conversations", ActionInsert, nil, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), first))
	// Buffer is full; this publish must not block.
	require.NoError(t, hub.Publish(context.Background(), second))

	got := <-ch
	assert.Equal(t, first.EventID, got.EventID)
	select {
	case <-ch:
		t.Fatal("second change should have been dropped")
	default:
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe(1)
	assert.Equal(t, 1, hub.SubscriberCount())

	cancel()
	assert.Equal(t, 0, hub.SubscriberCount())
	// Double cancel is safe.
	cancel()
}

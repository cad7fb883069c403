package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventFeed(t *testing.T) {
	w, err := New(&Options{Events: true})
	require.NoError(t, err)

	events := make(chan []Event, 1)
	go func() {
		var got []Event
		for ev := range w.Events() {
			got = append(got, ev)
		}
		events <- got
	}()

	tag, err := w.Tag()
	require.NoError(t, err)
	e, err := w.Spawn()
	require.NoError(t, err)
	_, err = w.Give(e, tag)
	require.NoError(t, err)
	require.NoError(t, w.Remove(e, tag))
	_, err = w.Give(e, tag)
	require.NoError(t, err)
	require.NoError(t, w.Delete(e))
	require.NoError(t, w.Close())

	select {
	case got := <-events:
		require.Equal(t, []Event{
			{Type: EventSpawn, Entity: e, Component: Nil},
			{Type: EventGive, Entity: e, Component: tag},
			{Type: EventRemove, Entity: e, Component: tag},
			{Type: EventGive, Entity: e, Component: tag},
			{Type: EventRemove, Entity: e, Component: tag},
			{Type: EventDelete, Entity: e, Component: Nil},
		}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("event feed was not closed")
	}
}

func TestNoEventFeed(t *testing.T) {
	w := newTestWorld(t, nil)
	require.Nil(t, w.Events())
	_, err := w.Spawn()
	require.NoError(t, err)
}

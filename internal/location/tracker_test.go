package location

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-cart/internal/geo"
	"delivery-cart/internal/logger"
	"delivery-cart/internal/messaging"
)

func TestTracker_UpdateAndCurrent(t *testing.T) {
	tracker := NewTracker()
	assert.Nil(t, tracker.Current())
	_, ok := tracker.Fix()
	assert.False(t, ok)

	tracker.Update(Fix{Point: geo.Point{Lat: 1, Lng: 2}, Address: "1 Main St"})

	require.NotNil(t, tracker.Current())
	assert.Equal(t, geo.Point{Lat: 1, Lng: 2}, *tracker.Current())
	fix, ok := tracker.Fix()
	require.True(t, ok)
	assert.Equal(t, "1 Main St", fix.Address)
}

func TestTracker_CurrentIsACopy(t *testing.T) {
	tracker := NewTracker()
	tracker.Update(Fix{Point: geo.Point{Lat: 1, Lng: 2}})

	p := tracker.Current()
	p.Lat = 50

	assert.Equal(t, 1.0, tracker.Current().Lat)
}

func TestTracker_NotifiesOnMoveOnly(t *testing.T) {
	tracker := NewTracker()

	var seen []*geo.Point
	unsubscribe := tracker.Subscribe(func(p *geo.Point) { seen = append(seen, p) })

	tracker.Update(Fix{Point: geo.Point{Lat: 1, Lng: 2}})
	tracker.Update(Fix{Point: geo.Point{Lat: 1, Lng: 2}, Address: "renamed"})
	tracker.Update(Fix{Point: geo.Point{Lat: 3, Lng: 4}})
	tracker.Clear()
	tracker.Clear()

	require.Len(t, seen, 3)
	assert.Equal(t, geo.Point{Lat: 1, Lng: 2}, *seen[0])
	assert.Equal(t, geo.Point{Lat: 3, Lng: 4}, *seen[1])
	assert.Nil(t, seen[2])

	unsubscribe()
	tracker.Update(Fix{Point: geo.Point{Lat: 5, Lng: 6}})
	assert.Len(t, seen, 3)
}

func TestTracker_SubscribersRunInRegistrationOrder(t *testing.T) {
	tracker := NewTracker()

	var order []int
	for i := 0; i < 5; i++ {
		n := i
		tracker.Subscribe(func(*geo.Point) { order = append(order, n) })
	}

	tracker.Update(Fix{Point: geo.Point{Lat: 1, Lng: 1}})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFeed_Handle(t *testing.T) {
	tracker := NewTracker()
	feed := NewFeed(tracker, logger.Discard())
	ctx := context.Background()

	require.NoError(t, feed.Handle(ctx, []byte(`{"latitude": 40.7, "longitude": -74.0, "address": "Broadway"}`)))
	fix, ok := tracker.Fix()
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lat: 40.7, Lng: -74.0}, fix.Point)
	assert.Equal(t, "Broadway", fix.Address)

	require.NoError(t, feed.Handle(ctx, []byte(`{"latitude": null, "longitude": null}`)))
	assert.Nil(t, tracker.Current())
}

func TestFeed_HandleRejectsPoison(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "lat=1"},
		{name: "half a coordinate", body: `{"latitude": 1}`},
		{name: "latitude out of range", body: `{"latitude": 91, "longitude": 0}`},
		{name: "longitude out of range", body: `{"latitude": 0, "longitude": -181}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker()
			err := NewFeed(tracker, logger.Discard()).Handle(context.Background(), []byte(tt.body))
			assert.True(t, errors.Is(err, messaging.ErrPoison), "got %v", err)
			assert.Nil(t, tracker.Current())
		})
	}
}

func TestNewMessage_RoundTrip(t *testing.T) {
	fix := Fix{Point: geo.Point{Lat: -33.86, Lng: 151.2}, Address: "Sydney"}
	got, ok, err := NewMessage(fix).Fix()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fix, got)
}

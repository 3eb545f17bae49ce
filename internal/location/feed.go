package location

import (
	"context"
	"encoding/json"
	"fmt"

	"delivery-cart/internal/geo"
	"delivery-cart/internal/logger"
	"delivery-cart/internal/messaging"
)

// Message is a location update on the wire. Both coordinates null clears the position.
type Message struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address,omitempty"`
}

// NewMessage builds a message for a fix
func NewMessage(fix Fix) Message {
	lat, lng := fix.Point.Lat, fix.Point.Lng
	return Message{Latitude: &lat, Longitude: &lng, Address: fix.Address}
}

// Fix validates the message and converts it to a fix. ok is false for a clear message.
func (m Message) Fix() (fix Fix, ok bool, err error) {
	if m.Latitude == nil && m.Longitude == nil {
		return Fix{}, false, nil
	}
	if m.Latitude == nil || m.Longitude == nil {
		return Fix{}, false, fmt.Errorf("latitude and longitude must be set together")
	}
	if *m.Latitude < -90 || *m.Latitude > 90 {
		return Fix{}, false, fmt.Errorf("latitude %v out of range", *m.Latitude)
	}
	if *m.Longitude < -180 || *m.Longitude > 180 {
		return Fix{}, false, fmt.Errorf("longitude %v out of range", *m.Longitude)
	}
	return Fix{Point: geo.Point{Lat: *m.Latitude, Lng: *m.Longitude}, Address: m.Address}, true, nil
}

// Feed applies location messages from the broker to a tracker
type Feed struct {
	tracker *Tracker
	logger  *logger.Logger
}

// NewFeed creates a feed updating tracker
func NewFeed(tracker *Tracker, log *logger.Logger) *Feed {
	return &Feed{tracker: tracker, logger: log}
}

// Run consumes from consumer until ctx is cancelled
func (f *Feed) Run(ctx context.Context, consumer *messaging.Consumer) error {
	return consumer.StartConsuming(ctx, f.Handle)
}

// Handle applies one message body. Malformed messages are reported as poison so they are not requeued.
func (f *Feed) Handle(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: failed to parse location message: %v", messaging.ErrPoison, err)
	}

	fix, ok, err := msg.Fix()
	if err != nil {
		return fmt.Errorf("%w: %v", messaging.ErrPoison, err)
	}

	if !ok {
		f.tracker.Clear()
		f.logger.Debug("location_cleared", "User location cleared", "", nil)
		return nil
	}

	f.tracker.Update(fix)
	f.logger.Debug("location_updated", "User location updated", "", map[string]interface{}{
		"lat":     fix.Point.Lat,
		"lng":     fix.Point.Lng,
		"address": fix.Address,
	})
	return nil
}

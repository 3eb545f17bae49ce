package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"delivery-cart/internal/models"
)

// SchemaVersion is written into every snapshot
const SchemaVersion = 1

// ErrUnsupportedVersion is returned when a snapshot was written by a newer schema
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Snapshot is the persisted envelope around a cart
type Snapshot struct {
	Version int         `json:"version"`
	SavedAt time.Time   `json:"savedAt"`
	Cart    models.Cart `json:"cart"`
}

type envelope struct {
	Version *int            `json:"version"`
	Cart    json.RawMessage `json:"cart"`
}

// Encode serializes a cart into a versioned snapshot. The loading flag is never persisted as true.
func Encode(cart models.Cart, savedAt time.Time) ([]byte, error) {
	cart.IsLoading = false

	data, err := json.Marshal(Snapshot{
		Version: SchemaVersion,
		SavedAt: savedAt.UTC(),
		Cart:    cart,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cart snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot. Payloads without a version field are read as a bare cart object,
// the layout used before snapshots were versioned.
func Decode(data []byte) (models.Cart, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.Cart{}, fmt.Errorf("failed to parse cart snapshot: %w", err)
	}

	payload := data
	if env.Version != nil {
		switch {
		case *env.Version > SchemaVersion:
			return models.Cart{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *env.Version)
		case *env.Version < 1:
			return models.Cart{}, fmt.Errorf("invalid snapshot version: %d", *env.Version)
		}
		if len(env.Cart) == 0 {
			return models.Cart{}, fmt.Errorf("snapshot version %d has no cart", *env.Version)
		}
		payload = env.Cart
	}

	var cart models.Cart
	if err := json.Unmarshal(payload, &cart); err != nil {
		return models.Cart{}, fmt.Errorf("failed to parse cart: %w", err)
	}
	cart.IsLoading = false
	return cart, nil
}

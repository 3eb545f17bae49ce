package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-cart/internal/geo"
	"delivery-cart/internal/models"
)

func sampleCart() models.Cart {
	return models.Cart{
		RestaurantID:       "r-1",
		RestaurantName:     "Roma",
		RestaurantImage:    "https://img.example/roma.png",
		RestaurantLocation: &geo.Point{Lat: 40.7128, Lng: -74.006},
		Items: []models.LineItem{
			{ID: "pizza", Name: "Margherita", Price: 12.5, Quantity: 2, Options: map[string]string{"size": "large"}},
			{ID: "soda", Price: 2, Quantity: 1, SpecialInstructions: "no ice"},
		},
		Subtotal:         27,
		Tax:              2.16,
		DeliveryFee:      4,
		Total:            33.16,
		EstimatedTime:    35,
		BaseDeliveryTime: 25,
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	carts := []models.Cart{
		{},
		sampleCart(),
		{RestaurantID: "r-2", RestaurantName: "Bistro", DeliveryFee: 2.5, Total: 2.5, EstimatedTime: 25},
	}

	for _, cart := range carts {
		data, err := Encode(cart, time.Now())
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		assert.True(t, cart.Equal(got), "round trip of %+v gave %+v", cart, got)
	}
}

func TestSnapshot_NeverPersistsLoading(t *testing.T) {
	cart := sampleCart()
	cart.IsLoading = true

	data, err := Encode(cart, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"isLoading":true`)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.False(t, got.IsLoading)
}

func TestSnapshot_WritesVersion(t *testing.T) {
	data, err := Encode(sampleCart(), time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	assert.Contains(t, string(data), `"version":1`)
	assert.Contains(t, string(data), `"savedAt":"2026-01-02T03:04:05Z"`)
}

func TestDecode_LegacyBareCart(t *testing.T) {
	legacy := `{
		"restaurantId": "r-1",
		"restaurantName": "Roma",
		"restaurantImage": null,
		"restaurantLocation": {"lat": 1.5, "lng": 2.5},
		"items": [{"id": "x", "price": 10, "quantity": 1, "options": {}, "specialInstructions": ""}],
		"subtotal": 10,
		"tax": 0.8,
		"deliveryFee": 2.5,
		"total": 13.3,
		"estimatedTime": 25,
		"isLoading": true
	}`

	got, err := Decode([]byte(legacy))
	require.NoError(t, err)

	assert.Equal(t, "r-1", got.RestaurantID)
	assert.Equal(t, &geo.Point{Lat: 1.5, Lng: 2.5}, got.RestaurantLocation)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 13.3, got.Total)
	assert.False(t, got.IsLoading)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{broken"},
		{name: "wrong shape", data: `["a"]`},
		{name: "zero version", data: `{"version":0,"cart":{}}`},
		{name: "missing cart", data: `{"version":1}`},
		{name: "bad cart", data: `{"version":1,"cart":{"items":"nope"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDecode_NewerVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version":2,"cart":{}}`))
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
}

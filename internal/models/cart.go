package models

import (
	"encoding/json"
	"maps"
	"slices"

	"delivery-cart/internal/geo"
)

// LineItem is one product with its chosen options inside a cart
type LineItem struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name,omitempty"`
	Image               string            `json:"image,omitempty"`
	Price               float64           `json:"price"`
	Quantity            int               `json:"quantity"`
	Options             map[string]string `json:"options,omitempty"`
	SpecialInstructions string            `json:"specialInstructions,omitempty"`
}

// Restaurant is the subset of a restaurant record the cart needs
type Restaurant struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Image                 string     `json:"image,omitempty"`
	Location              *geo.Point `json:"location,omitempty"`
	EstimatedDeliveryTime int        `json:"estimatedDeliveryTime,omitempty"`
}

// Cart is the persisted cart aggregate. An empty RestaurantID means no restaurant owns the cart.
type Cart struct {
	RestaurantID       string     `json:"restaurantId"`
	RestaurantName     string     `json:"restaurantName"`
	RestaurantImage    string     `json:"restaurantImage"`
	RestaurantLocation *geo.Point `json:"restaurantLocation"`
	Items              []LineItem `json:"items"`
	Subtotal           float64    `json:"subtotal"`
	Tax                float64    `json:"tax"`
	DeliveryFee        float64    `json:"deliveryFee"`
	Total              float64    `json:"total"`
	EstimatedTime      int        `json:"estimatedTime"`
	BaseDeliveryTime   int        `json:"baseDeliveryTime,omitempty"`
	IsLoading          bool       `json:"isLoading"`
}

type cartFields Cart

// CartJSON is the wire form of Cart. An unowned cart has a null restaurantId and items is never null.
type CartJSON struct {
	cartFields
	RestaurantID *string    `json:"restaurantId"`
	Items        []LineItem `json:"items"`
}

// JSON returns the wire form of c
func (c Cart) JSON() CartJSON {
	out := CartJSON{cartFields: cartFields(c), Items: c.Items}
	if c.RestaurantID != "" {
		id := c.RestaurantID
		out.RestaurantID = &id
	}
	if out.Items == nil {
		out.Items = []LineItem{}
	}
	return out
}

// MarshalJSON encodes c in its wire form
func (c Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.JSON())
}

// IsEmpty reports whether no restaurant owns the cart
func (c Cart) IsEmpty() bool {
	return c.RestaurantID == ""
}

// IsActive reports whether the cart is owned by a restaurant and holds at least one item
func (c Cart) IsActive() bool {
	return c.RestaurantID != "" && len(c.Items) > 0
}

// ItemCount returns the number of units across all line items
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Clone returns a deep copy that shares no slices or maps with c
func (c Cart) Clone() Cart {
	out := c
	if c.RestaurantLocation != nil {
		loc := *c.RestaurantLocation
		out.RestaurantLocation = &loc
	}
	if c.Items != nil {
		out.Items = make([]LineItem, len(c.Items))
		for i, item := range c.Items {
			out.Items[i] = item.Clone()
		}
	}
	return out
}

// Equal compares two carts field by field. Nil and empty collections are equal.
func (c Cart) Equal(o Cart) bool {
	if c.RestaurantID != o.RestaurantID ||
		c.RestaurantName != o.RestaurantName ||
		c.RestaurantImage != o.RestaurantImage ||
		c.Subtotal != o.Subtotal ||
		c.Tax != o.Tax ||
		c.DeliveryFee != o.DeliveryFee ||
		c.Total != o.Total ||
		c.EstimatedTime != o.EstimatedTime ||
		c.BaseDeliveryTime != o.BaseDeliveryTime ||
		c.IsLoading != o.IsLoading {
		return false
	}
	if (c.RestaurantLocation == nil) != (o.RestaurantLocation == nil) {
		return false
	}
	if c.RestaurantLocation != nil && *c.RestaurantLocation != *o.RestaurantLocation {
		return false
	}
	return slices.EqualFunc(c.Items, o.Items, LineItem.Equal)
}

// Clone returns a copy with its own options map
func (i LineItem) Clone() LineItem {
	out := i
	if i.Options != nil {
		out.Options = maps.Clone(i.Options)
	}
	return out
}

// Equal compares two line items field by field
func (i LineItem) Equal(o LineItem) bool {
	return i.ID == o.ID &&
		i.Name == o.Name &&
		i.Image == o.Image &&
		i.Price == o.Price &&
		i.Quantity == o.Quantity &&
		i.SpecialInstructions == o.SpecialInstructions &&
		maps.Equal(i.Options, o.Options)
}

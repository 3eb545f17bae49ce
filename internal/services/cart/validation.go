package cart

import (
	"fmt"

	"delivery-cart/internal/geo"
	"delivery-cart/internal/models"
)

const maxNameLength = 100

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ValidateAddItemRequest(req *AddItemRequest) error {
	if err := validateItem(req.Item); err != nil {
		return err
	}
	return validateRestaurant(req.Restaurant)
}

func ValidateLineRequest(req *LineRequest, requireQuantity bool) error {
	if req.ID == "" {
		return ValidationError{Field: "id", Message: "item id is required"}
	}
	if !requireQuantity {
		return nil
	}
	if req.Quantity == nil {
		return ValidationError{Field: "quantity", Message: "quantity is required"}
	}
	if *req.Quantity < 0 || *req.Quantity > 99 {
		return ValidationError{Field: "quantity", Message: "quantity must be between 0 and 99"}
	}
	return nil
}

func validateItem(item models.LineItem) error {
	if item.ID == "" {
		return ValidationError{Field: "item.id", Message: "item id is required"}
	}
	if len(item.Name) > maxNameLength {
		return ValidationError{
			Field:   "item.name",
			Message: fmt.Sprintf("item name must be less than %d characters", maxNameLength),
		}
	}
	if item.Price < 0 {
		return ValidationError{Field: "item.price", Message: "price cannot be negative"}
	}
	if item.Quantity < 0 || item.Quantity > 99 {
		return ValidationError{Field: "item.quantity", Message: "quantity must be between 0 and 99"}
	}
	for k := range item.Options {
		if k == "" {
			return ValidationError{Field: "item.options", Message: "option names cannot be empty"}
		}
	}
	return nil
}

func validateRestaurant(r models.Restaurant) error {
	if r.ID == "" {
		return ValidationError{Field: "restaurant.id", Message: "restaurant id is required"}
	}
	if r.Name == "" {
		return ValidationError{Field: "restaurant.name", Message: "restaurant name is required"}
	}
	if r.EstimatedDeliveryTime < 0 {
		return ValidationError{Field: "restaurant.estimatedDeliveryTime", Message: "delivery time cannot be negative"}
	}
	if r.Location != nil && !validPoint(*r.Location) {
		return ValidationError{Field: "restaurant.location", Message: "coordinates out of range"}
	}
	return nil
}

func validPoint(p geo.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

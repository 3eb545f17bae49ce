package cart

import (
	"slices"

	"delivery-cart/internal/geo"
	"delivery-cart/internal/models"
	"delivery-cart/internal/pricing"
)

// Action is a cart state transition request
type Action interface {
	Type() string
}

// LoadCart replaces the state with a previously persisted snapshot
type LoadCart struct {
	Snapshot models.Cart
}

// AddItem merges an item into the cart, or inserts it when no line shares its identity
type AddItem struct {
	Item         models.LineItem
	Restaurant   models.Restaurant
	UserLocation *geo.Point
}

// UpdateQuantity sets the quantity of a line; zero or less removes it
type UpdateQuantity struct {
	Key      LineKey
	Quantity int
}

// RemoveItem drops a line from the cart
type RemoveItem struct {
	Key LineKey
}

// ClearCart resets the cart to empty
type ClearCart struct{}

// SetRestaurant empties the cart and binds it to a restaurant before any item is added
type SetRestaurant struct {
	Restaurant   models.Restaurant
	UserLocation *geo.Point
}

// UpdateDeliveryFee reprices delivery for a new user location without touching items
type UpdateDeliveryFee struct {
	UserLocation *geo.Point
}

func (LoadCart) Type() string          { return "LOAD_CART" }
func (AddItem) Type() string           { return "ADD_ITEM" }
func (UpdateQuantity) Type() string    { return "UPDATE_QUANTITY" }
func (RemoveItem) Type() string        { return "REMOVE_ITEM" }
func (ClearCart) Type() string         { return "CLEAR_CART" }
func (SetRestaurant) Type() string     { return "SET_RESTAURANT" }
func (UpdateDeliveryFee) Type() string { return "UPDATE_DELIVERY_FEE" }

// Initial returns the state a cart starts in before its snapshot has been loaded
func Initial() models.Cart {
	return models.Cart{IsLoading: true}
}

// Reduce returns the state that follows applying action to state. It never mutates
// state and never fails: actions whose preconditions do not hold return state unchanged.
func Reduce(state models.Cart, action Action) models.Cart {
	switch a := action.(type) {
	case LoadCart:
		next := a.Snapshot.Clone()
		next.IsLoading = false
		return next
	case AddItem:
		return addItem(state, a)
	case UpdateQuantity:
		return updateQuantity(state, a)
	case RemoveItem:
		return removeItem(state, a.Key)
	case ClearCart:
		return emptied(state)
	case SetRestaurant:
		return setRestaurant(state, a)
	case UpdateDeliveryFee:
		return updateDeliveryFee(state, a)
	default:
		return state
	}
}

func addItem(state models.Cart, a AddItem) models.Cart {
	if a.Restaurant.ID == "" {
		return state
	}
	// a cart holding another restaurant's items is never merged into;
	// callers check HasConflictingRestaurant and clear first
	if state.IsActive() && state.RestaurantID != a.Restaurant.ID {
		return state
	}

	var items []models.LineItem
	if state.RestaurantID == a.Restaurant.ID {
		items = cloneItems(state.Items)
	}

	quantity := a.Item.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	key := KeyOf(a.Item)
	if i := indexOf(items, key); i >= 0 {
		items[i].Quantity += quantity
	} else {
		item := a.Item.Clone()
		item.Quantity = quantity
		items = append(items, item)
	}

	next := bound(state, a.Restaurant)
	next.Items = items
	next.EstimatedTime = pricing.DeliveryTime(a.Restaurant.Location, a.UserLocation, a.Restaurant.EstimatedDeliveryTime)
	return withTotals(next, pricing.DeliveryFee(a.Restaurant.Location, a.UserLocation))
}

func updateQuantity(state models.Cart, a UpdateQuantity) models.Cart {
	i := indexOf(state.Items, a.Key)
	if i < 0 {
		return state
	}
	if a.Quantity <= 0 {
		return removeItem(state, a.Key)
	}

	next := state.Clone()
	next.Items[i].Quantity = a.Quantity
	return withTotals(next, state.DeliveryFee)
}

func removeItem(state models.Cart, key LineKey) models.Cart {
	i := indexOf(state.Items, key)
	if i < 0 {
		return state
	}
	if len(state.Items) == 1 {
		return emptied(state)
	}

	next := state.Clone()
	next.Items = slices.Delete(next.Items, i, i+1)
	return withTotals(next, state.DeliveryFee)
}

func setRestaurant(state models.Cart, a SetRestaurant) models.Cart {
	if a.Restaurant.ID == "" {
		return emptied(state)
	}

	next := bound(state, a.Restaurant)
	next.EstimatedTime = pricing.DeliveryTime(a.Restaurant.Location, a.UserLocation, a.Restaurant.EstimatedDeliveryTime)
	return withTotals(next, pricing.DeliveryFee(a.Restaurant.Location, a.UserLocation))
}

func updateDeliveryFee(state models.Cart, a UpdateDeliveryFee) models.Cart {
	if state.IsEmpty() {
		return state
	}

	next := state.Clone()
	next.EstimatedTime = pricing.DeliveryTime(state.RestaurantLocation, a.UserLocation, state.BaseDeliveryTime)
	return withTotals(next, pricing.DeliveryFee(state.RestaurantLocation, a.UserLocation))
}

// emptied returns the empty aggregate, keeping only the loading flag
func emptied(state models.Cart) models.Cart {
	return models.Cart{IsLoading: state.IsLoading}
}

// bound returns an empty cart owned by restaurant
func bound(state models.Cart, restaurant models.Restaurant) models.Cart {
	next := emptied(state)
	next.RestaurantID = restaurant.ID
	next.RestaurantName = restaurant.Name
	next.RestaurantImage = restaurant.Image
	next.BaseDeliveryTime = restaurant.EstimatedDeliveryTime
	if restaurant.Location != nil {
		loc := *restaurant.Location
		next.RestaurantLocation = &loc
	}
	return next
}

func withTotals(c models.Cart, deliveryFee float64) models.Cart {
	totals := pricing.AggregateTotals(c.Items, deliveryFee)
	c.Subtotal = totals.Subtotal
	c.Tax = totals.Tax
	c.DeliveryFee = totals.DeliveryFee
	c.Total = totals.Total
	return c
}

func indexOf(items []models.LineItem, key LineKey) int {
	return slices.IndexFunc(items, func(item models.LineItem) bool {
		return KeyOf(item) == key
	})
}

func cloneItems(items []models.LineItem) []models.LineItem {
	if items == nil {
		return nil
	}
	out := make([]models.LineItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

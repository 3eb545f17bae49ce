package cart

import (
	"context"
	"errors"
	"sync"

	"delivery-cart/internal/geo"
	"delivery-cart/internal/logger"
	"delivery-cart/internal/models"
	"delivery-cart/internal/persistence"
)

// ErrAlreadyStarted is returned by Start when the controller has already loaded its snapshot
var ErrAlreadyStarted = errors.New("cart controller already started")

// LocationSource supplies the user's current position and reports when it moves
type LocationSource interface {
	Current() *geo.Point
	Subscribe(fn func(*geo.Point)) (unsubscribe func())
}

// Change describes a state transition that altered the cart
type Change struct {
	Action string      `json:"action"`
	Cart   models.Cart `json:"cart"`
}

// Controller owns the cart state for one session. Every mutation goes through Reduce
// with the user location read at dispatch time.
type Controller struct {
	location LocationSource
	loader   *persistence.Loader
	saver    *persistence.Saver
	logger   *logger.Logger

	// dispatchMu orders dispatches and listener calls; mu guards state for readers
	dispatchMu sync.Mutex
	mu         sync.Mutex
	state      models.Cart
	started    bool
	listeners  map[int]func(Change)
	nextID     int

	unsubscribeLocation func()
}

// NewController creates a controller in the loading state. Call Start to read the persisted cart.
func NewController(loc LocationSource, loader *persistence.Loader, saver *persistence.Saver, log *logger.Logger) *Controller {
	return &Controller{
		location:  loc,
		loader:    loader,
		saver:     saver,
		logger:    log,
		state:     Initial(),
		listeners: make(map[int]func(Change)),
	}
}

// Start seeds the state from storage and begins repricing on location changes.
// A missing or unreadable snapshot leaves the cart empty.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	snapshot, found := c.loader.Load(ctx)
	state := c.dispatch(LoadCart{Snapshot: snapshot})

	c.logger.Info("cart_initialized", "Cart state initialized", "", map[string]interface{}{
		"restored":      found,
		"restaurant_id": state.RestaurantID,
		"items":         len(state.Items),
	})

	c.unsubscribeLocation = c.location.Subscribe(c.onLocationChange)
	c.reprice()
	return nil
}

// AddItem adds item from restaurant, merging it with an existing line of the same identity.
// A cart holding another restaurant's items is left unchanged; check HasConflictingRestaurant first.
func (c *Controller) AddItem(item models.LineItem, restaurant models.Restaurant) models.Cart {
	return c.dispatchAt(func(loc *geo.Point) Action {
		return AddItem{Item: item, Restaurant: restaurant, UserLocation: loc}
	})
}

// UpdateQuantity sets the quantity of the line identified by key; zero or less removes it
func (c *Controller) UpdateQuantity(key LineKey, quantity int) models.Cart {
	return c.dispatch(UpdateQuantity{Key: key, Quantity: quantity})
}

// RemoveItem drops the line identified by key
func (c *Controller) RemoveItem(key LineKey) models.Cart {
	return c.dispatch(RemoveItem{Key: key})
}

// ClearCart empties the cart
func (c *Controller) ClearCart() models.Cart {
	return c.dispatch(ClearCart{})
}

// SwitchRestaurant discards the current cart and binds it to restaurant
func (c *Controller) SwitchRestaurant(restaurant models.Restaurant) models.Cart {
	return c.dispatchAt(func(loc *geo.Point) Action {
		return SetRestaurant{Restaurant: restaurant, UserLocation: loc}
	})
}

// HasConflictingRestaurant reports whether adding an item from restaurantID would be refused
// because the cart already holds items from a different restaurant.
func (c *Controller) HasConflictingRestaurant(restaurantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsActive() && c.state.RestaurantID != restaurantID
}

// State returns a copy of the current cart
func (c *Controller) State() models.Cart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Subscribe registers fn for every change to the cart and returns a function that removes it.
// Listeners run in dispatch order and must not call mutating controller methods or Subscribe.
func (c *Controller) Subscribe(fn func(Change)) func() {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.dispatchMu.Lock()
		defer c.dispatchMu.Unlock()
		delete(c.listeners, id)
	}
}

// SavePending reports whether a change is still waiting to be persisted
func (c *Controller) SavePending() bool {
	return c.saver.Pending()
}

// Close stops repricing and writes any pending snapshot
func (c *Controller) Close(ctx context.Context) error {
	if c.unsubscribeLocation != nil {
		c.unsubscribeLocation()
	}

	if c.saver.Pending() {
		c.logger.Info("cart_flushing", "Writing pending cart before shutdown", "", nil)
	}

	if err := c.saver.Flush(ctx); err != nil {
		c.logger.Error("cart_flush_failed", "Failed to persist cart on close", "", err, nil)
		return err
	}
	return nil
}

// onLocationChange rereads the tracker; notifications may arrive out of order
func (c *Controller) onLocationChange(*geo.Point) {
	c.reprice()
}

func (c *Controller) reprice() {
	c.dispatchAt(func(loc *geo.Point) Action {
		// state only changes under dispatchMu
		if !c.state.IsActive() {
			return nil
		}
		return UpdateDeliveryFee{UserLocation: loc}
	})
}

func (c *Controller) dispatch(action Action) models.Cart {
	return c.dispatchAt(func(*geo.Point) Action { return action })
}

// dispatchAt builds the action from the user location read after dispatchMu is held.
// A nil action leaves the cart untouched.
func (c *Controller) dispatchAt(build func(loc *geo.Point) Action) models.Cart {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	action := build(c.location.Current())
	if action == nil {
		return c.State()
	}

	c.mu.Lock()
	next := Reduce(c.state, action)
	changed := !next.Equal(c.state)
	if changed {
		c.state = next
	}
	c.mu.Unlock()

	if !changed {
		return next.Clone()
	}
	c.saver.Schedule(next)

	c.logger.Debug("cart_changed", "Cart state changed", "", map[string]interface{}{
		"action":        action.Type(),
		"restaurant_id": next.RestaurantID,
		"items":         next.ItemCount(),
		"total":         next.Total,
	})

	for _, fn := range c.listenersInOrder() {
		fn(Change{Action: action.Type(), Cart: next.Clone()})
	}
	return next.Clone()
}

func (c *Controller) listenersInOrder() []func(Change) {
	fns := make([]func(Change), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-cart/internal/geo"
	"delivery-cart/internal/location"
	"delivery-cart/internal/logger"
	"delivery-cart/internal/models"
	"delivery-cart/internal/persistence"
)

const testKey = "cart"

type harness struct {
	store      *persistence.MemoryStore
	tracker    *location.Tracker
	controller *Controller
}

func newHarness(t *testing.T, window time.Duration) *harness {
	t.Helper()
	return newHarnessWithStore(t, persistence.NewMemoryStore(), window)
}

func newHarnessWithStore(t *testing.T, store *persistence.MemoryStore, window time.Duration) *harness {
	t.Helper()

	log := logger.Discard()
	tracker := location.NewTracker()
	loader := persistence.NewLoader(store, testKey, time.Second, log)
	saver := persistence.NewSaver(store, testKey, window, time.Second, log)
	t.Cleanup(saver.Close)

	return &harness{
		store:      store,
		tracker:    tracker,
		controller: NewController(tracker, loader, saver, log),
	}
}

func (h *harness) moveTo(p *geo.Point) {
	h.tracker.Update(location.Fix{Point: *p})
}

func (h *harness) persisted(t *testing.T) models.Cart {
	t.Helper()
	data, err := h.store.Get(context.Background(), testKey)
	require.NoError(t, err)
	cart, err := persistence.Decode(data)
	require.NoError(t, err)
	return cart
}

func pizza() models.LineItem {
	return models.LineItem{ID: "x", Name: "Margherita", Price: 10, Quantity: 1}
}

func TestController_StartsLoading(t *testing.T) {
	h := newHarness(t, time.Hour)
	assert.True(t, h.controller.State().IsLoading)

	require.NoError(t, h.controller.Start(context.Background()))
	state := h.controller.State()
	assert.False(t, state.IsLoading)
	assert.True(t, state.IsEmpty())

	assert.ErrorIs(t, h.controller.Start(context.Background()), ErrAlreadyStarted)
}

func TestController_RestoresSnapshot(t *testing.T) {
	store := persistence.NewMemoryStore()
	saved := Reduce(loaded(), AddItem{Item: pizza(), Restaurant: restaurantR()})
	data, err := persistence.Encode(saved, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), testKey, data))

	h := newHarnessWithStore(t, store, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))

	state := h.controller.State()
	assert.Equal(t, "r", state.RestaurantID)
	require.Len(t, state.Items, 1)
	assert.Equal(t, saved.Total, state.Total)
}

func TestController_CorruptSnapshotStartsEmpty(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), testKey, []byte("{not json")))

	h := newHarnessWithStore(t, store, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))

	state := h.controller.State()
	assert.False(t, state.IsLoading)
	assert.True(t, state.IsEmpty())
}

func TestController_AddItemAtFiveKilometers(t *testing.T) {
	h := newHarness(t, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))
	h.moveTo(northOf(origin, 5))

	state := h.controller.AddItem(pizza(), restaurantR())

	assert.Equal(t, 10.0, state.Subtotal)
	assert.Equal(t, 4.0, state.DeliveryFee)
	assert.Equal(t, 0.8, state.Tax)
	assert.Equal(t, 14.8, state.Total)
	assert.Equal(t, 35, state.EstimatedTime)
}

func TestController_HasConflictingRestaurant(t *testing.T) {
	h := newHarness(t, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))

	assert.False(t, h.controller.HasConflictingRestaurant("b"), "empty cart never conflicts")

	h.controller.SwitchRestaurant(restaurantR())
	assert.False(t, h.controller.HasConflictingRestaurant("b"), "a cart without items never conflicts")

	h.controller.AddItem(pizza(), restaurantR())
	assert.False(t, h.controller.HasConflictingRestaurant("r"))
	assert.True(t, h.controller.HasConflictingRestaurant("b"))

	before := h.controller.State()
	after := h.controller.AddItem(models.LineItem{ID: "y", Price: 5, Quantity: 1}, restaurantB())
	assert.True(t, before.Equal(after))

	h.controller.ClearCart()
	assert.False(t, h.controller.HasConflictingRestaurant("b"))
}

func TestController_RepricesOnLocationChange(t *testing.T) {
	h := newHarness(t, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))

	state := h.controller.AddItem(pizza(), restaurantR())
	assert.Equal(t, 2.5, state.DeliveryFee)

	h.moveTo(northOf(origin, 5))
	state = h.controller.State()
	assert.Equal(t, 4.0, state.DeliveryFee)
	assert.Equal(t, 14.8, state.Total)
	require.Len(t, state.Items, 1)
	assert.Equal(t, 1, state.Items[0].Quantity)

	h.tracker.Clear()
	assert.Equal(t, 2.5, h.controller.State().DeliveryFee)
}

func TestController_RepricesWithLatestLocationWhenNotificationsReorder(t *testing.T) {
	h := newHarness(t, time.Hour)

	// the first notification stalls in an earlier subscriber until the second update has finished
	entered := make(chan struct{})
	release := make(chan struct{})
	var stalled atomic.Bool
	h.tracker.Subscribe(func(*geo.Point) {
		if stalled.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	})

	require.NoError(t, h.controller.Start(context.Background()))
	h.controller.AddItem(pizza(), restaurantR())

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.moveTo(northOf(origin, 10))
	}()
	<-entered

	h.moveTo(northOf(origin, 5))
	close(release)
	<-done

	state := h.controller.State()
	assert.Equal(t, 4.0, state.DeliveryFee)
	assert.Equal(t, 35, state.EstimatedTime)
}

func TestController_NoRepricingForInactiveCart(t *testing.T) {
	h := newHarness(t, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))

	var changes []Change
	h.controller.Subscribe(func(c Change) { changes = append(changes, c) })

	h.moveTo(northOf(origin, 5))

	assert.Empty(t, changes)
	assert.True(t, h.controller.State().IsEmpty())
}

func TestController_RepricesRestoredCartOnStart(t *testing.T) {
	store := persistence.NewMemoryStore()
	saved := Reduce(loaded(), AddItem{Item: pizza(), Restaurant: restaurantR()})
	data, err := persistence.Encode(saved, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), testKey, data))

	h := newHarnessWithStore(t, store, time.Hour)
	h.moveTo(northOf(origin, 5))
	require.NoError(t, h.controller.Start(context.Background()))

	assert.Equal(t, 4.0, h.controller.State().DeliveryFee)
}

func TestController_UpdateAndRemove(t *testing.T) {
	h := newHarness(t, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))

	large := models.LineItem{ID: "x", Price: 12, Quantity: 1, Options: map[string]string{"size": "large"}}
	h.controller.AddItem(pizza(), restaurantR())
	h.controller.AddItem(large, restaurantR())

	largeKey := LineKey{ID: "x", Options: OptionsKey(map[string]string{"size": "large"})}
	state := h.controller.UpdateQuantity(largeKey, 3)
	require.Len(t, state.Items, 2)
	assert.Equal(t, 46.0, state.Subtotal)

	state = h.controller.RemoveItem(KeyOf(pizza()))
	require.Len(t, state.Items, 1)
	assert.Equal(t, 36.0, state.Subtotal)

	state = h.controller.UpdateQuantity(largeKey, 0)
	assert.True(t, state.IsEmpty())
}

func TestController_SubscribeReceivesChangesInOrder(t *testing.T) {
	h := newHarness(t, time.Hour)

	var actions []string
	unsubscribe := h.controller.Subscribe(func(c Change) { actions = append(actions, c.Action) })

	require.NoError(t, h.controller.Start(context.Background()))
	h.controller.AddItem(pizza(), restaurantR())
	h.controller.RemoveItem(LineKey{ID: "missing"})
	h.controller.ClearCart()

	assert.Equal(t, []string{"LOAD_CART", "ADD_ITEM", "CLEAR_CART"}, actions)

	unsubscribe()
	h.controller.AddItem(pizza(), restaurantR())
	assert.Len(t, actions, 3)
}

func TestController_DebouncesSaves(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	require.NoError(t, h.controller.Start(context.Background()))

	for i := 0; i < 10; i++ {
		h.controller.AddItem(pizza(), restaurantR())
	}

	require.Eventually(t, func() bool { return h.store.Writes() > 0 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, h.store.Writes())
	assert.Equal(t, 10, h.persisted(t).Items[0].Quantity)
}

func TestController_NothingSavedBeforeLoad(t *testing.T) {
	store := persistence.NewMemoryStore()
	saved := Reduce(loaded(), AddItem{Item: pizza(), Restaurant: restaurantR()})
	data, err := persistence.Encode(saved, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), testKey, data))
	writes := store.Writes()

	h := newHarnessWithStore(t, store, 10*time.Millisecond)
	h.controller.AddItem(pizza(), restaurantB())
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, writes, store.Writes())
	assert.Equal(t, "r", h.persisted(t).RestaurantID)
}

func TestController_CloseFlushesPendingSave(t *testing.T) {
	h := newHarness(t, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))
	h.controller.AddItem(pizza(), restaurantR())

	require.NoError(t, h.controller.Close(context.Background()))

	assert.Equal(t, "r", h.persisted(t).RestaurantID)

	h.moveTo(northOf(origin, 5))
	assert.Equal(t, 2.5, h.controller.State().DeliveryFee)
}

func TestController_ConcurrentDispatch(t *testing.T) {
	h := newHarness(t, time.Hour)
	require.NoError(t, h.controller.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.controller.AddItem(pizza(), restaurantR())
		}()
	}
	wg.Wait()

	state := h.controller.State()
	require.Len(t, state.Items, 1)
	assert.Equal(t, 20, state.Items[0].Quantity)
	assert.Equal(t, 200.0, state.Subtotal)
}

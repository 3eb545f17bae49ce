package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"delivery-cart/internal/logger"
	"delivery-cart/internal/models"
)

var tracer trace.Tracer = otel.Tracer("delivery-cart/internal/persistence")

// Loader reads the persisted cart once at startup
type Loader struct {
	store   Store
	key     string
	timeout time.Duration
	logger  *logger.Logger
}

// NewLoader creates a loader for the snapshot stored under key
func NewLoader(store Store, key string, timeout time.Duration, log *logger.Logger) *Loader {
	return &Loader{
		store:   store,
		key:     key,
		timeout: timeout,
		logger:  log,
	}
}

// Load returns the persisted cart and true, or an empty cart and false when nothing
// usable is stored. Read and parse failures are logged, never returned.
func (l *Loader) Load(ctx context.Context) (models.Cart, bool) {
	ctx, span := tracer.Start(ctx, "cart.load", trace.WithAttributes(attribute.String("cart.key", l.key)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	data, err := l.store.Get(ctx, l.key)
	if errors.Is(err, ErrNotFound) {
		l.logger.Debug("cart_load_empty", "No persisted cart found", "", map[string]interface{}{
			"key": l.key,
		})
		return models.Cart{}, false
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		l.logger.Error("cart_load_failed", "Failed to read persisted cart", "", err, map[string]interface{}{
			"key": l.key,
		})
		return models.Cart{}, false
	}

	cart, err := Decode(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		l.logger.Error("cart_load_failed", "Failed to parse persisted cart", "", err, map[string]interface{}{
			"key":  l.key,
			"size": len(data),
		})
		return models.Cart{}, false
	}

	span.SetAttributes(attribute.Int("cart.items", len(cart.Items)))
	l.logger.Info("cart_loaded", "Loaded persisted cart", "", map[string]interface{}{
		"key":           l.key,
		"restaurant_id": cart.RestaurantID,
		"items":         len(cart.Items),
	})
	return cart, true
}

// Saver writes cart snapshots after a quiet period, keeping only the latest state of a burst.
type Saver struct {
	store     Store
	key       string
	timeout   time.Duration
	debouncer *Debouncer
	logger    *logger.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending *models.Cart

	// serializes writes from the timer and from Flush
	writeMu sync.Mutex
}

// NewSaver creates a saver that writes under key once window has passed without a new change
func NewSaver(store Store, key string, window, timeout time.Duration, log *logger.Logger) *Saver {
	return &Saver{
		store:     store,
		key:       key,
		timeout:   timeout,
		debouncer: NewDebouncer(window),
		logger:    log,
		now:       time.Now,
	}
}

// Schedule queues cart for the next debounced write. Carts still loading are ignored
// so the initial empty state never overwrites a snapshot that has not been read yet.
func (s *Saver) Schedule(cart models.Cart) {
	if cart.IsLoading {
		return
	}

	c := cart.Clone()
	s.mu.Lock()
	s.pending = &c
	s.mu.Unlock()

	s.debouncer.Trigger(s.writePending)
}

// Pending reports whether a write is waiting for its window to elapse
func (s *Saver) Pending() bool {
	return s.debouncer.Pending()
}

// Flush writes the pending cart immediately, if there is one. It waits for a write
// already started by the timer, so the store holds the latest cart when it returns.
func (s *Saver) Flush(ctx context.Context) error {
	s.debouncer.Stop()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cart, ok := s.takePending()
	if !ok {
		return nil
	}
	return s.write(ctx, cart)
}

// Close drops any pending write
func (s *Saver) Close() {
	s.debouncer.Stop()
	s.takePending()
}

// Save writes cart now, bypassing the debounce window
func (s *Saver) Save(ctx context.Context, cart models.Cart) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write(ctx, cart)
}

// write persists cart with writeMu held. An empty cart removes the snapshot.
func (s *Saver) write(ctx context.Context, cart models.Cart) error {
	ctx, span := tracer.Start(ctx, "cart.save", trace.WithAttributes(
		attribute.String("cart.key", s.key),
		attribute.Int("cart.items", len(cart.Items)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if cart.IsEmpty() {
		if err := s.store.Delete(ctx, s.key); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delete failed")
			return fmt.Errorf("failed to delete cart snapshot: %w", err)
		}
		s.logger.Debug("cart_snapshot_deleted", "Removed snapshot of empty cart", "", map[string]interface{}{
			"key": s.key,
		})
		return nil
	}

	data, err := Encode(cart, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return err
	}

	if err := s.store.Set(ctx, s.key, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("failed to write cart snapshot: %w", err)
	}

	s.logger.Debug("cart_saved", "Persisted cart snapshot", "", map[string]interface{}{
		"key":           s.key,
		"restaurant_id": cart.RestaurantID,
		"items":         len(cart.Items),
		"size":          len(data),
	})
	return nil
}

// writePending takes the pending cart only once writeMu is held, so writes land in schedule order
func (s *Saver) writePending() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cart, ok := s.takePending()
	if !ok {
		return
	}

	// the next change retries through its own debounce cycle
	if err := s.write(context.Background(), cart); err != nil {
		s.logger.Error("cart_save_failed", "Failed to persist cart", "", err, map[string]interface{}{
			"key": s.key,
		})
	}
}

func (s *Saver) takePending() (models.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return models.Cart{}, false
	}
	cart := *s.pending
	s.pending = nil
	return cart, true
}

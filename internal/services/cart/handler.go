package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	cartstate "delivery-cart/internal/cart"
	"delivery-cart/internal/location"
	"delivery-cart/internal/logger"
	"delivery-cart/internal/models"
)

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) bool
}

// AddItemRequest is the body of POST /cart/items. Replace clears a cart owned by
// another restaurant instead of rejecting the item.
type AddItemRequest struct {
	Item       models.LineItem   `json:"item"`
	Restaurant models.Restaurant `json:"restaurant"`
	Replace    bool              `json:"replace,omitempty"`
}

// LineRequest identifies a line for PATCH and DELETE /cart/items
type LineRequest struct {
	ID       string            `json:"id"`
	Options  map[string]string `json:"options,omitempty"`
	Quantity *int              `json:"quantity,omitempty"`
}

// Key returns the identity of the addressed line
func (r LineRequest) Key() cartstate.LineKey {
	return cartstate.LineKey{ID: r.ID, Options: cartstate.OptionsKey(r.Options)}
}

// CartResponse is the cart as returned by every cart endpoint
type CartResponse struct {
	models.Cart
	ItemCount int `json:"itemCount"`
}

// MarshalJSON keeps itemCount alongside the cart's own wire form
func (r CartResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		models.CartJSON
		ItemCount int `json:"itemCount"`
	}{CartJSON: r.Cart.JSON(), ItemCount: r.ItemCount})
}

// ConflictResponse answers GET /cart/conflict and a refused POST /cart/items
type ConflictResponse struct {
	Conflict          bool   `json:"conflict"`
	CurrentRestaurant string `json:"currentRestaurantId,omitempty"`
	RequestedID       string `json:"requestedRestaurantId"`
}

// Handler handles HTTP requests for the cart service
type Handler struct {
	controller *cartstate.Controller
	tracker    *location.Tracker
	health     HealthChecker
	logger     *logger.Logger
}

// NewHandler creates a new cart handler. health may be nil when the store has no remote dependency.
func NewHandler(controller *cartstate.Controller, tracker *location.Tracker, health HealthChecker, log *logger.Logger) *Handler {
	return &Handler{
		controller: controller,
		tracker:    tracker,
		health:     health,
		logger:     log,
	}
}

// GetCart handles GET /cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestIDFrom(r))
		return
	}
	h.writeCart(w, requestIDFrom(r), h.controller.State())
}

// Items handles POST, PATCH and DELETE /cart/items
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.addItem(w, r)
	case http.MethodPatch:
		h.updateQuantity(w, r)
	case http.MethodDelete:
		h.removeItem(w, r)
	default:
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestIDFrom(r))
	}
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := ValidateAddItemRequest(&req); err != nil {
		h.logger.Error("validation_failed", "Request validation failed", requestID, err, map[string]interface{}{
			"item_id":       req.Item.ID,
			"restaurant_id": req.Restaurant.ID,
		})
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	if h.controller.HasConflictingRestaurant(req.Restaurant.ID) {
		current := h.controller.State().RestaurantID
		if !req.Replace {
			h.logger.Info("restaurant_conflict", "Item belongs to a different restaurant than the cart", requestID, map[string]interface{}{
				"cart_restaurant_id": current,
				"restaurant_id":      req.Restaurant.ID,
			})
			h.writeJSON(w, http.StatusConflict, requestID, ConflictResponse{
				Conflict:          true,
				CurrentRestaurant: current,
				RequestedID:       req.Restaurant.ID,
			})
			return
		}
		h.controller.ClearCart()
		h.logger.Info("cart_replaced", "Cleared cart to switch restaurant", requestID, map[string]interface{}{
			"previous_restaurant_id": current,
			"restaurant_id":          req.Restaurant.ID,
		})
	}

	state := h.controller.AddItem(req.Item, req.Restaurant)

	h.logger.Debug("item_added", "Item added to cart", requestID, map[string]interface{}{
		"item_id": req.Item.ID,
		"total":   state.Total,
	})
	h.writeCart(w, requestID, state)
}

func (h *Handler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req LineRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := ValidateLineRequest(&req, true); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	if !h.hasLine(req.Key()) {
		h.writeErrorResponse(w, http.StatusNotFound, "Item not in cart", requestID)
		return
	}
	h.writeCart(w, requestID, h.controller.UpdateQuantity(req.Key(), *req.Quantity))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req LineRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := ValidateLineRequest(&req, false); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	if !h.hasLine(req.Key()) {
		h.writeErrorResponse(w, http.StatusNotFound, "Item not in cart", requestID)
		return
	}
	h.writeCart(w, requestID, h.controller.RemoveItem(req.Key()))
}

// ClearCart handles POST /cart/clear
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestIDFrom(r))
		return
	}
	h.writeCart(w, requestIDFrom(r), h.controller.ClearCart())
}

// SwitchRestaurant handles POST /cart/restaurant
func (h *Handler) SwitchRestaurant(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	var req models.Restaurant
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateRestaurant(req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	h.writeCart(w, requestID, h.controller.SwitchRestaurant(req))
}

// Conflict handles GET /cart/conflict?restaurant_id=
func (h *Handler) Conflict(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "restaurant_id is required", requestID)
		return
	}

	conflict := h.controller.HasConflictingRestaurant(restaurantID)
	resp := ConflictResponse{Conflict: conflict, RequestedID: restaurantID}
	if conflict {
		resp.CurrentRestaurant = h.controller.State().RestaurantID
	}
	h.writeJSON(w, http.StatusOK, requestID, resp)
}

// Location handles GET and PUT /location. A PUT with null coordinates forgets the position.
func (h *Handler) Location(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	switch r.Method {
	case http.MethodGet:
		fix, ok := h.tracker.Fix()
		if !ok {
			h.writeJSON(w, http.StatusOK, requestID, location.Message{})
			return
		}
		h.writeJSON(w, http.StatusOK, requestID, location.NewMessage(fix))
	case http.MethodPut:
		var msg location.Message
		if !h.decode(w, r, &msg) {
			return
		}
		fix, ok, err := msg.Fix()
		if err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
			return
		}
		if ok {
			h.tracker.Update(fix)
		} else {
			h.tracker.Clear()
		}
		h.writeCart(w, requestID, h.controller.State())
	default:
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
	}
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.health == nil || h.health.Ping(ctx)

	response := map[string]interface{}{
		"status":       "ok",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"service":      "cart-service",
		"healthy":      healthy,
		"loading":      h.controller.State().IsLoading,
		"pending_save": h.controller.SavePending(),
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	h.writeJSON(w, status, "", response)
}

func (h *Handler) hasLine(key cartstate.LineKey) bool {
	for _, item := range h.controller.State().Items {
		if cartstate.KeyOf(item) == key {
			return true
		}
	}
	return false
}

// decode parses a JSON body, writing a 400 response on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	requestID := requestIDFrom(r)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.writeErrorResponse(w, http.StatusBadRequest, "Content-Type must be application/json", requestID)
		return false
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return false
	}
	return true
}

func (h *Handler) writeCart(w http.ResponseWriter, requestID string, state models.Cart) {
	h.writeJSON(w, http.StatusOK, requestID, CartResponse{Cart: state, ItemCount: state.ItemCount()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, requestID string, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	h.writeJSON(w, statusCode, requestID, map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/cart", h.withLogging(h.GetCart))
	mux.HandleFunc("/cart/items", h.withLogging(h.Items))
	mux.HandleFunc("/cart/clear", h.withLogging(h.ClearCart))
	mux.HandleFunc("/cart/restaurant", h.withLogging(h.SwitchRestaurant))
	mux.HandleFunc("/cart/conflict", h.withLogging(h.Conflict))
	mux.HandleFunc("/location", h.withLogging(h.Location))
	mux.HandleFunc("/health", h.withLogging(h.HealthCheck))

	return mux
}

type requestIDKey struct{}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}

		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))
		w.Header().Set("X-Request-ID", requestID)

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

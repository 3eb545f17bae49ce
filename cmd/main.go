package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"delivery-cart/internal/cart"
	"delivery-cart/internal/config"
	"delivery-cart/internal/database"
	"delivery-cart/internal/geo"
	"delivery-cart/internal/location"
	"delivery-cart/internal/logger"
	"delivery-cart/internal/messaging"
	"delivery-cart/internal/persistence"
	cartapi "delivery-cart/internal/services/cart"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (cart-service, location-relay)")
		configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		port       = flag.Int("port", 0, "HTTP port (overrides config)")
		prefetch   = flag.Int("prefetch", 10, "RabbitMQ prefetch count for the location feed")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.HTTP.Port = *port
	}

	log := logger.NewWithOptions(*mode, cfg.Logging.Level, os.Stdout)
	requestID := logger.GenerateRequestID()

	log.Info("service_starting", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":           *mode,
		"port":           cfg.HTTP.Port,
		"storage_driver": cfg.Storage.Driver,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "cart-service":
		if err := runCartService(ctx, cfg, log, *prefetch); err != nil {
			log.Error("service_failed", "Cart service failed", requestID, err, nil)
			os.Exit(1)
		}
	case "location-relay":
		if err := runLocationRelay(ctx, cfg, log, os.Stdin); err != nil {
			log.Error("service_failed", "Location relay failed", requestID, err, nil)
			os.Exit(1)
		}
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runCartService runs the cart API with its snapshot store and optional broker wiring
func runCartService(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	requestID := logger.GenerateRequestID()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	store, health, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	tracker := location.NewTracker()
	loader := persistence.NewLoader(store, cfg.Cart.StorageKey, cfg.Cart.StorageTimeout, log)
	saver := persistence.NewSaver(store, cfg.Cart.StorageKey, cfg.Cart.SaveDebounce, cfg.Cart.StorageTimeout, log)
	// runs before closeStore
	defer saver.Close()
	controller := cart.NewController(tracker, loader, saver, log)

	if url := cfg.RabbitMQURL(); url != "" {
		conn, err := messaging.New(url, log)
		if err != nil {
			// the cart works without the broker; location then only arrives over HTTP
			log.Error("rabbitmq_unavailable", "Continuing without RabbitMQ", requestID, err, nil)
		} else {
			defer conn.Close()
			log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

			consumer := messaging.NewConsumer(conn, log, messaging.LocationQueue, "cart-service", prefetch)
			defer consumer.Close()

			feed := location.NewFeed(tracker, log)
			go func() {
				if err := feed.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("location_feed_failed", "Location feed stopped", requestID, err, nil)
				}
			}()

			stopEvents := publishCartEvents(ctx, controller, messaging.NewPublisher(conn, log), log)
			defer stopEvents()
		}
	}

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cart controller: %w", err)
	}

	handler := cartapi.NewHandler(controller, tracker, health, log)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("service_started", fmt.Sprintf("Cart Service started on port %d", cfg.HTTP.Port), requestID, map[string]interface{}{
			"port":        cfg.HTTP.Port,
			"storage_key": cfg.Cart.StorageKey,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	serverErr := server.Shutdown(shutdownCtx)
	return errors.Join(serverErr, controller.Close(shutdownCtx))
}

// openStore builds the configured snapshot backend
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (persistence.Store, cartapi.HealthChecker, func(), error) {
	requestID := logger.GenerateRequestID()

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Info("storage_selected", "Using in-memory cart storage", requestID, nil)
		return persistence.NewMemoryStore(), nil, func() {}, nil

	case config.DriverSQLite:
		store, err := persistence.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info("storage_selected", "Using SQLite cart storage", requestID, map[string]interface{}{
			"path": cfg.Storage.SQLitePath,
		})
		return store, store, func() { store.Close() }, nil

	case config.DriverRedis:
		store := persistence.NewRedisStore(persistence.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		}, log)
		if err := store.Initialize(ctx, 5); err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
		log.Info("storage_selected", "Using Redis cart storage", requestID, map[string]interface{}{
			"addr": cfg.Redis.Addr,
		})
		return store, store, func() { store.Close() }, nil

	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.DatabaseURL(), log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

		if err := db.RunMigrations(ctx, database.Migrations()); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		store := persistence.NewPostgresStore(db)
		return store, store, db.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// publishCartEvents forwards controller changes to the cart events exchange without blocking dispatch
func publishCartEvents(ctx context.Context, controller *cart.Controller, publisher *messaging.Publisher, log *logger.Logger) func() {
	events := make(chan cart.Change, 64)

	unsubscribe := controller.Subscribe(func(change cart.Change) {
		select {
		case events <- change:
		default:
			log.Warn("cart_event_dropped", "Cart event buffer full", "", map[string]interface{}{
				"action": change.Action,
			})
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-events:
				if err := publisher.PublishCartEvent(ctx, change); err != nil {
					log.Error("cart_event_publish_failed", "Failed to publish cart event", "", err, map[string]interface{}{
						"action": change.Action,
					})
				}
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}

// runLocationRelay publishes "lat,lng[,address]" lines from r to the location exchange
func runLocationRelay(ctx context.Context, cfg *config.Config, log *logger.Logger, r io.Reader) error {
	requestID := logger.GenerateRequestID()

	url := cfg.RabbitMQURL()
	if url == "" {
		return errors.New("location-relay requires rabbitmq configuration")
	}

	conn, err := messaging.New(url, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	publisher := messaging.NewPublisher(conn, log)
	log.Info("service_started", "Location relay reading fixes from stdin", requestID, nil)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			msg, err := parseFix(line)
			if err != nil {
				log.Warn("invalid_fix", "Skipping malformed location line", requestID, map[string]interface{}{
					"line":  line,
					"error": err.Error(),
				})
				continue
			}

			if err := publisher.PublishLocation(ctx, msg); err != nil {
				log.Error("location_publish_failed", "Failed to publish location", requestID, err, nil)
				continue
			}
			log.Debug("location_published", "Published location fix", requestID, map[string]interface{}{
				"line": line,
			})
		}
	}
}

// parseFix reads "lat,lng[,address]". The literal "clear" forgets the position.
func parseFix(line string) (location.Message, error) {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "clear") {
		return location.Message{}, nil
	}

	parts := strings.SplitN(line, ",", 3)
	if len(parts) < 2 {
		return location.Message{}, fmt.Errorf("expected lat,lng[,address], got %q", line)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return location.Message{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return location.Message{}, fmt.Errorf("invalid longitude: %w", err)
	}

	fix := location.Fix{Point: geo.Point{Lat: lat, Lng: lng}}
	if len(parts) == 3 {
		fix.Address = strings.TrimSpace(parts[2])
	}

	msg := location.NewMessage(fix)
	if _, _, err := msg.Fix(); err != nil {
		return location.Message{}, err
	}
	return msg, nil
}

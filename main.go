// main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"opsdesk/internal/availability"
	"opsdesk/internal/catalog"
	"opsdesk/internal/config"
	"opsdesk/internal/data"
	"opsdesk/internal/logger"
	"opsdesk/internal/metrics"
	"opsdesk/internal/middleware"
	"opsdesk/internal/session"
	"opsdesk/internal/wizard"
)

type App struct {
	addr          string
	mux           *http.ServeMux
	connections   sync.WaitGroup
	totalRequests int64
}

func init() {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err == nil {
		time.Local = loc // This affects the standard log package
	}
}

func main() {
	// Step 1: Setup configuration first
	config.LoadEnv()
	config.ConfigurePaths()

	// Step 2: Setup logging
	loggerConfig := config.LoggerConfig()
	if err := logger.SetupLogger(loggerConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment and paths loaded. Logger ready.")

	config.LoadSessionConfig()
	config.LoadCORSConfig()
	config.LogCurrentEnvironment()

	// Step 3: Open the store and bootstrap the schema
	if err := data.InitDB(config.DatabasePath()); err != nil {
		logger.LogFatal("Failed to initialize database: %v", err)
	}
	if err := data.CreateTables(); err != nil {
		logger.LogFatal("Failed to create tables: %v", err)
	}

	// Step 4: Load the product catalog
	catalogService := catalog.NewService()
	if _, err := os.Stat(config.CatalogPath()); err == nil {
		if err := catalogService.LoadFromFile(config.CatalogPath()); err != nil {
			logger.LogFatal("Failed to load catalog: %v", err)
		}
	} else {
		logger.LogWarn("No catalog file at %s, loading built-in demo catalog", config.CatalogPath())
		catalogService.LoadData(catalog.DemoCatalog())
	}

	// Step 5: Optionally seed demo clients, resources, and reservations
	if config.SeedDemoData() {
		if err := data.SeedDemoData(); err != nil {
			logger.LogFatal("Failed to seed demo data: %v", err)
		}
	}

	// Step 6: Wire the wizard service
	reservationRepo := data.NewReservationRepository()
	oracle := availability.NewService(catalogService, reservationRepo)
	sessions := session.NewStore[*wizard.Wizard](config.SessionTTL())
	sessions.StartCleanupRoutine(5 * time.Minute)

	handlers := wizard.NewHandlers(
		sessions,
		catalogService,
		data.NewClientRepository(),
		oracle,
		data.NewOfferRepository(),
		config.OracleTimeout(),
	)

	// Step 7: Run server
	app := &App{
		addr: serverAddress(),
		mux:  routes(handlers),
	}
	app.Run()
}

// serverAddress builds the listen address from environment variables
func serverAddress() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "5080"
	}
	return host + ":" + port
}

// routes sets up all API routes
func routes(h *wizard.Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", metrics.Handler())

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/session", middleware.APIMiddleware(h.CreateSessionHandler))
	apiMux.HandleFunc("/clients", middleware.APIMiddleware(h.ListClientsHandler))
	apiMux.HandleFunc("/catalog/products", middleware.APIMiddleware(h.ListProductsHandler))
	apiMux.HandleFunc("/wizard/state", middleware.APIMiddleware(h.StateHandler))
	apiMux.HandleFunc("/wizard/client", middleware.APIMiddleware(h.SelectClientHandler))
	apiMux.HandleFunc("/wizard/metadata", middleware.APIMiddleware(h.SetMetadataHandler))
	apiMux.HandleFunc("/wizard/step", middleware.APIMiddleware(h.StepHandler))
	apiMux.HandleFunc("/offer/items", middleware.APIMiddleware(h.AddItemHandler))
	apiMux.HandleFunc("/offer/items/update", middleware.APIMiddleware(h.UpdateItemHandler))
	apiMux.HandleFunc("/offer/items/remove", middleware.APIMiddleware(h.RemoveItemHandler))
	apiMux.HandleFunc("/offer/conflicts", middleware.APIMiddleware(h.ConflictsHandler))
	apiMux.HandleFunc("/offer/substitutions/select", middleware.APIMiddleware(h.SelectAlternativeHandler))
	apiMux.HandleFunc("/offer/substitutions/quantity", middleware.APIMiddleware(h.DraftQuantityHandler))
	apiMux.HandleFunc("/offer/substitutions/commit", middleware.APIMiddleware(h.CommitSubstitutionHandler))
	apiMux.HandleFunc("/offer/submit", middleware.APIMiddleware(h.SubmitHandler))

	mux.Handle("/api/", http.StripPrefix("/api", apiMux))

	return mux
}

// Run starts the HTTP server
func (a *App) Run() {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a separate goroutine
	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogFatal("Server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal
	<-stop
	logger.LogInfo("Shutdown signal received")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server gracefully
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	// Wait for active connections to finish
	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()

	if err := data.CloseDB(); err != nil {
		logger.LogError("Database close error: %v", err)
	}
	logger.LogInfo("Server shut down gracefully. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
}

// Handler assembles the global middleware around the route mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = a.trackConnections(handler)
	handler = middleware.CORS(handler)
	handler = withTimeout(handler, 30*time.Second)

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}

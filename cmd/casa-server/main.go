// Command casa-server serves the CASA engine over HTTP and gRPC and keeps
// completed analyses in a SQLite report store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/casa.report/internal/api"
	"github.com/banshee-data/casa.report/internal/casa"
	"github.com/banshee-data/casa.report/internal/config"
	"github.com/banshee-data/casa.report/internal/db"
	"github.com/banshee-data/casa.report/internal/rpc"
	"github.com/banshee-data/casa.report/internal/tracking"
	"github.com/banshee-data/casa.report/internal/version"
)

var (
	envFile     = flag.String("env", ".env", "Environment file to load before reading CASA_* variables")
	listen      = flag.String("listen", "", "HTTP listen address (overrides CASA_LISTEN)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC listen address (overrides CASA_GRPC_LISTEN)")
	dbPath      = flag.String("db", "", "Report database path (overrides CASA_DB_PATH)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// applyFlags overlays explicitly set flags on the environment config.
func applyFlags(cfg config.ServerConfig) config.ServerConfig {
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *grpcListen != "" {
		cfg.GRPCListen = *grpcListen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	return cfg
}

// newAnalyzer builds the engine pipeline from the server settings.
func newAnalyzer(cfg config.ServerConfig, store api.Store) (*api.Analyzer, error) {
	calibration, err := cfg.LoadCalibration()
	if err != nil {
		return nil, err
	}
	return &api.Analyzer{
		Store:       store,
		Engine:      casa.NewEngine(casa.EngineConfig{Workers: cfg.Workers}),
		Producer:    tracking.NewNearestNeighbourLinker(),
		Calibration: calibration,
	}, nil
}

// newHandler mounts the API and the admin routes.
func newHandler(cfg config.ServerConfig, analyzer *api.Analyzer, store *db.DB) (http.Handler, error) {
	mux := api.NewServer(analyzer, cfg.MaxBodyBytes, cfg.Timezone).ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, fmt.Errorf("failed to attach admin routes: %w", err)
	}
	return api.LoggingMiddleware(mux), nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadServerConfig(*envFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg = applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	store, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	if v, dirty, err := store.SchemaVersion(); err == nil {
		log.Printf("report store %s at schema version %d (dirty=%v)", cfg.DBPath, v, dirty)
	}

	analyzer, err := newAnalyzer(cfg, store)
	if err != nil {
		log.Fatalf("failed to load calibration: %v", err)
	}
	handler, err := newHandler(cfg, analyzer, store)
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("%s starting", version.String())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// gRPC server goroutine
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Fatalf("failed to listen on %s: %v", cfg.GRPCListen, err)
		}
		grpcServer := rpc.NewGRPCServer(rpc.NewServer(analyzer, store))

		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				log.Printf("gRPC server listening on %s", cfg.GRPCListen)
				if err := grpcServer.Serve(lis); err != nil {
					log.Printf("gRPC server error: %v", err)
				}
			}()
			<-ctx.Done()
			log.Println("shutting down gRPC server...")
			grpcServer.GracefulStop()
			log.Printf("gRPC server routine stopped")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("HTTP server listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kestrel-robotics/gatekeeper/internal/api"
	"github.com/kestrel-robotics/gatekeeper/internal/camera"
	"github.com/kestrel-robotics/gatekeeper/internal/classify"
	"github.com/kestrel-robotics/gatekeeper/internal/config"
	"github.com/kestrel-robotics/gatekeeper/internal/db"
	"github.com/kestrel-robotics/gatekeeper/internal/marker"
	"github.com/kestrel-robotics/gatekeeper/internal/pipeline"
	"github.com/kestrel-robotics/gatekeeper/internal/rangefinder"
	"github.com/kestrel-robotics/gatekeeper/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS
	devMode     = flag.Bool("dev", false, "Run in dev mode with fixture frames and a mock rangefinder")
	listen      = flag.String("listen", ":8080", "Listen address")
	cameraIndex = flag.Int("camera", 0, "Camera device index")
	fixturesDir = flag.String("fixtures", "fixtures", "Directory of fixture frames for dev mode")
	serialPort  = flag.String("serial-port", "/dev/ttyUSB0", "Rangefinder serial port path")
	dbFile      = flag.String("db", "gatekeeper.db", "SQLite database path")
	configPath  = flag.String("config", "", "Tuning config JSON path (defaults apply when unset)")
	migrations  = flag.String("migrations", "migrations", "Database migrations directory")

	remoteEndpoint = flag.String("classifier-endpoint", "", "Hosted classifier endpoint URL (API key via GATEKEEPER_API_KEY)")
	localEndpoint  = flag.String("classifier-local", "", "Local classifier base URL")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("gatekeeper %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("gatekeeper %s starting", version.Version)

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	} else if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		tuning, err = config.LoadTuningConfig(config.DefaultConfigPath)
		if err != nil {
			log.Fatalf("failed to load default tuning config: %v", err)
		}
	}

	var ranger rangefinder.ReaderInterface
	if *devMode {
		ranger = rangefinder.NewMockReader(40, 350, 200*time.Millisecond)
	} else {
		var err error
		ranger, err = rangefinder.NewRealReader(*serialPort, rangefinder.PortOptions{})
		if err != nil {
			log.Fatalf("failed to open rangefinder port: %v", err)
		}
	}
	defer ranger.Close()

	var open camera.OpenFunc
	if *devMode {
		open = func() (camera.Camera, error) {
			return camera.NewFixtureCamera(*fixturesDir, int(tuning.GetFixtureFPS()))
		}
	} else {
		open = func() (camera.Camera, error) {
			return camera.OpenDevice(*cameraIndex)
		}
	}

	var classifier classify.Classifier
	switch {
	case *remoteEndpoint != "":
		classifier = classify.NewRemoteClient(*remoteEndpoint, os.Getenv("GATEKEEPER_API_KEY"), tuning.GetTargetClass(), 10*time.Second)
	case *localEndpoint != "":
		classifier = classify.NewLocalClient(*localEndpoint, tuning.GetTargetClass(), tuning.GetClassifierConfidence(), 10*time.Second)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(*migrations); err != nil {
		log.Printf("failed to apply migrations: %v", err)
	}

	p := pipeline.New(pipeline.Options{
		Open:       open,
		Detector:   marker.NewDetector(marker.NewZXingDecoder(), tuning.GetTargetPayload(), tuning.GetDetectionScale()),
		Classifier: classifier,
		Distance:   ranger,
		Tuning:     tuning,
	})

	recorder, err := pipeline.NewRecorder(database, tuning.GetFlushInterval())
	if err != nil {
		log.Fatalf("failed to start recording session: %v", err)
	}
	log.Printf("recording session %s", recorder.SessionID())

	// Create a wait group for the HTTP server, sensor monitor, and pipeline routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the rangefinder port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ranger.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor rangefinder port: %v", err)
		}
		log.Print("rangefinder routine terminated")
	}()

	// run the capture loop; a fatal fault stops the whole process so a
	// supervisor can restart it with the hardware reset
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := p.Run(ctx)
		if err != nil && err != context.Canceled {
			var fault *pipeline.FaultError
			if errors.As(err, &fault) {
				recorder.RecordFault(fault.Source, fault.Message)
			}
			log.Printf("pipeline stopped: %v", err)
			stop()
		}
		log.Print("pipeline routine terminated")
	}()

	// persist frame decisions for later review
	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(ctx, p)
		log.Print("recorder routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)
		ranger.AttachAdminRoutes(mux)

		// mount the API handlers
		apiMux := api.NewServer(p, database).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/results", apiMux)
		mux.Handle("/charts/", apiMux)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticHandler = http.FileServer(http.FS(staticFiles))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

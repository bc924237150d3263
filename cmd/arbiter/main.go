package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/gesture.arbiter/internal/capture"
	"github.com/banshee-data/gesture.arbiter/internal/config"
	"github.com/banshee-data/gesture.arbiter/internal/db"
	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine/dtw"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/manager"
	"github.com/banshee-data/gesture.arbiter/internal/monitor"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
	"github.com/banshee-data/gesture.arbiter/internal/serialmux"
	"github.com/banshee-data/gesture.arbiter/internal/version"
)

var (
	configPath      = flag.String("config", config.DefaultConfigPath, "Path to the arbiter JSON config")
	port            = flag.String("port", "/dev/ttyUSB0", "IMU serial port, or \"none\" to run without one (ignored in dev mode)")
	devMode         = flag.Bool("dev", false, "Use a simulated IMU instead of the serial port")
	listen          = flag.String("listen", ":8080", "Listen address")
	dbPath          = flag.String("db", "", "SQLite database path (default <state_dir>/gesture.db)")
	migrationsCheck = flag.Bool("migrations-check", false, "Report the schema version and exit non-zero if migrations are pending")
	showVersion     = flag.Bool("version", false, "Print the version and exit")
	listPorts       = flag.Bool("list-ports", false, "List serial ports and exit")
	initialMode     = flag.String("mode", "SmartIdentify", "Initial gesture mode, names joined by |")
	initialTargets  = flag.String("targets", "101,102,103", "Initial indexed targets, comma separated")
	progressBackend = flag.String("store", "db", "Training progress backend: db or file (<state_dir>/train_data.json)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := config.LoadArbiterConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	monitoring.SetDebug(cfg.GetDebugLog())

	mode, ok := gesture.ParseMode(*initialMode)
	if !ok {
		log.Fatalf("unknown mode %q", *initialMode)
	}
	targets, err := parseTargets(*initialTargets)
	if err != nil {
		log.Fatalf("invalid -targets: %v", err)
	}

	path := *dbPath
	if path == "" {
		if err := os.MkdirAll(cfg.GetStateDir(), 0o755); err != nil {
			log.Fatalf("failed to create state dir: %v", err)
		}
		path = filepath.Join(cfg.GetStateDir(), "gesture.db")
	}
	if *migrationsCheck {
		os.Exit(checkMigrations(path))
	}

	database, err := db.NewDB(path)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	var imu serialmux.SerialMuxInterface
	stream := serialmux.StreamOptions{Interval: cfg.GetCaptureInterval()}
	switch {
	case *devMode:
		imu = serialmux.NewMockSerialMux(serialmux.MockOptions{
			Interval: cfg.GetCaptureInterval(),
			Seed:     time.Now().UnixNano(),
		})
	case *port == "" || *port == "none":
		imu = serialmux.NewDisabledSerialMux()
	default:
		imu, err = serialmux.NewRealSerialMux(*port, cfg.GetSerial(), stream)
		if err != nil {
			log.Fatalf("failed to open IMU port %s: %v", *port, err)
		}
	}
	defer imu.Close()

	if err := imu.Initialize(); err != nil {
		log.Fatalf("failed to initialize IMU: %v", err)
	}
	log.Printf("initialized IMU (dev=%v, %s)", *devMode, cfg.GetSerial())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openProgressStore(*progressBackend, database, cfg.GetStateDir())
	if err != nil {
		log.Fatalf("failed to open progress store: %v", err)
	}

	binding := engine.NewNativeBinding(dtw.New(dtw.Options{}), cfg.GetRecognizerTimeout(), nil)
	exemplars := db.NewExemplarStore(database)
	mgr, err := manager.New(manager.Options{
		Binding:   binding,
		Config:    cfg,
		Store:     store,
		Exemplars: exemplars,
		Observer:  newLogObserver(database),
	})
	if err != nil {
		log.Fatalf("failed to create gesture manager: %v", err)
	}
	if err := mgr.Load(ctx); err != nil {
		log.Fatalf("failed to load training data: %v", err)
	}
	if err := reseedCustom(ctx, binding, exemplars, mgr); err != nil {
		log.Printf("failed to restore custom gestures: %v", err)
	}
	if err := mgr.UpdateGestureStat(ctx, false); err != nil {
		log.Printf("failed to update gesture statistics: %v", err)
	}
	if err := mgr.SetTarget(ctx, targets); err != nil {
		log.Printf("failed to set targets: %v", err)
	}
	if err := mgr.SetMode(ctx, mode); err != nil {
		log.Printf("failed to set mode: %v", err)
	}
	log.Printf("gesture manager ready: mode=%s targets=%v", mgr.Mode(), mgr.Targets())

	source := capture.NewSerialSource(imu)
	sampler := capture.NewSampler(source, nil, cfg.GetCaptureInterval(), nil)
	source.Attach(sampler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer log.Print("monitor routine terminated")
		if err := imu.Monitor(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("monitor IMU: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer log.Print("capture routine terminated")
		if err := source.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("capture: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case s := <-sampler.Samples():
				if _, err := mgr.HandleSample(gctx, s); err != nil {
					log.Printf("gesture ID:%d: %v", s.ID, err)
				}
			case <-gctx.Done():
				log.Print("sample routine terminated")
				return nil
			}
		}
	})

	mux := http.NewServeMux()
	mon := monitor.NewServer(mgr, database)
	mon.AttachRoutes(mux)
	mon.AttachAdminRoutes(mux)
	imu.AttachAdminRoutes(mux)
	if err := database.AttachAdminRoutes(mux); err != nil {
		log.Printf("db admin routes unavailable: %v", err)
	}
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, version.String())
	})

	server := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", *listen, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("failed to shut down HTTP server: %v", err)
		}
		log.Print("HTTP server routine terminated")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("shutting down: %v", err)
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Save(saveCtx); err != nil {
		log.Printf("failed to save training data: %v", err)
	} else {
		log.Print("training data saved")
	}
}

func checkMigrations(path string) int {
	database, err := db.OpenDB(path)
	if err != nil {
		log.Printf("failed to open database: %v", err)
		return 2
	}
	defer database.Close()
	status, err := database.MigrationStatus()
	if err != nil {
		log.Printf("failed to read migration status: %v", err)
		return 2
	}
	fmt.Printf("%s: %s\n", path, status)
	if !status.UpToDate() {
		return 1
	}
	return 0
}

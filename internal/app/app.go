package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/lcalzada-xor/lankill/internal/adapters/attack/poison"
	"github.com/lcalzada-xor/lankill/internal/adapters/sniffer"
	"github.com/lcalzada-xor/lankill/internal/adapters/storage"
	"github.com/lcalzada-xor/lankill/internal/adapters/web"
	"github.com/lcalzada-xor/lankill/internal/config"
	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/ports"
	"github.com/lcalzada-xor/lankill/internal/core/services/audit"
	"github.com/lcalzada-xor/lankill/internal/core/services/network"
	"github.com/lcalzada-xor/lankill/internal/core/services/registry"
	"github.com/lcalzada-xor/lankill/internal/telemetry"
)

// Application is the composition root: it wires the registry, discovery
// engine, poison loop, control surface, and audit trail together.
type Application struct {
	Config         *config.Config
	Registry       *registry.DeviceRegistry
	Scanner        ports.Scanner
	Poisoner       *poison.Engine
	NetworkService *network.Service
	WebServer      *web.Server
	AuditService   *audit.Service

	auditRepo *storage.AuditRepo
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}
	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	repo, err := app.initStorage()
	if err != nil {
		return err
	}
	app.auditRepo = repo
	app.AuditService = audit.NewService(repo)

	app.Registry = registry.NewDeviceRegistry()

	if app.Config.MockMode {
		log.Println("Mock Mode Active: simulating a /24 segment, no frames leave this host")
		app.Scanner = sniffer.NewMockScanner(app.Registry)
	} else {
		engine, err := sniffer.NewEngine(app.Config.Interface, app.Registry, sniffer.Options{
			DeepProbe: app.Config.DeepProbe,
			ProbePort: uint16(app.Config.ProbePort),
		})
		if err != nil {
			return fmt.Errorf("discovery engine init: %w", err)
		}
		app.Scanner = engine
	}

	app.Poisoner = poison.NewEngine(
		app.Registry,
		app.Scanner.Sender(),
		app.Scanner.Interface(),
		app.Scanner.Gateway,
		poison.Config{
			Interval:    app.Config.PoisonInterval,
			MaxDuration: app.Config.MaxPoisonDuration,
		},
	)

	app.NetworkService = network.NewService(app.Scanner, app.Registry, app.AuditService)

	// Engine warnings flow to the operator stream; expirations are also
	// audited since the engine changed operator-visible state on its own.
	app.Poisoner.SetWarningSink(func(w domain.Warning) {
		if w.Type == domain.WarnPoisonExpired {
			app.AuditService.Record(domain.AuditExpiry, "", "", w.Message)
		}
		app.NetworkService.EmitWarning(w)
	})

	wsManager := web.NewWSManager(app.NetworkService, app.Config.Addr)
	app.Registry.AddObserver(wsManager)
	app.Poisoner.SetLogger(wsManager.BroadcastLog)
	app.WebServer = web.NewServer(app.Config.Addr, app.NetworkService, wsManager)

	return nil
}

func (app *Application) initStorage() (*storage.AuditRepo, error) {
	if dir := filepath.Dir(app.Config.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}
	repo, err := storage.NewAuditRepo(app.Config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init audit storage: %w", err)
	}
	return repo, nil
}

// Run starts every loop and blocks until ctx is cancelled or a component
// fails fatally.
func (app *Application) Run(ctx context.Context) error {
	errChan := make(chan error, 2)

	go func() {
		if err := app.Scanner.Start(ctx); err != nil {
			errChan <- fmt.Errorf("listener: %w", err)
		}
	}()

	go app.Poisoner.Run(ctx)
	go app.NetworkService.StartLivenessLoop(ctx, app.Config.LivenessInterval, app.Config.LivenessTimeout)
	go app.runScanSchedule(ctx)

	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// runScanSchedule fires the initial sweep shortly after startup and repeats
// on the configured cadence.
func (app *Application) runScanSchedule(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		app.NetworkService.TriggerScan(ctx)
	}

	if app.Config.ScanEvery <= 0 {
		return
	}
	ticker := time.NewTicker(app.Config.ScanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.NetworkService.TriggerScan(ctx)
		}
	}
}

// RestoreNetwork releases every poisoned target and closes the capture and
// storage handles. Called on shutdown, after the root context is cancelled.
func (app *Application) RestoreNetwork() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app.Poisoner.RestoreAll(ctx)
	app.Scanner.Close()
	if app.auditRepo != nil {
		if err := app.auditRepo.Close(); err != nil {
			log.Printf("Audit storage close error: %v", err)
		}
	}
}

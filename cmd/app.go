package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"comfygate/app/handler"
	"comfygate/app/router"
	"comfygate/internal/dispatch"
	"comfygate/internal/names"
	"comfygate/internal/prober"
	"comfygate/internal/supervisor"
	"comfygate/internal/workflow"
	"comfygate/pkg/config"
	"comfygate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Application manages the lifecycle of the entire application
type Application struct {
	// Infrastructure components
	config    *config.Config
	workflows *workflow.Set

	// Dispatch core
	dispatcher *dispatch.Dispatcher
	supervisor *supervisor.Supervisor
	prober     *prober.Prober

	// Handler layer
	jobHandler     *handler.JobHandler
	catalogHandler *handler.CatalogHandler
	serverHandler  *handler.ServerHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Workflows", app.initWorkflows},
		{"Dispatcher", app.initDispatcher},
		{"Supervisor", app.initSupervisor},
		{"Health Prober", app.initProber},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.Infof("Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	logger.Info("Application initialization completed")
	return nil
}

func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

func (app *Application) initLogger() error {
	return logger.Init()
}

func (app *Application) initWorkflows() error {
	set, err := workflow.LoadDir(
		app.config.Workflow.Dir,
		names.NewMap(app.config.ModelConfig),
		names.NewMap(app.config.LoraConfig),
		app.config.Generation,
	)
	if err != nil {
		return err
	}
	app.workflows = set
	logger.Infof("%d workflows loaded", set.Len())
	return nil
}

func (app *Application) initDispatcher() error {
	d, err := dispatch.New(app.config, app.workflows)
	if err != nil {
		return err
	}
	app.dispatcher = d
	return nil
}

func (app *Application) initSupervisor() error {
	app.supervisor = supervisor.New(
		app.dispatcher.Registry(),
		app.dispatcher.Queue(),
		app.dispatcher.Counters(),
		app.dispatcher.RunWorker,
		app.config.Dispatch.DrainTimeoutDuration(),
	)
	// Failure-driven reconciliation: draining must not wait for a probe sweep
	// when the last healthy server fails out mid-job.
	app.dispatcher.SetReconciler(app.supervisor)
	return nil
}

func (app *Application) initProber() error {
	app.prober = prober.New(
		app.dispatcher.Registry(),
		app.dispatcher.Client(),
		app.config.Dispatch,
		app.supervisor,
	)
	return nil
}

func (app *Application) initHandlers() error {
	app.jobHandler = handler.NewJobHandler(app.dispatcher)
	app.catalogHandler = handler.NewCatalogHandler(app.dispatcher)
	app.serverHandler = handler.NewServerHandler(app.dispatcher)
	return nil
}

func (app *Application) initHTTPServer() error {
	if app.config.HTTP.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.ginEngine = gin.New()
	r := router.NewRouter(app.jobHandler, app.catalogHandler, app.serverHandler)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.HTTP.Port),
		Handler: app.ginEngine,
	}
	return nil
}

// Start starts all application components
func (app *Application) Start() error {
	logger.Info("Starting application components...")

	// 1. Workers for whichever servers the first probe sweep brings up
	app.supervisor.Start(app.ctx)

	// 2. Health prober
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.prober.Run(app.ctx)
	}()

	// 3. HTTP server
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		logger.Infof("HTTP server listening on: %s", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.Infof("Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Stop accepting new requests
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	// 2. Drain the workers; pending jobs are cancelled out
	app.supervisor.Shutdown()

	// 3. Cancel the prober and whatever else hangs off the base context
	app.cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All background tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout, some tasks may not have completed")
	}

	logger.Sync()
	return nil
}

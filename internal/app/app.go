package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/config"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/logging"
)

// App holds the components shared by every command.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Ctx    context.Context
	Cancel context.CancelFunc
}

// NewApp loads configuration and initializes the logger.
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		Config: cfg,
		Logger: logger,
		Ctx:    ctx,
		Cancel: cancel,
	}, nil
}

// Close shuts down the application resources.
func (a *App) Close() {
	if a.Cancel != nil {
		a.Cancel()
	}
	if a.Logger != nil {
		if err := a.Logger.Sync(); err != nil {
			// Syncing stderr fails on some platforms; only surface
			// unexpected errors.
			if !strings.Contains(err.Error(), "invalid argument") &&
				!strings.Contains(err.Error(), "inappropriate ioctl for device") {
				fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
			}
		}
	}
}

package server

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/startup"

	"github.com/Ramsey-B/sage/config"
)

// Dependency adapts a start/stop function pair to the startup orchestration.
type Dependency struct {
	Name    string
	Needs   []string
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context) error
}

func (d Dependency) GetName() string     { return d.Name }
func (d Dependency) DependsOn() []string { return d.Needs }

func (d Dependency) Start(ctx context.Context) error {
	if d.StartFn == nil {
		return nil
	}
	return d.StartFn(ctx)
}

func (d Dependency) Stop(ctx context.Context) error {
	if d.StopFn == nil {
		return nil
	}
	return d.StopFn(ctx)
}

// NewStartup builds the dependency bootstrapper the deployment entrypoint
// drives before serving traffic. Dependencies start in DependsOn order with
// retries up to the configured attempt limit.
func NewStartup(cfg *config.Config, logger ectologger.Logger, deps ...startup.StartupDependency) *startup.Startup {
	s := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)
	for _, dep := range deps {
		s.AddDependency(dep)
	}
	return s
}

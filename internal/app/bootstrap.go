// Package app is the composition root. Bootstrap stays orchestration-only:
// infrastructure, then modules, then workers and the router.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"hseptw.io/ptw/internal/api/handlers"
	"hseptw.io/ptw/internal/app/modules"
	"hseptw.io/ptw/internal/config"
	"hseptw.io/ptw/internal/infrastructure"
	"hseptw.io/ptw/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	workflowModule, err := modules.NewWorkflowModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init workflow module: %w", err)
	}
	allModules := []modules.Module{
		workflowModule,
		modules.NewNotificationModule(infra),
	}

	workers := river.NewWorkers()
	var periodic []*river.PeriodicJob
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
		if p, ok := mod.(modules.PeriodicJobProvider); ok {
			periodic = append(periodic, p.PeriodicJobs()...)
		}
	}
	if err := infra.InitRiver(workers, periodic); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	serverDeps := modules.NewServerDeps(cfg, infra, allModules)
	server := handlers.NewServer(serverDeps)

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, serverDeps.JWTCfg),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
	}, nil
}

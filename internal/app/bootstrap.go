// Package app is the composition root: bootstrap stays orchestration-only,
// deferring all domain wiring to internal/app/modules.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"pdsno.io/controller/internal/api/handlers"
	"pdsno.io/controller/internal/app/modules"
	"pdsno.io/controller/internal/config"
	"pdsno.io/controller/internal/infrastructure"
	"pdsno.io/controller/internal/jobs"
	"pdsno.io/controller/internal/nib"
	"pdsno.io/controller/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Store   nib.Store
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	transportMod := modules.NewTransportModule(infra)
	admissionMod := modules.NewAdmissionModule(infra)
	discoveryMod := modules.NewDiscoveryModule(infra)

	baseModules := []modules.Module{transportMod, admissionMod, discoveryMod}

	workers := river.NewWorkers()
	for _, mod := range baseModules {
		mod.RegisterWorkers(workers)
	}

	approvalModule, err := modules.NewApprovalModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init approval module: %w", err)
	}
	approvalModule.RegisterWorkers(workers)

	if err := infra.InitRiver(workers); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	// Periodic discovery cycle: run on the configured interval and once at
	// startup so a freshly-booted controller doesn't wait a full cycle
	// before its first inventory sweep.
	if infra.RiverClient != nil {
		infra.RiverClient.PeriodicJobs().Add(
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.Discovery.CycleInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return jobs.DiscoveryCycleArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		)
	}

	allModules := append(baseModules, approvalModule)
	serverDeps := modules.NewServerDeps(cfg, infra, allModules)
	server := handlers.NewServer(serverDeps)

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, serverDeps.JWTCfg),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Store:   infra.Store,
		Modules: allModules,
	}, nil
}

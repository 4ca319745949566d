package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"hseptw.io/ptw/internal/config"
	"hseptw.io/ptw/internal/governance/audit"
	"hseptw.io/ptw/internal/governance/workflow"
	"hseptw.io/ptw/internal/infrastructure"
	"hseptw.io/ptw/internal/pkg/logger"
	"hseptw.io/ptw/internal/pkg/worker"
	"hseptw.io/ptw/internal/repository"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module. DB, Pool and RiverClient are nil in
// memory mode.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
	Repository  repository.Repository
	AuditLogger *audit.Logger
	Policy      *workflow.Policy
}

// NewInfrastructure initializes storage, pools and shared services.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	policy, err := BuildPolicy(cfg.Workflow)
	if err != nil {
		return nil, fmt.Errorf("load role policy: %w", err)
	}

	infra := &Infrastructure{Config: cfg, Policy: policy}
	if cfg.Database.InMemory() {
		logger.Warn("Using in-memory record store, data is lost on restart")
		infra.Repository = repository.NewMemoryStore()
		infra.AuditLogger = audit.NewLogger(nil)
	} else {
		db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := db.AutoMigrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
		}
		infra.DB = db
		infra.Pool = db.Pool
		infra.Repository = repository.NewPostgresStore(db.Pool)
		infra.AuditLogger = audit.NewLogger(db.Pool)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		SweepPoolSize:   cfg.Worker.SweepPoolSize,
	})
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	infra.Pools = pools
	return infra, nil
}

// BuildPolicy picks the role table: policy file, then inline roles, then defaults.
func BuildPolicy(cfg config.WorkflowConfig) (*workflow.Policy, error) {
	if path := strings.TrimSpace(cfg.PolicyFile); path != "" {
		policy, err := workflow.LoadPolicyFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info("Role policy loaded from file", zap.String("path", path))
		return policy, nil
	}
	if len(cfg.Roles) > 0 {
		return workflow.NewPolicy(cfg.Roles)
	}
	return workflow.DefaultPolicy(), nil
}

// InitRiver initializes the River client on top of a prepared worker registry.
// It does nothing in memory mode.
func (i *Infrastructure) InitRiver(workers *river.Workers, periodic []*river.PeriodicJob) error {
	if i == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if i.DB == nil {
		return nil
	}
	if err := i.DB.InitRiverClient(workers, periodic, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// Package main prints development bearer tokens, one per configured role,
// and with -demo creates a validated sample prevention plan so permits can
// be drafted against it right away.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"hseptw.io/ptw/internal/api/middleware"
	"hseptw.io/ptw/internal/app/modules"
	"hseptw.io/ptw/internal/config"
	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/governance/approval"
	"hseptw.io/ptw/internal/governance/audit"
	"hseptw.io/ptw/internal/governance/workflow"
	"hseptw.io/ptw/internal/infrastructure"
	"hseptw.io/ptw/internal/pkg/logger"
	"hseptw.io/ptw/internal/repository"
	"hseptw.io/ptw/internal/risk"
)

func main() {
	demo := flag.Bool("demo", false, "create a validated sample prevention plan")
	flag.Parse()

	if err := run(*demo); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run(demo bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	policy, err := modules.BuildPolicy(cfg.Workflow)
	if err != nil {
		return fmt.Errorf("load role policy: %w", err)
	}
	if err := printTokens(os.Stdout, modules.JWTConfig(cfg.Security), policy); err != nil {
		return err
	}
	if !demo {
		return nil
	}
	if cfg.Database.InMemory() {
		return fmt.Errorf("-demo needs database.driver=postgres, a memory store does not outlive this command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	if err := repository.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	gw := approval.NewGateway(repository.NewPostgresStore(db.Pool), workflow.NewEngine(policy), audit.NewLogger(db.Pool))
	rec, err := seedDemoPlan(ctx, gw, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info("Demo prevention plan seeded",
		zap.String("record_id", rec.Header().ID),
		zap.String("reference_number", rec.Header().ReferenceNumber),
	)
	return nil
}

// printTokens writes "role<TAB>token" lines for every role of policy.
func printTokens(w io.Writer, cfg middleware.JWTConfig, policy *workflow.Policy) error {
	for _, role := range policy.Roles() {
		tok, _, err := middleware.GenerateToken(cfg, "dev-"+role, role, role)
		if err != nil {
			return fmt.Errorf("token for %s: %w", role, err)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", role, tok); err != nil {
			return err
		}
	}
	return nil
}

func seedDemoPlan(ctx context.Context, gw *approval.Gateway, now time.Time) (domain.Record, error) {
	owner := workflow.Actor{ID: "dev-" + workflow.RoleContractor, Role: workflow.RoleContractor}
	start, end := now, now.Add(30*24*time.Hour)
	plan := &domain.PreventionPlan{
		Envelope:        domain.Envelope{Kind: domain.KindPreventionPlan, PlannedStart: &start, PlannedEnd: &end},
		Contractor:      "Entreprise Demo",
		Site:            "Site principal",
		WorkDescription: "Maintenance annuelle des installations",
		RiskEntries: []domain.RiskEntry{{
			Hazard:      "Chute de plain-pied",
			Severity:    risk.SeverityMoyen,
			Probability: risk.ProbabilityPeuProbable,
			Mitigations: "Balisage, chaussures de securite",
		}},
	}

	rec, err := gw.Create(ctx, owner, plan)
	if err != nil {
		return nil, fmt.Errorf("create demo plan: %w", err)
	}
	id := rec.Header().ID
	if _, err := gw.Submit(ctx, id, owner); err != nil {
		return nil, fmt.Errorf("submit demo plan: %w", err)
	}
	manager := workflow.Actor{ID: "dev-" + workflow.RoleProjectManager, Role: workflow.RoleProjectManager}
	if _, err := gw.ApproveAsManager(ctx, id, manager, "demo"); err != nil {
		return nil, fmt.Errorf("approve demo plan: %w", err)
	}
	officer := workflow.Actor{ID: "dev-" + workflow.RoleHSEOfficer, Role: workflow.RoleHSEOfficer}
	ref := fmt.Sprintf("PP-DEMO-%s", now.Format("20060102150405"))
	return gw.ApproveAsSafetyOfficer(ctx, id, officer, ref, "demo")
}

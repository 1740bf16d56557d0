// Package main seeds a PDSNO deployment for local development: a global
// controller has no parent to run the admission handshake against, so its
// very first identity must be written directly into the NIB.
//
// Database and NIB schema migrations are expected to run before this
// command; seeding only performs an idempotent identity bootstrap.
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/admission"
	"pdsno.io/controller/internal/config"
	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/infrastructure"
	"pdsno.io/controller/internal/nib"
	"pdsno.io/controller/internal/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a bootstrap global controller identity for local development",
	RunE:  runSeed,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Controller.Role != string(domain.RoleGlobal) {
		logger.Info("seed is a no-op for non-global roles; regional/local controllers join via the admission protocol",
			zap.String("role", cfg.Controller.Role))
		return nil
	}

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open nib store: %w", err)
	}
	defer closeStore()

	existing, err := store.ListControllers(ctx, "")
	if err != nil {
		return fmt.Errorf("list controllers: %w", err)
	}
	for _, c := range existing {
		if c.Role == domain.RoleGlobal && c.Status == domain.ControllerStatusActive {
			logger.Info("global controller already seeded, skipping", zap.String("controller_id", c.ControllerID))
			return nil
		}
	}

	rootKey, err := admission.DecodeRootKey(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("decode root key: %w", err)
	}
	issuerKey := admission.IssuerKeyFromRoot(rootKey)

	controllerID := "global_cntl_" + uuid.NewString()[:8]
	controller := &domain.Controller{
		ControllerID: controllerID,
		Role:         domain.RoleGlobal,
		Status:       domain.ControllerStatusActive,
		ValidatedBy:  controllerID,
		ValidatedAt:  time.Now(),
		PublicKey:    issuerKey.Public().(ed25519.PublicKey),
		Capabilities: []string{"validate_regional", "approve_high", "approve_emergency"},
	}

	cert, err := admission.IssueCertificate(issuerKey, controllerID, controller, cfg.Admission.CertificateTTL)
	if err != nil {
		return fmt.Errorf("self-issue global certificate: %w", err)
	}
	controller.Certificate = cert

	if err := store.PutController(ctx, controller, 0); err != nil {
		return fmt.Errorf("persist global controller: %w", err)
	}
	if err := store.AppendEvent(ctx, &domain.Event{
		EventID:   uuid.NewString(),
		EventType: domain.EventControllerValidated,
		ActorID:   controllerID,
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("append validation event: %w", err)
	}

	logger.Info("seeded global controller identity",
		zap.String("controller_id", controllerID),
		zap.String("encryption_key_source", "security.encryption_key"),
	)
	fmt.Printf("global controller seeded: %s\n", controllerID)
	fmt.Println("set CONTROLLER_CONTROLLER_ID to this value for the global controller process")
	return nil
}

// openStore opens the configured NIB backend directly, without the rest of
// the module-composed Infrastructure (worker pools, River, envelope auth),
// since seeding is a one-shot write that outlives no process.
func openStore(ctx context.Context, cfg *config.Config) (nib.Store, func(), error) {
	if cfg.Controller.NIBBackend == "badger" {
		store, err := nib.NewBadgerStore(cfg.Controller.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	store := nib.NewPostgresStore(db.Pool)
	return store, func() { db.Close() }, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/database"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/odoo"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:               "erp-sync",
	Short:             "Bridge between the delivery and CRM store and Odoo",
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file (empty for environment only)")
	rootCmd.AddCommand(serveCmd, migrateCmd, pullCmd, syncLeadsCmd)
}

func setup(_ *cobra.Command, _ []string) error {
	path := cfgFile
	if _, err := os.Stat(path); path != "" && os.IsNotExist(err) {
		path = ""
	}

	var err error
	cfg, err = config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var opts []logger.Option
	if cfg.Logging.File != "" {
		opts = append(opts, logger.WithFile(cfg.Logging.File, cfg.Logging.MaxSizeMB))
	}
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format, opts...); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	return nil
}

// app holds the components shared by every command.
type app struct {
	store   store.Store
	engine  *sync.Engine
	manager *sync.Manager
}

func newApp() (*app, error) {
	var stateStore store.Store
	switch cfg.StateStorage.Type {
	case "memory":
		logger.Log.Warn("Using in-memory state storage; nothing survives a restart")
		stateStore = store.NewMemoryStore()
	default:
		db, err := database.NewDatabase(cfg.StateStorage.Connection())
		if err != nil {
			return nil, fmt.Errorf("failed to init state store: %w", err)
		}
		stateStore = store.NewMySQLStore(db)
	}

	client := odoo.NewClient(cfg.Odoo)
	engine := sync.NewEngine(cfg.Sync, client, stateStore, nil)
	return &app{
		store:   stateStore,
		engine:  engine,
		manager: sync.NewManager(cfg.Sync, engine),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Log.Error("Failed to close state store", zap.Error(err))
	}
	logger.Sync()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/adapter/repo"
	ledgerapi "github.com/imagaram/sfr-backend-sub001/internal/ledger/api"
	ledgersvc "github.com/imagaram/sfr-backend-sub001/internal/ledger/service"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/config"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/database"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/logger"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/retrier"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/server"
	rewardjournal "github.com/imagaram/sfr-backend-sub001/internal/reward/adapter/journal"
	rewardapi "github.com/imagaram/sfr-backend-sub001/internal/reward/api"
	rewarddomain "github.com/imagaram/sfr-backend-sub001/internal/reward/domain"
	rewardsvc "github.com/imagaram/sfr-backend-sub001/internal/reward/service"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the balance and transaction tables",
	RunE:  runMigrate,
}

// bootstrap 配置 + 日志 + 数据库，serve 和 migrate 共用
func bootstrap() (*viper.Viper, *config.Config, *zap.Logger, *gorm.DB, error) {
	v := viper.New()
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	appLogger, err := logger.NewLogger(cfg.Server.Mode, cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "init logger")
	}
	db, err := database.NewDB(cfg.Database, appLogger)
	if err != nil {
		_ = appLogger.Sync()
		return nil, nil, nil, nil, err
	}
	return v, cfg, appLogger, db, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, _, appLogger, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = appLogger.Sync() }()

	if err := repo.AutoMigrate(db); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	appLogger.Info("sfrt schema migrated")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	v, cfg, appLogger, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = appLogger.Sync() }()

	if cfg.Database.Driver == "sqlite" {
		// sqlite 一般用于本地，启动时直接建表
		if err := repo.AutoMigrate(db); err != nil {
			return errors.Wrap(err, "auto migrate")
		}
	}

	// -- Ledger Module --
	balanceRepo := repo.NewBalanceRepo(db)
	txRepo := repo.NewTransactionRepo(db)
	ledgerSvc := ledgersvc.NewLedgerService(db, balanceRepo, txRepo, appLogger,
		ledgersvc.WithErrorClassifier(repo.ClassifyError),
		ledgersvc.WithRetryOptions(
			retrier.WithMaxRetries(cfg.Ledger.MaxRetries),
			retrier.WithInitialInterval(cfg.Ledger.InitialInterval),
			retrier.WithMaxInterval(cfg.Ledger.MaxInterval),
			retrier.WithMultiplier(cfg.Ledger.Multiplier),
			retrier.WithJitter(cfg.Ledger.Jitter),
		),
	)
	statsSvc := ledgersvc.NewStatsService(balanceRepo, txRepo, appLogger)

	// -- Reward Module --
	var journal rewarddomain.Journal
	if cfg.Journal.Enabled {
		j, err := rewardjournal.Open(cfg.Journal.Dir, appLogger)
		if err != nil {
			return err
		}
		defer func() {
			if err := j.Close(); err != nil {
				appLogger.Error("failed to close distribution journal", zap.Error(err))
			}
		}()
		journal = j
	}
	distSvc := rewardsvc.NewDistributionService(ledgerSvc, config.NewViperParameters(v), journal, appLogger)

	srv := server.NewServer(
		appLogger,
		cfg.Server.Port,
		cfg.Server.Mode,
		ledgerapi.NewLedgerHandler(ledgerSvc, statsSvc),
		rewardapi.NewRewardHandler(distSvc, ledgerSvc),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Error("Server startup failed", zap.Error(err))
		}
		return err
	case sig := <-quit:
		appLogger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "graceful shutdown")
	}
	return <-errCh
}

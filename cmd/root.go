package cmd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	coreconfig "github.com/propertydesk/groupqueue/core/config"
	coreDB "github.com/propertydesk/groupqueue/core/database"
	"github.com/propertydesk/groupqueue/infrastructure/transport"
	"github.com/propertydesk/groupqueue/infrastructure/valkey"
	"github.com/propertydesk/groupqueue/pkg/utils"
	"github.com/propertydesk/groupqueue/queue/domain"
	"github.com/propertydesk/groupqueue/queue/repository"
	"github.com/propertydesk/groupqueue/queue/usecase"
)

// runtime bundles everything a subcommand needs, wired once in buildRuntime.
type runtime struct {
	cfg        *coreconfig.Config
	repo       repository.IQueueRepository
	sender     domain.Sender
	vkClient   *valkey.Client
	service    *usecase.PostQueueService
	dispatcher *usecase.Dispatcher
}

var rootCmd = &cobra.Command{
	Use:   "groupqueue",
	Short: "Durable group posting queue for property listings",
	Long: `Accepts property listings and requirements, stores them durably and
dispatches them to WhatsApp groups on schedule with at-least-once delivery.`,
}

func init() {
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}

func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	rt := &runtime{cfg: cfg}

	switch cfg.Database.Driver {
	case "memory":
		logrus.Warn("[STORE] memory driver selected, queue contents will not survive a restart")
		rt.repo = repository.NewMemoryQueueRepository()
	default:
		db, err := coreDB.NewDatabase(cfg)
		if err != nil {
			return nil, err
		}
		rt.repo = repository.NewQueueGormRepository(db)
	}
	if err := rt.repo.Init(ctx); err != nil {
		return nil, err
	}

	if cfg.Gateway.URL != "" {
		rt.sender = transport.NewGatewaySender(cfg.Gateway.URL, cfg.Gateway.Token, 0)
	} else {
		logrus.Warn("[SEND] GATEWAY_URL not set, deliveries will be logged instead of sent")
		rt.sender = transport.NewDryRunSender()
	}

	if cfg.Valkey.Enabled {
		vkClient, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			logrus.Warnf("[VALKEY] connection failed, continuing single-node: %v", err)
		} else {
			rt.vkClient = vkClient
		}
	}

	rt.service = usecase.NewPostQueueService(rt.repo, cfg.Queue.DefaultTargets)
	rt.dispatcher = usecase.NewDispatcher(rt.repo, rt.sender, rt.vkClient, usecase.DispatcherConfig{
		PollInterval: cfg.Queue.PollInterval,
		BatchSize:    cfg.Queue.BatchSize,
		StaleLease:   cfg.Queue.StaleLease,
		DryRun:       cfg.Queue.DryRun,
		Workers:      cfg.Queue.Workers,
	})

	return rt, nil
}

func (rt *runtime) close() {
	if rt.vkClient != nil {
		rt.vkClient.Close()
	}
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/propertydesk/groupqueue/pkg/utils"
	"github.com/propertydesk/groupqueue/queue/usecase"
	"github.com/propertydesk/groupqueue/ui/rest"
	"github.com/propertydesk/groupqueue/ui/rest/middleware"
	"github.com/propertydesk/groupqueue/ui/websocket"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the queue API over http",
	Run:   restServer,
}

func init() {
	restCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := buildRuntime(ctx)
	if err != nil {
		logrus.Fatalln("Failed to initialize:", err)
	}
	defer rt.close()

	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		rt.cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}

	app := fiber.New(fiber.Config{
		Network:               "tcp",
		AppName:               "Group Posting Queue",
		DisableStartupMessage: false,
		ServerHeader:          "Hidden",
	})

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if rt.cfg.App.Debug {
		app.Use(logger.New())
	}

	apiGroup := app.Group("/api")

	if len(rt.cfg.App.BasicAuth) > 0 {
		account := make(map[string]string)
		for _, basicAuth := range rt.cfg.App.BasicAuth {
			ba := strings.Split(basicAuth, ":")
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please use the format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		apiGroup.Use(basicauth.New(basicauth.Config{Users: account}))
	} else {
		logrus.Warn("[REST] APP_BASIC_AUTH not set, API is unauthenticated")
	}

	rest.InitRestQueue(apiGroup, rt.service, rt.dispatcher)
	rest.InitRestHealth(apiGroup, rt.repo, rt.cfg.App.Version, rt.cfg.Queue.Enabled)

	hub := websocket.NewHub(rt.vkClient, utils.GetPersistentServerID(rt.cfg.App.ServerID, "storages"))
	hub.RegisterRoutes(apiGroup)
	go hub.Run()

	rt.dispatcher.SetNotify(func(result usecase.CycleResult) {
		hub.Publish(websocket.BroadcastMessage{
			Code:    "DISPATCH_CYCLE",
			Message: "Dispatch cycle completed",
			Result:  result,
		})
	})

	if rt.cfg.Queue.Enabled {
		go rt.dispatcher.Run(ctx)
	} else {
		logrus.Info("[DISPATCH] loop disabled, only forced dispatch is available")
	}

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Termination signal received, shutting down gracefully...")
		cancel()
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + rt.cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}

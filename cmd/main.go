package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/database/postgres"
	"settlement-service/internal/database/redis"
	"settlement-service/internal/event"
	"settlement-service/internal/handlers"
	"settlement-service/internal/repository"
	"settlement-service/internal/services"
	"settlement-service/internal/worker"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/agrisa", "log", "settlement_service")
	err := os.MkdirAll(logDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(file, nil)))
	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		fmt.Printf("Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	cfg := config.New()

	db, err := postgres.ConnectAndCreateDB(cfg.PostgresCfg)
	if err != nil {
		slog.Error("error connecting to database", "error", err)
		go postgres.RetryConnectOnFailed(30*time.Second, &db, cfg.PostgresCfg)
	}

	var journal *repository.SettlementJournal
	if db != nil {
		journal = repository.NewSettlementJournal(db)
		if err := journal.EnsureSchema(context.Background()); err != nil {
			slog.Error("error ensuring journal schema", "error", err)
		}
	}

	var severities *repository.SeverityCache
	redisClient, err := redis.NewRedisClient(cfg.RedisCfg.Host, cfg.RedisCfg.Port, cfg.RedisCfg.Password, cfg.RedisCfg.DB)
	if err != nil {
		slog.Error("error connecting to redis, severity cache disabled", "error", err)
	} else {
		defer redisClient.Close()
		severities = repository.NewSeverityCache(redisClient.GetClient())
	}

	var publisher *event.ProtocolPublisher
	rabbitConn, err := event.ConnectRabbitMQ(cfg.RabbitMQCfg)
	if err != nil {
		slog.Error("error connecting to rabbitmq, event publishing disabled", "error", err)
	} else {
		defer rabbitConn.Close()
		publisher = event.NewProtocolPublisher(rabbitConn)
	}

	recorder := event.NewRecorder(journal, publisher, severities)

	gatekeeper := services.NewGatekeeper(cfg.Deployer, recorder)
	oracleEscrow := services.NewEscrow("oracle", recorder)
	insuranceEscrow := services.NewEscrow("insurance", recorder)
	oracle := services.NewOracleCore(gatekeeper, oracleEscrow, cfg.ProtocolCfg, recorder)
	pool := services.NewInsurancePool(gatekeeper, oracle, insuranceEscrow, cfg.ProtocolCfg, recorder)

	app := fiber.New()
	app.Get("/checkhealth", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("Settlement service is healthy")
	})

	middleware := handlers.NewMiddleware(cfg.JWTSecret)
	handlers.NewGatekeeperHandler(gatekeeper, middleware).Register(app)
	handlers.NewOracleHandler(oracle, severities, middleware).Register(app)
	handlers.NewInsuranceHandler(pool, middleware).Register(app)
	handlers.NewEscrowHandler(oracleEscrow, insuranceEscrow, middleware).Register(app)
	if journal != nil {
		handlers.NewEventHandler(journal, middleware).Register(app)
	}

	if cfg.KeeperCfg.Account != "" {
		automaton := worker.NewKeeperAutomaton(oracle, pool, cfg.KeeperCfg)
		if err := automaton.Start(); err != nil {
			slog.Error("error starting keeper automaton", "error", err)
		} else {
			defer automaton.Stop()
		}
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "port", cfg.Port)
		if err := app.Listen(fmt.Sprintf("0.0.0.0:%s", cfg.Port)); err != nil {
			slog.Error("error starting server", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownChan
	slog.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}

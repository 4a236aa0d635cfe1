package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andrelucas-arraes/telegram-assistant-bot/api"
	"github.com/andrelucas-arraes/telegram-assistant-bot/database"
	"github.com/andrelucas-arraes/telegram-assistant-bot/integrations"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/conflict"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/notify"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/refresh"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/schedule"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/snapshot"
)

func main() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if levelStr == "" {
		levelStr = "debug"
	}
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      true,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		zap.L().Fatal("Error reading config file", zap.Error(err))
	}

	loc := time.Local
	if tz := viper.GetString("assistant.timezone"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			zap.L().Fatal("Invalid assistant.timezone", zap.String("timezone", tz), zap.Error(err))
		}
	}

	db := database.Init(viper.GetString("database.path"))
	sqlDB, _ := db.DB()

	ctx := context.Background()

	calClient, err := integrations.NewCalendarClient(ctx)
	if err != nil {
		zap.L().Fatal("Failed to initialise Google Calendar client", zap.Error(err))
	}
	tasksClient, err := integrations.NewTasksClient(ctx)
	if err != nil {
		zap.L().Fatal("Failed to initialise Google Tasks client", zap.Error(err))
	}
	zap.L().Info("Successfully authenticated with Google APIs.")

	var boardIDs []string
	if err := viper.UnmarshalKey("trello.board_ids", &boardIDs); err != nil || len(boardIDs) == 0 {
		zap.L().Fatal("trello.board_ids is not configured properly", zap.Error(err))
	}
	trelloClient := integrations.NewTrelloClient(
		viper.GetString("trello.api_key"),
		viper.GetString("trello.api_token"),
		boardIDs,
	)

	telegramClient := integrations.NewTelegramClient(viper.GetString("telegram.bot_token"))

	var recipients []string
	if err := viper.UnmarshalKey("telegram.chat_ids", &recipients); err != nil || len(recipients) == 0 {
		zap.L().Fatal("telegram.chat_ids is not configured properly", zap.Error(err))
	}

	store := snapshot.NewStore(
		viper.GetString("snapshot.path"),
		time.Duration(viper.GetFloat64("snapshot.staleness_hours")*float64(time.Hour)),
	)

	orchestrator := &refresh.Orchestrator{
		Store:      store,
		Events:     calClient,
		Tasks:      tasksClient,
		Cards:      trelloClient,
		Messenger:  telegramClient,
		Recipients: recipients,
		MaxTasks:   viper.GetInt("digest.max_tasks"),
		MaxCards:   viper.GetInt("digest.max_cards"),
		Location:   loc,
	}

	notifier := &notify.Scheduler{
		Store:      store,
		Messenger:  telegramClient,
		Recipients: recipients,
		Notified:   notify.NewNotifiedSet(),
		WindowMin:  time.Duration(viper.GetFloat64("reminder.window_min_minutes") * float64(time.Minute)),
		WindowMax:  time.Duration(viper.GetFloat64("reminder.window_max_minutes") * float64(time.Minute)),
	}

	engine := &conflict.Engine{
		Events:   calClient,
		Location: loc,
	}

	if store.Load() {
		zap.L().Info("Snapshot needs refresh, fetching now")
		go func() {
			if err := orchestrator.RefreshAll(ctx); err != nil {
				zap.L().Error("Initial refresh failed", zap.Error(err))
			}
		}()
	}

	cronScheduler := schedule.NewCronScheduler(loc)
	registerJobs(cronScheduler, orchestrator, notifier)
	cronScheduler.Start()

	router := gin.Default()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	apiHandler := &api.Handler{
		DB:           db,
		Orchestrator: orchestrator,
		Engine:       engine,
		Calendar:     calClient,
	}
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/health", apiHandler.HealthCheckHandler)
		apiGroup.POST("/refresh", apiHandler.RefreshHandler)
		apiGroup.POST("/bookings", apiHandler.BookingHandler)
	}

	port := viper.GetString("server.port")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	zap.L().Info("Starting server", zap.String("port", port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	var once sync.Once

	cleanup := func(reason string) {
		zap.L().Info("Shutdown initiated", zap.String("reason", reason))

		<-cronScheduler.Stop().Done()
		zap.L().Info("Scheduler stopped.")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		zap.L().Info("Shutting down HTTP server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Error shutting down server", zap.Error(err))
		} else {
			zap.L().Info("HTTP server shut down gracefully.")
		}

		if sqlDB != nil {
			if err := sqlDB.Close(); err != nil {
				zap.L().Error("Error closing database", zap.Error(err))
			} else {
				zap.L().Info("Database connection closed.")
			}
		}
		close(done)
	}

	go func() {
		sig := <-sigCh
		once.Do(func() {
			cleanup(sig.String())
		})

		// if a second signal is caught, exit immediately
		go func() {
			<-sigCh
			zap.L().Info("Second interrupt signal received. Exiting immediately.")
			os.Exit(1)
		}()
	}()

	<-done
	zap.L().Info("Exiting...")
}

func setDefaults() {
	viper.SetDefault("database.path", "assistant.db")
	viper.SetDefault("snapshot.path", "snapshot.json")
	viper.SetDefault("snapshot.staleness_hours", 2.0)
	viper.SetDefault("reminder.window_min_minutes", 14.0)
	viper.SetDefault("reminder.window_max_minutes", 15.5)
	viper.SetDefault("digest.morning_hour", 8)
	viper.SetDefault("digest.afternoon_hour", 14)
	viper.SetDefault("digest.max_tasks", 10)
	viper.SetDefault("digest.max_cards", 10)
}

func registerJobs(reg schedule.Registrar, orchestrator *refresh.Orchestrator, notifier *notify.Scheduler) {
	ctx := context.Background()

	refreshAll := func() {
		if err := orchestrator.RefreshAll(ctx); err != nil {
			zap.L().Error("Scheduled refresh failed, keeping previous snapshot", zap.Error(err))
		}
	}

	jobs := []struct {
		spec string
		job  func()
	}{
		{"0 * * * *", refreshAll},
		{fmt.Sprintf("0 %d * * *", viper.GetInt("digest.morning_hour")), func() {
			refreshAll()
			orchestrator.SendMorningDigest(ctx)
		}},
		{fmt.Sprintf("0 %d * * *", viper.GetInt("digest.afternoon_hour")), func() {
			refreshAll()
			orchestrator.SendAfternoonDigest(ctx)
		}},
		{"* * * * *", func() { notifier.Scan(ctx) }},
	}

	for _, j := range jobs {
		if err := reg.Register(j.spec, j.job); err != nil {
			zap.L().Fatal("Failed to register scheduled job", zap.String("spec", j.spec), zap.Error(err))
		}
	}
}

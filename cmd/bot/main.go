// Package main - точка входа для бота приёма отчётов по экзаменам.
//
// Студенты регистрируются через Telegram, подают отчёты о спорных вопросах
// экзаменов с фотографией, а администраторы управляют экзаменами и
// рассылками через Mini App панель.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries/Conversation)
// - Infrastructure: хранилище JSON-документов, внешние API
// - Interface: Telegram Bot, HTTP endpoints
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denemerapor/exam-report-hub/config"

	// Application layer
	"github.com/denemerapor/exam-report-hub/internal/application/command"
	"github.com/denemerapor/exam-report-hub/internal/application/conversation"
	"github.com/denemerapor/exam-report-hub/internal/application/query"

	// Infrastructure layer
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/auth"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/external/sheets"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/external/telegram"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/persistence/jsonstore"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/persistence/memory"

	// Interface layer
	httpserver "github.com/denemerapor/exam-report-hub/internal/interface/http"
	tginterface "github.com/denemerapor/exam-report-hub/internal/interface/telegram"

	// Packages
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{Level: logger.ParseLevel(cfg.LogLevel)})
	log.Info("starting exam report hub",
		logger.String("log_level", cfg.LogLevel),
		logger.Int("port", cfg.Admin.Port),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ JSON-ДОКУМЕНТОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("opening document store", logger.String("data_dir", cfg.Storage.DataDir))
	store, err := jsonstore.Open(cfg.Storage.DataDir, log)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	if err := store.Seed(time.Now()); err != nil {
		return fmt.Errorf("failed to seed document store: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.UploadsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create uploads dir: %w", err)
	}

	sessions := memory.NewSessionStore()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ВНЕШНИЕ КЛИЕНТЫ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing external clients...")

	tgConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
	tgClient := telegram.NewClient(tgConfig)

	sheetsConfig := sheets.DefaultClientConfig(cfg.Sheets.APIKey, cfg.Sheets.SpreadsheetID)
	sheetsConfig.ReadRange = cfg.Sheets.ReadRange
	sheetsClient := sheets.NewClient(sheetsConfig)

	gate := auth.NewGate(cfg.Telegram.Token, cfg.Admin.AllowedIDs, cfg.Admin.OpenMode)
	if cfg.Admin.OpenMode {
		log.Warn("admin panel allow-list is DISABLED (ADMIN_OPEN_MODE)")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER (Commands, Queries, Conversation)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	transport := tginterface.NewTransport(tgClient, cfg.Storage.UploadsDir)

	engine := conversation.NewEngine(conversation.Config{
		Sessions:  sessions,
		Students:  store.Students(),
		Exams:     store.Exams(),
		Reports:   store.Reports(),
		Lookup:    sheetsClient,
		Transport: transport,
		Logger:    log,
	})

	createExamCmd := command.NewCreateExamHandler(store.Exams())
	deleteExamCmd := command.NewDeleteExamHandler(store.Exams(), store.Reports(), log)
	broadcastCmd := command.NewBroadcastHandler(store.Students(), transport, log)
	setUsernameCmd := command.NewSetUsernameHandler(store.Students(), store.Reports(), log)

	listExamsQuery := query.NewListExamsHandler(store.Exams(), store.Reports())
	examReportsQuery := query.NewExamReportsHandler(store.Reports())
	studentReportsQuery := query.NewStudentReportsHandler(store.Reports())
	studentStatsQuery := query.NewStudentStatsHandler(store.Students(), store.Reports())

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP API ДЛЯ ПАНЕЛИ
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.Admin.Host
	httpConfig.Port = cfg.Admin.Port
	httpConfig.UploadsDir = cfg.Storage.UploadsDir

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Gate:           gate,
		CreateExam:     createExamCmd,
		DeleteExam:     deleteExamCmd,
		Broadcast:      broadcastCmd,
		ListExams:      listExamsQuery,
		ExamReports:    examReportsQuery,
		StudentReports: studentReportsQuery,
		StudentStats:   studentStatsQuery,
		AllReports:     query.NewAllReportsHandler(store.Reports()),
		Students:       store.Students(),
		Logger:         log,
	})

	serverErrCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	router := tginterface.NewRouter(tginterface.RouterConfig{
		Engine:      engine,
		SetUsername: setUsernameCmd,
		Transport:   transport,
		AdminURL:    cfg.Admin.PanelURL,
		Logger:      log,
	})

	botConfig := tginterface.DefaultBotConfig()
	botConfig.PollingTimeout = cfg.Telegram.PollingTimeout
	botConfig.Logger = log
	bot, err := tginterface.NewBot(botConfig, tgClient, router)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	botErrCh := make(chan error, 1)
	go func() {
		botErrCh <- bot.Run(ctx)
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ОЖИДАНИЕ ЗАВЕРШЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("http server failed", logger.Err(err))
		}
	case err := <-botErrCh:
		if err != nil {
			log.Error("bot stopped with error", logger.Err(err))
		}
	}

	// Graceful shutdown: stop polling, then drain the HTTP server.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}

	log.Info("shutdown complete")
	return nil
}

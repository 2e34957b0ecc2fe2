// Package telegram implements the bot interface for the exam report hub.
// It is the entry point for all student interactions: registration, report
// intake and the admin panel button.
package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/denemerapor/exam-report-hub/internal/infrastructure/external/telegram"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// PollingTimeout is the long-poll timeout in seconds.
	PollingTimeout int

	// MaxConcurrentUpdates limits parallel update processing. Same-user
	// ordering is still guaranteed by the conversation engine's locks.
	MaxConcurrentUpdates int

	// GracefulShutdownTimeout bounds the wait for in-flight handlers.
	GracefulShutdownTimeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		PollingTimeout:          30,
		MaxConcurrentUpdates:    32,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot runs the long-polling loop and feeds updates into the router.
type Bot struct {
	config BotConfig
	client *telegram.Client
	router *Router
	log    *logger.Logger

	running   bool
	runningMu sync.Mutex
	updateSem chan struct{}
	wg        sync.WaitGroup
}

// NewBot creates the bot.
func NewBot(config BotConfig, client *telegram.Client, router *Router) (*Bot, error) {
	if client == nil {
		return nil, errors.New("telegram client is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}
	if config.PollingTimeout <= 0 {
		config.PollingTimeout = DefaultBotConfig().PollingTimeout
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = DefaultBotConfig().MaxConcurrentUpdates
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = DefaultBotConfig().GracefulShutdownTimeout
	}
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Bot{
		config:    config,
		client:    client,
		router:    router,
		log:       log.With(logger.Component("bot")),
		updateSem: make(chan struct{}, config.MaxConcurrentUpdates),
	}, nil
}

// Run verifies the token and polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.runningMu.Unlock()

	me, err := b.client.GetMe(ctx)
	if err != nil {
		return err
	}
	b.log.Info("bot verified",
		logger.Int64("id", me.ID),
		logger.String("username", me.Username),
	)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return b.drain()
		default:
		}

		updates, err := b.client.GetUpdates(ctx, offset, 100, b.config.PollingTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return b.drain()
			}
			b.log.Error("get updates failed", logger.Err(err))
			// Back off so a persistent API failure does not spin.
			select {
			case <-ctx.Done():
				return b.drain()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch hands one update to the router on its own goroutine, bounded by
// the semaphore.
func (b *Bot) dispatch(ctx context.Context, update telegram.Update) {
	select {
	case b.updateSem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	b.wg.Add(1)
	go func(u telegram.Update) {
		defer b.wg.Done()
		defer func() { <-b.updateSem }()
		defer func() {
			if rec := recover(); rec != nil {
				b.log.Error("panic while handling update",
					logger.Int64("update_id", u.UpdateID),
					logger.Any("panic", rec),
				)
			}
		}()

		if err := b.router.Route(ctx, &u); err != nil {
			b.log.Error("failed to handle update",
				logger.Int64("update_id", u.UpdateID),
				logger.Err(err),
			)
		}
	}(update)
}

// drain waits for in-flight handlers, bounded by the shutdown timeout.
func (b *Bot) drain() error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("all handlers completed")
		return nil
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.log.Warn("graceful shutdown timeout exceeded")
		return nil
	}
}

package command

import (
	"context"
	"strings"
	"time"

	"github.com/denemerapor/exam-report-hub/internal/domain/shared"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST COMMAND
// Sends an admin announcement to every registered student. Sends are strictly
// sequential with a fixed pause between recipients so the messaging API's
// rate limits are never tripped; one blocked recipient does not stop the rest.
// ══════════════════════════════════════════════════════════════════════════════

// broadcastPrefix marks every announcement so recipients can tell it apart
// from conversational replies.
const broadcastPrefix = "📢 Yönetici duyurusu:\n\n"

// defaultBroadcastDelay is the pause between consecutive sends.
const defaultBroadcastDelay = 400 * time.Millisecond

// BroadcastSender delivers one message to one chat.
type BroadcastSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// BroadcastCommand contains the announcement to deliver.
type BroadcastCommand struct {
	// Message is the announcement body, without the prefix.
	Message string
}

// Validate validates the command.
func (c BroadcastCommand) Validate() error {
	if strings.TrimSpace(c.Message) == "" {
		return shared.NewDomainError("broadcast", "Broadcast", shared.ErrValidation, "message must not be empty")
	}
	return nil
}

// BroadcastResult summarizes delivery.
type BroadcastResult struct {
	// Total is the number of registered students.
	Total int

	// Sent is how many deliveries succeeded.
	Sent int

	// Failed is how many deliveries errored.
	Failed int
}

// BroadcastHandler handles the BroadcastCommand.
type BroadcastHandler struct {
	students student.Repository
	sender   BroadcastSender
	delay    time.Duration
	log      *logger.Logger
}

// NewBroadcastHandler creates a new BroadcastHandler.
func NewBroadcastHandler(students student.Repository, sender BroadcastSender, log *logger.Logger) *BroadcastHandler {
	if log == nil {
		log = logger.Default()
	}
	return &BroadcastHandler{
		students: students,
		sender:   sender,
		delay:    defaultBroadcastDelay,
		log:      log.With(logger.Component("broadcast")),
	}
}

// WithDelay overrides the inter-send pause. Used by tests.
func (h *BroadcastHandler) WithDelay(d time.Duration) *BroadcastHandler {
	h.delay = d
	return h
}

// Handle executes the broadcast command.
func (h *BroadcastHandler) Handle(ctx context.Context, cmd BroadcastCommand) (*BroadcastResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	all, err := h.students.All(ctx)
	if err != nil {
		return nil, err
	}

	text := broadcastPrefix + strings.TrimSpace(cmd.Message)
	result := &BroadcastResult{Total: len(all)}

	first := true
	for id := range all {
		if !first {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(h.delay):
			}
		}
		first = false

		chatID, err := id.Int64()
		if err != nil {
			result.Failed++
			h.log.Warn("broadcast skipped malformed user id", logger.UserID(id.String()))
			continue
		}

		if err := h.sender.SendMessage(ctx, chatID, text); err != nil {
			result.Failed++
			h.log.Warn("broadcast delivery failed", logger.UserID(id.String()), logger.Err(err))
			continue
		}
		result.Sent++
	}

	h.log.Info("broadcast finished",
		logger.Int("total", result.Total),
		logger.Int("sent", result.Sent),
		logger.Int("failed", result.Failed),
	)
	return result, nil
}

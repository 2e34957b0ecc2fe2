package telegram

import (
	"context"
	"fmt"

	"github.com/denemerapor/exam-report-hub/internal/application/command"
	"github.com/denemerapor/exam-report-hub/internal/application/conversation"
	"github.com/denemerapor/exam-report-hub/internal/domain/student"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/external/telegram"
	"github.com/denemerapor/exam-report-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Maps raw updates onto the conversation engine and the /ek command handler.
// Only private chats are served; group noise is dropped before dispatch.
// ══════════════════════════════════════════════════════════════════════════════

// Replies of the /ek command.
const (
	msgEkNotRegistered = "Önce /start ile kayıt olun."
	msgEkInvalid       = "Geçerli bir kullanıcı adı bulunamadı.\nSeçenekler:\n• Telegram ayarlarından bir kullanıcı adı belirleyin ve /ek yazın\n• Veya /ek @kullanici_adiniz biçiminde gönderin"
	msgEkUnchanged     = "Kayıtlı kullanıcı adınız zaten @%s."
	msgEkUpdated       = "Kullanıcı adınız kaydedildi: @%s"
	msgAdminButton     = "Yönetici paneli:"
	btnAdminPanel      = "Paneli Aç"
)

// Router dispatches updates.
type Router struct {
	engine      *conversation.Engine
	setUsername *command.SetUsernameHandler
	transport   *Transport
	adminURL    string
	log         *logger.Logger
}

// RouterConfig bundles the router dependencies.
type RouterConfig struct {
	Engine      *conversation.Engine
	SetUsername *command.SetUsernameHandler
	Transport   *Transport

	// AdminURL is the Mini App address opened by /adminbtn.
	AdminURL string

	Logger *logger.Logger
}

// NewRouter creates the update router.
func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Router{
		engine:      cfg.Engine,
		setUsername: cfg.SetUsername,
		transport:   cfg.Transport,
		adminURL:    cfg.AdminURL,
		log:         log.With(logger.Component("router")),
	}
}

// Route handles one update.
func (r *Router) Route(ctx context.Context, update *telegram.Update) error {
	switch {
	case update.Message != nil:
		return r.routeMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		return r.routeCallback(ctx, update.CallbackQuery)
	default:
		return nil
	}
}

// routeMessage dispatches a message to the matching flow.
func (r *Router) routeMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.From == nil || !telegram.IsPrivateChat(msg) {
		return nil
	}

	in := conversation.Incoming{
		UserID:   msg.From.ID,
		ChatID:   msg.Chat.ID,
		Username: msg.From.Username,
		Text:     msg.Text,
	}

	if cmd := telegram.ExtractCommand(msg); cmd != "" {
		switch cmd {
		case "start":
			return r.engine.StartRegistration(ctx, in)
		case "rapor":
			return r.engine.StartReport(ctx, in)
		case "iptal":
			return r.engine.Cancel(ctx, in)
		case "ek":
			return r.handleEk(ctx, in, telegram.ExtractCommandArgs(msg))
		case "adminbtn":
			return r.handleAdminButton(ctx, in)
		default:
			// Unknown commands are ignored, same as stray text.
			return nil
		}
	}

	// Photos may arrive as a photo album entry or as an image document.
	if photo := telegram.BestPhoto(msg); photo != nil {
		in.FileID = photo.FileID
		return r.engine.HandlePhoto(ctx, in)
	}
	if msg.Document != nil && msg.Document.IsImage() {
		in.FileID = msg.Document.FileID
		return r.engine.HandlePhoto(ctx, in)
	}

	if msg.Text != "" {
		return r.engine.HandleText(ctx, in)
	}
	return nil
}

// routeCallback dispatches an inline-keyboard press.
func (r *Router) routeCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.From == nil || cq.Message == nil {
		return nil
	}
	return r.engine.HandleCallback(ctx, conversation.Incoming{
		UserID:       cq.From.ID,
		ChatID:       cq.Message.Chat.ID,
		Username:     cq.From.Username,
		CallbackID:   cq.ID,
		CallbackData: cq.Data,
	})
}

// handleEk runs the set-username command and translates its outcome.
func (r *Router) handleEk(ctx context.Context, in conversation.Incoming, arg string) error {
	result, err := r.setUsername.Handle(ctx, command.SetUsernameCommand{
		UserID:         student.UserIDFromInt64(in.UserID),
		Explicit:       arg,
		PlatformHandle: in.Username,
	})
	if err != nil {
		return err
	}

	switch result.Status {
	case command.SetUsernameNotRegistered:
		return r.transport.SendMessage(ctx, in.ChatID, msgEkNotRegistered)
	case command.SetUsernameInvalid:
		return r.transport.SendMessage(ctx, in.ChatID, msgEkInvalid)
	case command.SetUsernameUnchanged:
		return r.transport.SendMessage(ctx, in.ChatID, fmt.Sprintf(msgEkUnchanged, result.Username))
	default:
		return r.transport.SendMessage(ctx, in.ChatID, fmt.Sprintf(msgEkUpdated, result.Username))
	}
}

// handleAdminButton sends the Mini App button. The allow-list check happens
// server-side when the panel calls the API, so the button itself is harmless.
func (r *Router) handleAdminButton(ctx context.Context, in conversation.Incoming) error {
	if r.adminURL == "" {
		return nil
	}
	kb := [][]telegram.InlineKeyboardButton{
		{telegram.WebAppButton(btnAdminPanel, r.adminURL)},
	}
	_, err := r.transport.client.SendWithKeyboard(ctx, in.ChatID, msgAdminButton, kb)
	return err
}

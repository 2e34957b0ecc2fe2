package telegram

import (
	"context"

	"github.com/denemerapor/exam-report-hub/internal/application/conversation"
	"github.com/denemerapor/exam-report-hub/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT ADAPTER
// Bridges the conversation engine's transport port onto the Bot API client.
// ══════════════════════════════════════════════════════════════════════════════

// Transport adapts the Bot API client to conversation.Transport and to the
// broadcast sender.
type Transport struct {
	client     *telegram.Client
	uploadsDir string
}

// NewTransport creates the adapter. Downloaded photos land in uploadsDir.
func NewTransport(client *telegram.Client, uploadsDir string) *Transport {
	return &Transport{client: client, uploadsDir: uploadsDir}
}

// SendMessage sends plain text to a chat.
func (t *Transport) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := t.client.SendText(ctx, chatID, text)
	return err
}

// SendKeyboard sends text with an inline keyboard.
func (t *Transport) SendKeyboard(ctx context.Context, chatID int64, text string, kb conversation.Keyboard) error {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, telegram.Button(btn.Text, btn.Data))
		}
		rows = append(rows, buttons)
	}
	_, err := t.client.SendWithKeyboard(ctx, chatID, text, rows)
	return err
}

// AnswerCallback acknowledges an inline-keyboard press.
func (t *Transport) AnswerCallback(ctx context.Context, callbackID string) error {
	return t.client.AnswerCallbackQuery(ctx, callbackID, "", false)
}

// DownloadPhoto stores the photo behind fileID under the uploads directory
// and returns the local path.
func (t *Transport) DownloadPhoto(ctx context.Context, fileID string) (string, error) {
	return t.client.DownloadFile(ctx, fileID, t.uploadsDir)
}

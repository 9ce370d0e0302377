// Package bot adapts the recognition dispatcher to a Telegram chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/timmy/armscan/internal/domain"
	"github.com/timmy/armscan/internal/logger"
)

const maxImageSize = 20 * 1024 * 1024 // 20MB limit for images

// Chat texts.
const (
	usageText = "👋 Надішліть фото зброї або боєприпасу, і я спробую визначити модель.\n" +
		"Результат є довідковим. Не наближайтесь до підозрілих предметів.\n\n" +
		"/help — ця довідка"
	hintText       = "📷 Надішліть фото для розпізнавання. Довідка: /help"
	processingText = "🔍 Обробляю зображення, зачекайте..."
	busyText       = "⏳ Зараз забагато запитів. Спробуйте ще раз за хвилину."
	downloadText   = "❌ Не вдалося завантажити фото. Спробуйте ще раз."
	tooLargeText   = "❌ Фото завелике. Надішліть зображення до 20 МБ."
	footerHeader   = "📞 Якщо ви впевнені, що це небезпечний об’єкт:\nЗателефонуйте до:"
)

// Submitter queues a recognition and reports back asynchronously.
type Submitter interface {
	Submit(ctx context.Context, imagePath string, callback func(*domain.Report)) error
}

// messenger is the part of the Telegram API the handlers need.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config holds configuration for the Telegram adapter
type Config struct {
	Token             string
	EmergencyContacts []string
}

// Telegram long-polls updates and answers photos with recognition reports.
type Telegram struct {
	api       *tgbotapi.BotAPI
	send      messenger
	submitter Submitter
	footer    string
	http      *resty.Client

	// download stores a photo in a local temp file; replaced in tests
	download func(ctx context.Context, photo tgbotapi.PhotoSize) (string, error)
}

// NewTelegram connects to the Bot API.
// Parameters:
//   - cfg: bot token and emergency contact lines.
//   - submitter: recognition dispatcher.
// Returns:
//   - *Telegram: adapter ready to Start.
//   - error: non-nil if the token is rejected.
func NewTelegram(cfg *Config, submitter Submitter) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	t := newTelegram(api, submitter, cfg.EmergencyContacts)
	t.download = t.downloadPhoto
	return t, nil
}

func newTelegram(api *tgbotapi.BotAPI, submitter Submitter, contacts []string) *Telegram {
	t := &Telegram{
		api:       api,
		submitter: submitter,
		footer:    emergencyFooter(contacts),
		http:      resty.New().SetTimeout(30 * time.Second),
	}
	if api != nil {
		t.send = api
	}
	return t
}

// Start polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	logger.CtxInfo(ctx, "Telegram bot started as @%s", t.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage never blocks on recognition; photos are handed to the submitter.
func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldChatID:    msg.Chat.ID,
		logger.FieldComponent: "telegram",
	})

	switch {
	case len(msg.Photo) > 0:
		t.handlePhoto(ctx, msg)
	case msg.IsCommand() && (msg.Command() == "start" || msg.Command() == "help"):
		t.reply(ctx, msg, usageText)
	default:
		t.reply(ctx, msg, hintText)
	}
}

func (t *Telegram) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	photo := msg.Photo[len(msg.Photo)-1]
	if photo.FileSize > maxImageSize {
		t.reply(ctx, msg, tooLargeText)
		return
	}

	path, err := t.download(ctx, photo)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to download photo")
		t.reply(ctx, msg, downloadText)
		return
	}
	logger.With(logger.Fields{
		logger.FieldPath: path,
		logger.FieldSize: photo.FileSize,
	}).Info(ctx, "Photo received")

	err = t.submitter.Submit(ctx, path, func(report *domain.Report) {
		defer os.Remove(path)
		t.reply(ctx, msg, t.withFooter(report.Text))
	})
	if err != nil {
		os.Remove(path)
		if errors.Is(err, domain.ErrQueueFull) {
			logger.CtxWarn(ctx, "Recognition queue full, rejecting photo")
			t.reply(ctx, msg, busyText)
			return
		}
		logger.FromContext(ctx).WithError(err).Error("Failed to submit photo")
		t.reply(ctx, msg, downloadText)
		return
	}
	t.reply(ctx, msg, processingText)
}

func (t *Telegram) reply(ctx context.Context, msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID

	if _, err := t.send.Send(out); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to send reply")
	}
}

// downloadPhoto fetches a photo into a unique temp file.
func (t *Telegram) downloadPhoto(ctx context.Context, photo tgbotapi.PhotoSize) (string, error) {
	file, err := t.api.GetFile(tgbotapi.FileConfig{FileID: photo.FileID})
	if err != nil {
		return "", fmt.Errorf("failed to resolve file: %w", err)
	}

	tmp, err := os.CreateTemp("", "armscan-photo-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp.Close()

	resp, err := t.http.R().
		SetContext(ctx).
		SetOutput(tmp.Name()).
		Get(file.Link(t.api.Token))
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download photo: %w", err)
	}
	if resp.IsError() {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode())
	}
	return tmp.Name(), nil
}

func (t *Telegram) withFooter(text string) string {
	if t.footer == "" {
		return text
	}
	return text + "\n\n" + t.footer
}

func emergencyFooter(contacts []string) string {
	var lines []string
	for _, c := range contacts {
		if c = strings.TrimSpace(c); c != "" {
			lines = append(lines, "• "+c)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return footerHeader + "\n" + strings.Join(lines, "\n")
}

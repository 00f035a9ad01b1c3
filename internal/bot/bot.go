package bot

import (
	"context"
	"errors"
	"io"
	"time"

	"voxstudio/internal/ingest"
	"voxstudio/internal/pipeline"
	"voxstudio/pkg/cache"
	"voxstudio/pkg/logger"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// chatActiveTTL is how long /start keeps a chat enabled
const chatActiveTTL = 30 * 24 * time.Hour

type TranscriptionRunner interface {
	Run(ctx context.Context, upload ingest.Upload) (*pipeline.TranscriptionResult, error)
}

type SynthesisRunner interface {
	Run(ctx context.Context, req pipeline.SynthesisRequest) (*pipeline.SynthesisResult, error)
}

type ArtifactReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Bot is the Telegram front end. A nil synthesis runner disables /speak.
type Bot struct {
	tb            *tele.Bot
	cache         cache.Cache
	transcription TranscriptionRunner
	synthesis     SynthesisRunner
	artifacts     ArtifactReader
}

func NewBot(token string, redisCache cache.Cache, transcription TranscriptionRunner, synthesis SynthesisRunner, artifacts ArtifactReader) (*Bot, error) {
	logger.Info("Starting bot initialization")

	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	pref := tele.Settings{
		Token: token,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
		OnError: func(err error, c tele.Context) {
			logger.Error("Bot handler failed", zap.Error(err))
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	logger.Info("Bot created successfully", zap.String("username", tb.Me.Username))

	bot := &Bot{
		tb:            tb,
		cache:         redisCache,
		transcription: transcription,
		synthesis:     synthesis,
		artifacts:     artifacts,
	}

	bot.registerHandlers()
	return bot, nil
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/stop", b.handleStop)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/languages", b.handleLanguages)
	b.tb.Handle("/speak", b.handleSpeak)
	b.tb.Handle(tele.OnVoice, b.handleTranscribe)
	b.tb.Handle(tele.OnAudio, b.handleTranscribe)
	b.tb.Handle(tele.OnDocument, b.handleTranscribe)
}

// handleStart enables the bot for this chat
func (b *Bot) handleStart(c tele.Context) error {
	chatID := c.Chat().ID
	ctx := context.Background()

	key := cache.ChatActiveCacheKey(chatID)
	if err := b.cache.SetWithTTL(ctx, key, "true", chatActiveTTL); err != nil {
		logger.Error("Failed to save chat active state to cache", zap.Error(err))
	}

	logger.Info("Bot activated for chat", zap.Int64("chat_id", chatID))

	return c.Send("Bot started!\n\n" + helpText)
}

// handleStop disables the bot for this chat
func (b *Bot) handleStop(c tele.Context) error {
	chatID := c.Chat().ID
	ctx := context.Background()

	key := cache.ChatActiveCacheKey(chatID)
	if err := b.cache.Delete(ctx, key); err != nil {
		logger.Error("Failed to delete chat active state from cache", zap.Error(err))
	}

	logger.Info("Bot deactivated for chat", zap.Int64("chat_id", chatID))

	return c.Send("Bot stopped.\nSend /start to resume.")
}

// isActive reports whether /start was sent in this chat and has not expired
func (b *Bot) isActive(chatID int64) bool {
	ctx := context.Background()
	key := cache.ChatActiveCacheKey(chatID)

	active, err := b.cache.Exists(ctx, key)
	if err != nil {
		logger.Warn("Failed to check chat active state", zap.Int64("chat_id", chatID), zap.Error(err))
		return false
	}

	return active
}

func (b *Bot) Start() {
	logger.Info("Bot started")
	b.tb.Start()
}

func (b *Bot) Stop() {
	b.tb.Stop()
	logger.Info("Bot stopped")
}

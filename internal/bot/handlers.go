package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"voxstudio/internal/ingest"
	"voxstudio/internal/pipeline"
	"voxstudio/internal/synthesis"
	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// Telegram rejects longer text messages
const maxMessageLen = 4096

const helpText = `Send a voice message or an audio file (wav, mp3, ogg) to get a transcript.

Reply to an audio message (wav or mp3, up to 10 seconds works best) with
/speak [language] text
to hear the text in that voice. /languages lists the language codes.`

const speakReferencePrompt = "Reply to an audio message (wav or mp3) to use it as the speaker reference."

// audioSource is the downloadable audio attached to a message
type audioSource struct {
	file     *tele.File
	fileName string
	size     int64
}

// sourceOf picks the voice, audio or document attachment of msg
func sourceOf(msg *tele.Message) (audioSource, bool) {
	if msg == nil {
		return audioSource{}, false
	}

	switch {
	case msg.Voice != nil:
		return audioSource{
			file:     &msg.Voice.File,
			fileName: fileNameFor("", msg.Voice.MIME, "voice", ".ogg"),
			size:     sizeOf(int64(msg.Voice.FileSize)),
		}, true
	case msg.Audio != nil:
		return audioSource{
			file:     &msg.Audio.File,
			fileName: fileNameFor(msg.Audio.FileName, msg.Audio.MIME, "audio", ".mp3"),
			size:     sizeOf(int64(msg.Audio.FileSize)),
		}, true
	case msg.Document != nil:
		return audioSource{
			file:     &msg.Document.File,
			fileName: fileNameFor(msg.Document.FileName, msg.Document.MIME, "document", ""),
			size:     sizeOf(int64(msg.Document.FileSize)),
		}, true
	}
	return audioSource{}, false
}

// fileNameFor keeps the sender's file name, or derives an extension from the
// MIME type so the ingest allow-list can judge the upload
func fileNameFor(name, mimeType, base, fallbackExt string) string {
	if name != "" {
		return name
	}
	ext := fallbackExt
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		ext = ".mp3"
	case "audio/ogg", "audio/opus":
		ext = ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		ext = ".wav"
	default:
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return base + ext
}

// sizeOf maps Telegram's "unknown" zero size to the ingest convention
func sizeOf(size int64) int64 {
	if size <= 0 {
		return -1
	}
	return size
}

// parseSpeak splits "/speak [lang] text" into language and text. The first
// word is a language only when it is a supported code.
func parseSpeak(payload string) (language, text string) {
	payload = strings.TrimSpace(payload)
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return synthesis.DefaultLanguage, ""
	}

	first := strings.ToLower(fields[0])
	if synthesis.IsSupportedLanguage(first) {
		return first, strings.TrimSpace(payload[len(fields[0]):])
	}
	return synthesis.DefaultLanguage, payload
}

// userMessage turns a run error into a chat reply
func userMessage(err error) string {
	switch model.KindOf(err) {
	case model.ErrorKindValidation, model.ErrorKindParse:
		return "Error: " + err.Error()
	case model.ErrorKindTransport:
		return "Error: the speech recognition service could not be reached. Please try again later."
	case model.ErrorKindModel:
		return "Error: the speech model failed. Please try again later."
	default:
		return "An error occurred while processing your request."
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func (b *Bot) handleHelp(c tele.Context) error {
	return c.Send(helpText)
}

func (b *Bot) handleLanguages(c tele.Context) error {
	var sb strings.Builder
	for _, l := range synthesis.Languages {
		fmt.Fprintf(&sb, "%s: %s\n", l.Label, l.Code)
	}
	return c.Send(sb.String())
}

func (b *Bot) download(src audioSource) (io.ReadCloser, error) {
	rc, err := b.tb.File(src.file)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return rc, nil
}

// handleTranscribe runs speech to text on an incoming voice, audio or document
func (b *Bot) handleTranscribe(c tele.Context) error {
	msg := c.Message()
	src, ok := sourceOf(msg)
	if !ok {
		return c.Reply("Error: no audio found in the message")
	}

	if !b.isActive(msg.Chat.ID) {
		logger.Info("Ignoring audio from inactive chat",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int("message_id", msg.ID))
		return nil
	}

	if err := c.Reply("Transcribing..."); err != nil {
		logger.Error("Failed to send processing message", zap.Error(err))
	}

	body, err := b.download(src)
	if err != nil {
		logger.Error("Failed to download audio", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		return c.Reply("Error: could not download the file from Telegram")
	}
	defer body.Close()

	ctx := context.Background()
	result, err := b.transcription.Run(ctx, ingest.Upload{
		FileName: src.fileName,
		Size:     src.size,
		Body:     body,
	})
	if err != nil {
		return c.Reply(userMessage(err))
	}

	text := result.Transcript
	if text == "" {
		text = "(no speech recognized)"
	}
	if err := c.Reply(truncate(text, maxMessageLen)); err != nil {
		logger.Error("Failed to send transcript", zap.Error(err))
	}

	doc := &tele.Document{
		File:     tele.FromReader(strings.NewReader(result.Transcript)),
		FileName: pipeline.TranscriptFileName,
		MIME:     "text/plain",
	}
	return c.Reply(doc)
}

// handleSpeak runs voice-cloned synthesis with the replied-to audio as the
// speaker reference
func (b *Bot) handleSpeak(c tele.Context) error {
	msg := c.Message()
	if b.synthesis == nil {
		return c.Reply("Speech synthesis is not available.")
	}
	if !b.isActive(msg.Chat.ID) {
		return nil
	}

	language, text := parseSpeak(msg.Payload)
	if strings.TrimSpace(text) == "" {
		return c.Reply("Please enter some text to synthesize: /speak [language] text")
	}

	src, ok := sourceOf(msg.ReplyTo)
	if !ok {
		return c.Reply(speakReferencePrompt)
	}

	if err := c.Reply("Generating speech..."); err != nil {
		logger.Error("Failed to send processing message", zap.Error(err))
	}

	body, err := b.download(src)
	if err != nil {
		logger.Error("Failed to download reference", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		return c.Reply("Error: could not download the reference audio from Telegram")
	}
	defer body.Close()

	ctx := context.Background()
	result, err := b.synthesis.Run(ctx, pipeline.SynthesisRequest{
		Text:     text,
		Language: language,
		Reference: ingest.Upload{
			FileName: src.fileName,
			Size:     src.size,
			Body:     body,
		},
	})
	if err != nil {
		return c.Reply(userMessage(err))
	}

	for _, w := range result.Warnings {
		if err := c.Reply("Warning: " + w); err != nil {
			logger.Error("Failed to send warning", zap.Error(err))
		}
	}

	wav, err := b.readArtifact(ctx, result.View)
	if err != nil {
		logger.Error("Failed to read generated speech", zap.String("run_id", result.RunID), zap.Error(err))
		return c.Reply("Error: the generated speech could not be retrieved.")
	}

	audio := &tele.Audio{
		File:     tele.FromReader(bytes.NewReader(wav)),
		FileName: pipeline.SpeechFileName,
		MIME:     pipeline.SpeechContentType,
		Duration: int(result.AudioSeconds),
	}
	return c.Reply(audio)
}

func (b *Bot) readArtifact(ctx context.Context, view *model.RunView) ([]byte, error) {
	if view == nil || view.Artifact == nil {
		return nil, fmt.Errorf("run has no artifact")
	}
	rc, err := b.artifacts.Get(ctx, view.Artifact.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

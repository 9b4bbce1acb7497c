package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	oai "github.com/sashabaranov/go-openai"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/logging"
)

const audioFileLayout = "2006-01-02-1504"

// Speaker implements domain.AudioService. Input is moderated first, the
// synthesized mp3 is kept under the output path and handed to the player
// command when one is configured.
type Speaker struct {
	api           *oai.Client
	model         string
	moderation    domain.ModerationClient
	outputPath    string
	playerCommand []string
	now           func() time.Time
}

func NewSpeaker(cfg Config, moderation domain.ModerationClient, outputPath, playerCommand string) *Speaker {
	return &Speaker{
		api:           newAPI(cfg),
		model:         cfg.SpeechModel,
		moderation:    moderation,
		outputPath:    outputPath,
		playerCommand: strings.Fields(playerCommand),
		now:           time.Now,
	}
}

func (s *Speaker) Speak(ctx context.Context, text, voice string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	result, err := s.moderation.Classify(ctx, text)
	if err != nil {
		return fmt.Errorf("moderate speech input: %w", err)
	}
	if result.Flagged {
		logging.Moderation().WarnContext(ctx, "Speech input flagged, not speaking", "categories", result.Categories)
		return nil
	}

	audio, err := s.synthesize(ctx, text, voice)
	if err != nil {
		return err
	}

	path, err := s.save(audio)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Speech saved", "path", path, "voice", voice)

	return s.play(ctx, path)
}

func (s *Speaker) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	resp, err := s.api.CreateSpeech(ctx, oai.CreateSpeechRequest{
		Model:          oai.SpeechModel(s.model),
		Input:          text,
		Voice:          oai.SpeechVoice(voice),
		ResponseFormat: oai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return audio, nil
}

func (s *Speaker) save(audio []byte) (string, error) {
	if err := os.MkdirAll(s.outputPath, 0o755); err != nil {
		return "", fmt.Errorf("create audio directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.mp3", s.now().Format(audioFileLayout), uuid.NewString())
	path := filepath.Join(s.outputPath, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write speech: %w", err)
	}
	return path, nil
}

// play blocks until the player command exits.
func (s *Speaker) play(ctx context.Context, path string) error {
	if len(s.playerCommand) == 0 {
		return nil
	}
	args := append(s.playerCommand[1:len(s.playerCommand):len(s.playerCommand)], path)
	cmd := exec.CommandContext(ctx, s.playerCommand[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("play %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

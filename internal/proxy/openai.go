package proxy

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultVoice is used when no voice is configured.
const DefaultVoice = "alloy"

// OpenAIConfig holds the settings of an OpenAI-compatible speech endpoint.
type OpenAIConfig struct {
	URL          string
	Token        string
	Model        string
	Voice        string
	Instructions string // Speaking style, ignored by older models

	Client *http.Client
}

// OpenAISynthesizer calls an OpenAI-compatible /audio/speech endpoint.
type OpenAISynthesizer struct {
	cfg    OpenAIConfig
	speech openai.AudioSpeechService
}

// NewOpenAI creates a synthesizer for cfg.
func NewOpenAI(cfg OpenAIConfig) *OpenAISynthesizer {
	if cfg.URL == "" {
		cfg.URL = "https://api.openai.com/v1/"
	}
	if cfg.Model == "" {
		cfg.Model = openai.SpeechModelGPT4oMiniTTS
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}

	options := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.URL, "/") + "/"),
		option.WithHTTPClient(cfg.Client),
		option.WithMaxRetries(1),
	}
	if cfg.Token != "" {
		options = append(options, option.WithAPIKey(cfg.Token))
	}

	return &OpenAISynthesizer{
		cfg:    cfg,
		speech: openai.NewAudioSpeechService(options...),
	}
}

// Synthesize requests an MP3 rendition of text. The body is streamed as the
// endpoint produces it.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.cfg.Model,
		Voice:          openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if s.cfg.Instructions != "" {
		params.Instructions = openai.String(s.cfg.Instructions)
	}

	resp, err := s.speech.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

var _ Synthesizer = (*OpenAISynthesizer)(nil)

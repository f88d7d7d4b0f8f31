package main

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/codexplain/codexplain/internal/audio"
	"github.com/codexplain/codexplain/internal/cache"
	"github.com/codexplain/codexplain/internal/explain"
	"github.com/codexplain/codexplain/internal/playback"
	"github.com/codexplain/codexplain/internal/proxy"
	"github.com/codexplain/codexplain/internal/speech"
	"github.com/codexplain/codexplain/ui"
	"github.com/codexplain/codexplain/utils"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// secrets are only ever read from the environment.
type secrets struct {
	ModelEndpoint string `env:"IBM_ENDPOINT"`
	ModelKey      string `env:"IBM_KEY"`
	SpeechKey     string `env:"CODEXPLAIN_SPEECH_KEY"`
	OpenAIKey     string `env:"OPENAI_API_KEY"`
}

func loadSecrets() (secrets, error) {
	s, err := env.ParseAs[secrets]()
	if err != nil {
		return s, fmt.Errorf("error parsing environment: %w", err)
	}
	return s, nil
}

func (s secrets) modelKey() string {
	if s.ModelKey != "" {
		return s.ModelKey
	}
	return s.OpenAIKey
}

func (s secrets) speechKey() string {
	if s.SpeechKey != "" {
		return s.SpeechKey
	}
	return s.OpenAIKey
}

func setDefaults() {
	viper.SetDefault("log_level", "info")

	viper.SetDefault("model.endpoint", "")
	viper.SetDefault("model.name", explain.DefaultModel)
	viper.SetDefault("model.temperature", 0.0)
	viper.SetDefault("model.timeout", "2m")

	viper.SetDefault("speech.url", "http://127.0.0.1:3000"+proxy.VoicePath)
	viper.SetDefault("speech.timeout", "30s")

	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.memory_size", "16MB")
	viper.SetDefault("cache.disk_size", "100MB")
	viper.SetDefault("cache.compression", 3)
	viper.SetDefault("cache.ttl", "168h")

	viper.SetDefault("playback.safety_timeout", "100s")
	viper.SetDefault("playback.ready_timeout", "2s")
	viper.SetDefault("playback.advance_delay", "500ms")
	viper.SetDefault("playback.error_delay", "100ms")
	viper.SetDefault("playback.max_failures", 0)
	viper.SetDefault("playback.volume", 1.0)

	viper.SetDefault("server.addr", proxy.DefaultAddr)
	viper.SetDefault("server.provider", "openai")
	viper.SetDefault("server.endpoint", "")
	viper.SetDefault("server.model", "")
	viper.SetDefault("server.voice", proxy.DefaultVoice)
	viper.SetDefault("server.instructions", "")
	viper.SetDefault("server.requests_per_minute", 0)
	viper.SetDefault("server.metrics", true)
}

func newFetcher(sec secrets) (*explain.Client, error) {
	endpoint := viper.GetString("model.endpoint")
	if endpoint == "" {
		endpoint = sec.ModelEndpoint
	}
	if endpoint == "" {
		return nil, errors.New("no model endpoint configured: set IBM_ENDPOINT or model.endpoint")
	}

	client, err := explain.New(endpoint, viper.GetString("model.name"),
		explain.WithToken(sec.modelKey()),
		explain.WithTemperature(viper.GetFloat64("model.temperature")),
		explain.WithClient(&http.Client{Timeout: viper.GetDuration("model.timeout")}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create model client: %w", err)
	}
	return client, nil
}

func cacheConfig() (cache.Config, error) {
	cfg := cache.DefaultConfig()

	memory, err := humanize.ParseBytes(viper.GetString("cache.memory_size"))
	if err != nil {
		return cfg, fmt.Errorf("invalid cache.memory_size: %w", err)
	}
	disk, err := humanize.ParseBytes(viper.GetString("cache.disk_size"))
	if err != nil {
		return cfg, fmt.Errorf("invalid cache.disk_size: %w", err)
	}

	dir := viper.GetString("cache.dir")
	if dir == "" {
		base, err := gap.NewScope(gap.User, appName).CacheDir()
		if err != nil {
			return cfg, fmt.Errorf("unable to find cache directory: %w", err)
		}
		dir = filepath.Join(base, "clips")
	}

	cfg.MemoryCapacity = int64(memory) //nolint:gosec
	cfg.DiskCapacity = int64(disk)     //nolint:gosec
	cfg.Dir = utils.ExpandPath(dir)
	cfg.CompressionLevel = viper.GetInt("cache.compression")
	cfg.TTL = viper.GetDuration("cache.ttl")
	return cfg, nil
}

func newSpeechClient(store *cache.Store) *speech.Client {
	return speech.NewClient(viper.GetString("speech.url"),
		speech.WithCache(store),
		speech.WithTimeout(viper.GetDuration("speech.timeout")),
	)
}

func playbackConfig() playback.Config {
	cfg := playback.DefaultConfig()
	cfg.SafetyTimeout = viper.GetDuration("playback.safety_timeout")
	cfg.ReadyTimeout = viper.GetDuration("playback.ready_timeout")
	cfg.AdvanceDelay = viper.GetDuration("playback.advance_delay")
	cfg.ErrorDelay = viper.GetDuration("playback.error_delay")
	cfg.MaxConsecutiveFailures = viper.GetInt("playback.max_failures")
	return cfg
}

func newPlayer(mute bool) (audio.Player, error) {
	if mute {
		return audio.DefaultMockPlayer(), nil
	}

	cfg := audio.DefaultPlayerConfig()
	cfg.Volume = viper.GetFloat64("playback.volume")

	p, err := audio.NewPlayer(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create audio player: %w", err)
	}
	return p, nil
}

// stack is everything a playback session needs.
type stack struct {
	store   *cache.Store
	speech  *speech.Client
	backend *audio.Backend
	cfg     playback.Config
}

func newStack(mute bool) (*stack, error) {
	ccfg, err := cacheConfig()
	if err != nil {
		return nil, err
	}
	store, err := cache.NewStore(ccfg)
	if err != nil {
		return nil, fmt.Errorf("unable to open clip cache: %w", err)
	}

	player, err := newPlayer(mute)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client := newSpeechClient(store)
	return &stack{
		store:   store,
		speech:  client,
		backend: audio.NewBackend(client, player),
		cfg:     playbackConfig(),
	}, nil
}

func (s *stack) newController(tokens []explain.Token) (*playback.Controller, error) {
	c, err := playback.New(tokens, s.backend, s.speech, playback.WithConfig(s.cfg))
	if err != nil {
		return nil, fmt.Errorf("unable to create playback session: %w", err)
	}
	return c, nil
}

func (s *stack) sessionFactory() ui.SessionFactory {
	return func(tokens []explain.Token) (ui.Session, error) {
		c, err := s.newController(tokens)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (s *stack) Close() error {
	return errors.Join(s.backend.Close(), s.store.Close())
}
